// Package benchmarks compares quantization methods and index types across
// this module's actual implementations: product quantization (pq.Quantizer),
// scalar quantization (pq.ScalarQuantizer), and the ivfpq/trees index
// families, against exact brute-force ground truth.
package benchmarks

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/nearkit/retrieve/ivfpq"
	"github.com/nearkit/retrieve/kernel"
	"github.com/nearkit/retrieve/pq"
	"github.com/nearkit/retrieve/trees"
)

const (
	benchVectorDim  = 128
	benchNumVectors = 2000
	benchNumQueries = 50
	benchK          = 10
)

var quantizationConfigs = []struct {
	name          string
	numSubvectors int
	bitsPerCode   int
}{
	{"PQ-8x6", 8, 6},
	{"PQ-16x8", 16, 8},
	{"PQ-32x8", 32, 8},
}

func TestQuantizationComparison(t *testing.T) {
	flat := generateRandomVectors(benchNumVectors, benchVectorDim)
	flatQueries := generateRandomVectors(benchNumQueries, benchVectorDim)
	groundTruth := computeGroundTruth(flatQueries, benchNumQueries, flat, benchNumVectors, benchVectorDim, benchK)

	fmt.Printf("Dataset: %d vectors x %d dimensions, queries: %d, k: %d\n",
		benchNumVectors, benchVectorDim, benchNumQueries, benchK)

	for _, cfg := range quantizationConfigs {
		t.Run(cfg.name, func(t *testing.T) {
			testProductQuantization(t, cfg.name, cfg.numSubvectors, cfg.bitsPerCode, flat, flatQueries, groundTruth)
		})
	}

	t.Run("Scalar", func(t *testing.T) {
		testScalarQuantization(t, flat, flatQueries, groundTruth)
	})
}

func testProductQuantization(t *testing.T, name string, numSubvectors, bitsPerCode int, flatDB, flatQueries []float32, groundTruth [][]int) {
	cfg := pq.DefaultConfig()
	cfg.NumSubvectors = numSubvectors
	cfg.BitsPerCode = bitsPerCode
	quantizer := pq.New(cfg)

	trainStart := time.Now()
	if err := quantizer.Train(flatDB, benchNumVectors, benchVectorDim); err != nil {
		t.Fatalf("train: %v", err)
	}
	trainTime := time.Since(trainStart)

	codes := make([][]byte, benchNumVectors)
	encodeStart := time.Now()
	for i := 0; i < benchNumVectors; i++ {
		codes[i] = quantizer.Encode(flatDB[i*benchVectorDim : (i+1)*benchVectorDim])
	}
	encodeTime := time.Since(encodeStart)

	var totalRecall float32
	searchStart := time.Now()
	for qi := 0; qi < benchNumQueries; qi++ {
		query := flatQueries[qi*benchVectorDim : (qi+1)*benchVectorDim]
		table := quantizer.ComputeDistanceTable(query)
		results := topKByAsymmetricDistance(table, codes, benchK)
		totalRecall += computeRecall(groundTruth[qi], results)
	}
	searchTime := time.Since(searchStart)

	avgRecall := totalRecall / float32(benchNumQueries)
	qps := float64(benchNumQueries) / searchTime.Seconds()
	ratio := quantizer.CompressionRatio(benchVectorDim)

	fmt.Printf("%s: compression=%.1fx train=%v encode=%v recall@%d=%.2f%% qps=%.0f\n",
		name, ratio, trainTime, encodeTime, benchK, avgRecall*100, qps)

	if avgRecall < 0 || avgRecall > 1 {
		t.Errorf("recall out of range: %v", avgRecall)
	}
}

func testScalarQuantization(t *testing.T, flatDB, flatQueries []float32, groundTruth [][]int) {
	sq := pq.NewScalarQuantizer()

	trainStart := time.Now()
	if err := sq.Train(flatDB, benchNumVectors, benchVectorDim); err != nil {
		t.Fatalf("train: %v", err)
	}
	trainTime := time.Since(trainStart)

	encoded := make([][]int8, benchNumVectors)
	encodeStart := time.Now()
	for i := 0; i < benchNumVectors; i++ {
		encoded[i] = sq.Quantize(flatDB[i*benchVectorDim : (i+1)*benchVectorDim])
	}
	encodeTime := time.Since(encodeStart)

	var totalRecall float32
	searchStart := time.Now()
	for qi := 0; qi < benchNumQueries; qi++ {
		quantizedQuery := sq.Quantize(flatQueries[qi*benchVectorDim : (qi+1)*benchVectorDim])
		results := topKByInt8Distance(quantizedQuery, encoded, benchK)
		totalRecall += computeRecall(groundTruth[qi], results)
	}
	searchTime := time.Since(searchStart)

	avgRecall := totalRecall / float32(benchNumQueries)
	qps := float64(benchNumQueries) / searchTime.Seconds()

	fmt.Printf("Scalar: compression=%.1fx train=%v encode=%v recall@%d=%.2f%% qps=%.0f\n",
		sq.MemoryReduction(), trainTime, encodeTime, benchK, avgRecall*100, qps)

	if avgRecall < 0 || avgRecall > 1 {
		t.Errorf("recall out of range: %v", avgRecall)
	}
}

func TestIndexComparison(t *testing.T) {
	flatDB := generateRandomVectors(benchNumVectors, benchVectorDim)
	flatQueries := generateRandomVectors(benchNumQueries, benchVectorDim)
	groundTruth := computeGroundTruth(flatQueries, benchNumQueries, flatDB, benchNumVectors, benchVectorDim, benchK)

	t.Run("IVF-PQ", func(t *testing.T) {
		testIVFPQ(t, flatDB, flatQueries, groundTruth)
	})

	t.Run("ScaNN-Anisotropic", func(t *testing.T) {
		testScaNNPartitioner(t, flatDB, flatQueries, groundTruth)
	})
}

func testIVFPQ(t *testing.T, flatDB, flatQueries []float32, groundTruth [][]int) {
	cfg := ivfpq.DefaultConfig()
	cfg.NumCentroids = 32
	index := ivfpq.New(benchVectorDim, cfg)

	addStart := time.Now()
	for i := 0; i < benchNumVectors; i++ {
		if err := index.Add(uint32(i), flatDB[i*benchVectorDim:(i+1)*benchVectorDim]); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	buildStart := time.Now()
	if err := index.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	buildTime := time.Since(buildStart)
	addTime := buildStart.Sub(addStart)

	var totalRecall float32
	searchStart := time.Now()
	for qi := 0; qi < benchNumQueries; qi++ {
		query := flatQueries[qi*benchVectorDim : (qi+1)*benchVectorDim]
		neighbors, err := index.Search(query, benchK)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		results := make([]int, len(neighbors))
		for i, n := range neighbors {
			results[i] = int(n.DocID)
		}
		totalRecall += computeRecall(groundTruth[qi], results)
	}
	searchTime := time.Since(searchStart)

	avgRecall := totalRecall / float32(benchNumQueries)
	qps := float64(benchNumQueries) / searchTime.Seconds()
	fmt.Printf("IVF-PQ: add=%v build=%v recall@%d=%.2f%% qps=%.0f\n", addTime, buildTime, benchK, avgRecall*100, qps)
}

func testScaNNPartitioner(t *testing.T, flatDB, flatQueries []float32, groundTruth [][]int) {
	cfg := trees.DefaultAnisotropicConfig()
	cfg.NumPartitions = 32
	index := trees.NewScaNNPartitioner(benchVectorDim, cfg)

	for i := 0; i < benchNumVectors; i++ {
		if err := index.Add(uint32(i), flatDB[i*benchVectorDim:(i+1)*benchVectorDim]); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	buildStart := time.Now()
	if err := index.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	buildTime := time.Since(buildStart)

	var totalRecall float32
	searchStart := time.Now()
	for qi := 0; qi < benchNumQueries; qi++ {
		query := flatQueries[qi*benchVectorDim : (qi+1)*benchVectorDim]
		neighbors, err := index.Search(query, benchK)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		results := make([]int, len(neighbors))
		for i, n := range neighbors {
			results[i] = int(n.DocID)
		}
		totalRecall += computeRecall(groundTruth[qi], results)
	}
	searchTime := time.Since(searchStart)

	avgRecall := totalRecall / float32(benchNumQueries)
	qps := float64(benchNumQueries) / searchTime.Seconds()
	fmt.Printf("ScaNN-Anisotropic: build=%v recall@%d=%.2f%% qps=%.0f\n", buildTime, benchK, avgRecall*100, qps)
}

// generateRandomVectors returns n vectors of dimension dim packed flat,
// row-major, the layout this module's Train/Add/Search APIs expect.
func generateRandomVectors(n, dim int) []float32 {
	flat := make([]float32, n*dim)
	for i := range flat {
		flat[i] = rand.Float32()
	}
	return flat
}

// scoredCandidate pairs a database row index with its distance to a query;
// shared across every top-k helper below so partialSort has one consistent
// slice type to operate on.
type scoredCandidate struct {
	id   int
	dist float32
}

func computeGroundTruth(flatQueries []float32, numQueries int, flatDB []float32, numDB, dim, k int) [][]int {
	groundTruth := make([][]int, numQueries)
	for qi := 0; qi < numQueries; qi++ {
		query := flatQueries[qi*dim : (qi+1)*dim]
		candidates := make([]scoredCandidate, numDB)
		for i := 0; i < numDB; i++ {
			candidates[i] = scoredCandidate{id: i, dist: kernel.L2(query, flatDB[i*dim:(i+1)*dim])}
		}
		partialSort(candidates, k)
		ids := make([]int, k)
		for i := 0; i < k; i++ {
			ids[i] = candidates[i].id
		}
		groundTruth[qi] = ids
	}
	return groundTruth
}

func computeRecall(groundTruth, results []int) float32 {
	gtSet := make(map[int]bool, len(groundTruth))
	for _, id := range groundTruth {
		gtSet[id] = true
	}
	var matches int
	for _, id := range results {
		if gtSet[id] {
			matches++
		}
	}
	return float32(matches) / float32(len(groundTruth))
}

func topKByAsymmetricDistance(table pq.DistanceTable, codes [][]byte, k int) []int {
	candidates := make([]scoredCandidate, len(codes))
	for i, code := range codes {
		candidates[i] = scoredCandidate{id: i, dist: table.AsymmetricDistance(code)}
	}
	partialSort(candidates, k)
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].id
	}
	return out
}

func topKByInt8Distance(query []int8, encoded [][]int8, k int) []int {
	candidates := make([]scoredCandidate, len(encoded))
	for i, code := range encoded {
		candidates[i] = scoredCandidate{id: i, dist: pq.DistanceInt8(query, code)}
	}
	partialSort(candidates, k)
	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].id
	}
	return out
}

// partialSort selection-sorts the k smallest-distance entries to the front.
func partialSort(candidates []scoredCandidate, k int) {
	if k > len(candidates) {
		k = len(candidates)
	}
	for i := 0; i < k; i++ {
		minIdx := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].dist < candidates[minIdx].dist {
				minIdx = j
			}
		}
		if minIdx != i {
			candidates[i], candidates[minIdx] = candidates[minIdx], candidates[i]
		}
	}
}
