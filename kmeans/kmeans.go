// Package kmeans implements the k-means++ / Lloyd partitioner shared by the
// IVF+PQ coarse quantizer, the k-means tree, and the product quantizer's
// per-subspace codebook training.
package kmeans

import (
	"math"
	"math/rand"

	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/kernel"
)

// Metric selects the distance used to assign points to centroids.
type Metric int

const (
	MetricL2 Metric = iota
	MetricCosine
)

func (m Metric) dist(a, b []float32) float32 {
	if m == MetricCosine {
		return 1 - kernel.Cosine(a, b)
	}
	return kernel.L2(a, b)
}

// Config tunes the partitioner.
type Config struct {
	MaxIterations int
	Epsilon       float64
	Metric        Metric
	Rand          *rand.Rand
}

// DefaultConfig mirrors spec §4.B's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 100,
		Epsilon:       1e-6,
		Metric:        MetricL2,
		Rand:          rand.New(rand.NewSource(1)),
	}
}

// Result holds the trained centroids and the per-vector cluster assignment.
type Result struct {
	Centroids  [][]float32
	Assignment []int
}

// Fit partitions the n vectors of dimension d stored contiguously in buf
// (buf[i*d : (i+1)*d] is vector i) into k clusters.
func Fit(buf []float32, n, d, k int, cfg Config) (*Result, error) {
	if n < k {
		return nil, errs.Other("insufficient vectors")
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(1))
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 100
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = 1e-6
	}

	centroids := seedPlusPlus(buf, n, d, k, cfg)
	assignment := make([]int, n)

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		// Assignment step.
		for i := 0; i < n; i++ {
			v := buf[i*d : (i+1)*d]
			assignment[i] = nearestCentroid(v, centroids, cfg.Metric)
		}

		// Update step.
		sums := make([][]float32, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float32, d)
		}
		for i := 0; i < n; i++ {
			c := assignment[i]
			v := buf[i*d : (i+1)*d]
			counts[c]++
			for j := 0; j < d; j++ {
				sums[c][j] += v[j]
			}
		}

		var maxMove float64
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Empty cluster: retain the previous centroid, never re-seed.
				continue
			}
			newCentroid := make([]float32, d)
			inv := 1.0 / float32(counts[c])
			for j := 0; j < d; j++ {
				newCentroid[j] = sums[c][j] * inv
			}
			move := float64(kernel.L2(centroids[c], newCentroid))
			if move > maxMove {
				maxMove = move
			}
			centroids[c] = newCentroid
		}

		if maxMove < cfg.Epsilon {
			break
		}
	}

	return &Result{Centroids: centroids, Assignment: assignment}, nil
}

// seedPlusPlus implements k-means++ initialization: the first centroid is
// picked uniformly at random, and each subsequent centroid is picked with
// probability proportional to its squared distance from the nearest
// already-chosen centroid.
func seedPlusPlus(buf []float32, n, d, k int, cfg Config) [][]float32 {
	centroids := make([][]float32, 0, k)

	first := cfg.Rand.Intn(n)
	centroids = append(centroids, cloneVec(buf[first*d:(first+1)*d]))

	minDistSq := make([]float64, n)
	for len(centroids) < k {
		var total float64
		for i := 0; i < n; i++ {
			v := buf[i*d : (i+1)*d]
			d2 := float64(cfg.Metric.dist(v, centroids[len(centroids)-1]))
			d2 *= d2
			if len(centroids) == 1 || d2 < minDistSq[i] {
				minDistSq[i] = d2
			}
			total += minDistSq[i]
		}

		if total == 0 {
			// All remaining points coincide with a chosen centroid; pick
			// arbitrarily to keep making progress.
			idx := cfg.Rand.Intn(n)
			centroids = append(centroids, cloneVec(buf[idx*d:(idx+1)*d]))
			continue
		}

		target := cfg.Rand.Float64() * total
		var cum float64
		chosen := n - 1
		for i := 0; i < n; i++ {
			cum += minDistSq[i]
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, cloneVec(buf[chosen*d:(chosen+1)*d]))
	}

	return centroids
}

func nearestCentroid(v []float32, centroids [][]float32, metric Metric) int {
	best := 0
	bestDist := float32(math.MaxFloat32)
	for c, centroid := range centroids {
		d := metric.dist(v, centroid)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func cloneVec(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
