package trees

import (
	"math/rand"
	"time"

	"github.com/twmb/murmur3"

	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
)

// LSHConfig tunes the random-hyperplane locality-sensitive hash family.
type LSHConfig struct {
	NumTables      int
	HashesPerTable int
}

func DefaultLSHConfig() LSHConfig {
	return LSHConfig{NumTables: 8, HashesPerTable: 12}
}

type hashTable struct {
	hyperplanes [][]float32 // HashesPerTable x dim
	buckets     map[uint32][]uint32
}

// LSH buckets vectors by a fixed family of random-hyperplane sign hashes,
// one bucket signature per table, and unions the bucket contents across
// every table as its candidate set before the shared exact re-rank.
type LSH struct {
	store
	cfg    LSHConfig
	tables []*hashTable
	rng    *rand.Rand
}

func NewLSH(dim int, cfg LSHConfig, seed int64) *LSH {
	if cfg.NumTables == 0 {
		cfg = DefaultLSHConfig()
	}
	return &LSH{store: store{dim: dim}, cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

func (t *LSH) Add(docID uint32, vector []float32) error { return t.store.add(docID, vector) }
func (t *LSH) Dimension() int                            { return t.dim }
func (t *LSH) NumVectors() int                            { return t.numVectors() }
func (t *LSH) SizeBytes() int64                           { return t.sizeBytes() }
func (t *LSH) Stats() ann.Stats {
	return ann.Stats{NumVectors: t.NumVectors(), Dimension: t.dim, SizeBytes: t.SizeBytes(), AlgorithmName: "lsh"}
}

func (t *LSH) randomHyperplanes() [][]float32 {
	h := make([][]float32, t.cfg.HashesPerTable)
	for i := range h {
		row := make([]float32, t.dim)
		for j := range row {
			row[j] = t.rng.Float32()*2 - 1
		}
		h[i] = row
	}
	return h
}

// signature packs HashesPerTable sign bits (1 if dot >= 0) into a byte
// slice, then hashes that slice with murmur3 into a single bucket key.
func signature(hyperplanes [][]float32, vector []float32) uint32 {
	bits := make([]byte, (len(hyperplanes)+7)/8)
	for i, h := range hyperplanes {
		if dot(vector, h) >= 0 {
			bits[i/8] |= 1 << uint(i%8)
		}
	}
	return murmur3.Sum32(bits)
}

func (t *LSH) Build() (err error) {
	start := time.Now()
	defer func() { recordBuild("lsh", start, err) }()
	if t.numVectors() == 0 {
		return errs.EmptyIndex()
	}
	t.tables = make([]*hashTable, t.cfg.NumTables)
	for i := range t.tables {
		ht := &hashTable{hyperplanes: t.randomHyperplanes(), buckets: make(map[uint32][]uint32)}
		for s := uint32(0); s < uint32(t.numVectors()); s++ {
			key := signature(ht.hyperplanes, t.vectorAt(s))
			ht.buckets[key] = append(ht.buckets[key], s)
		}
		t.tables[i] = ht
	}
	t.built = true
	return nil
}

func (t *LSH) Search(query []float32, k int) (result []ann.Neighbor, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			recordSearch("lsh", start, len(result))
		}
	}()
	if k <= 0 {
		return nil, errs.Other("k must be positive")
	}
	if len(query) != t.dim {
		return nil, errs.DimensionMismatch(t.dim, len(query))
	}
	if !t.built {
		return nil, errs.NotBuilt("index must be built before search")
	}

	var candidates []uint32
	for _, ht := range t.tables {
		key := signature(ht.hyperplanes, query)
		candidates = append(candidates, ht.buckets[key]...)
	}
	return t.rerank(query, candidates, k, cosineDistance), nil
}
