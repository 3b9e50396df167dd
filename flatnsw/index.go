// Package flatnsw implements the single-layer degenerate form of the
// hierarchical graph in package hnsw: every node lives in one flat graph,
// searched with greedy-beam expansion only. It shares hnsw's beam-search and
// roaring-compression primitives rather than reimplementing them (neighbor
// pruning is its own plain-closest selection, in insert.go), and is offered
// as a lower-memory alternative when the recall/latency tradeoff of a single
// layer is acceptable.
package flatnsw

import (
	"math/rand"
	"sync"

	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/hnsw"
)

// Config mirrors hnsw.Config minus the layer-generation parameters that a
// single-layer graph has no use for.
type Config struct {
	M                    int
	EfConstruction       int
	EfSearch             int
	CompressionThreshold int
	Metric               hnsw.Metric
	Seed                 int64
}

func DefaultConfig() Config {
	return Config{
		M:                    16,
		EfConstruction:       200,
		EfSearch:             64,
		CompressionThreshold: 256,
		Metric:               hnsw.MetricCosine,
		Seed:                 42,
	}
}

type neighborSet struct {
	plain      []uint32
	compressed *hnsw.CompressedIDs
}

func (ns *neighborSet) slots() []uint32 {
	if ns.compressed == nil {
		return ns.plain
	}
	return hnsw.Decompress(*ns.compressed)
}

func (ns *neighborSet) set(slots []uint32) {
	ns.plain = append(ns.plain[:0], slots...)
	ns.compressed = nil
}

func (ns *neighborSet) compressIfLarge(threshold int) {
	if ns.compressed != nil || threshold <= 0 || len(ns.plain) <= threshold {
		return
	}
	sorted := append([]uint32(nil), ns.plain...)
	sortUint32(sorted)
	c := hnsw.Compress(sorted)
	ns.compressed = &c
	ns.plain = nil
}

func sortUint32(ids []uint32) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// Index is the flat (single-layer) small-world graph.
type Index struct {
	mu sync.RWMutex

	cfg Config
	dim int

	vectors []float32
	docIDs  []uint32

	neighbors []*neighborSet // indexed by slot

	built bool
	rng   *rand.Rand
	dist  func(a, b []float32) float32
}

func New(dim int, cfg Config) *Index {
	if cfg.M == 0 {
		cfg = DefaultConfig()
	}
	return &Index{
		cfg:  cfg,
		dim:  dim,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		dist: cfg.Metric.DistanceFunc(),
	}
}

func (idx *Index) Dimension() int { return idx.dim }

func (idx *Index) NumVectors() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docIDs)
}

func (idx *Index) SizeBytes() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	size := int64(len(idx.vectors))*4 + int64(len(idx.docIDs))*4
	for _, ns := range idx.neighbors {
		size += int64(len(ns.slots())) * 4
	}
	return size
}

func (idx *Index) Stats() ann.Stats {
	return ann.Stats{
		NumVectors:    idx.NumVectors(),
		Dimension:     idx.dim,
		SizeBytes:     idx.SizeBytes(),
		AlgorithmName: "flatnsw",
	}
}

func (idx *Index) vectorAt(slot uint32) []float32 {
	off := int(slot) * idx.dim
	return idx.vectors[off : off+idx.dim]
}

// Add inserts a vector, immediately wiring it into the graph (insertion is
// the build protocol, as in hnsw).
func (idx *Index) Add(docID uint32, vector []float32) error {
	if len(vector) != idx.dim {
		return errs.DimensionMismatch(idx.dim, len(vector))
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.built {
		return errs.NotBuilt("index sealed: cannot Add after Build")
	}

	slot := uint32(len(idx.docIDs))
	idx.vectors = append(idx.vectors, vector...)
	idx.docIDs = append(idx.docIDs, docID)
	idx.neighbors = append(idx.neighbors, &neighborSet{})

	idx.insert(slot)
	return nil
}

func (idx *Index) Build() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if len(idx.docIDs) == 0 {
		return errs.EmptyIndex()
	}
	for _, ns := range idx.neighbors {
		ns.compressIfLarge(idx.cfg.CompressionThreshold)
	}
	idx.built = true
	return nil
}
