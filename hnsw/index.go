// Package hnsw implements the hierarchical navigable small-world graph
// index: the core dense ANN structure of this module. Vectors are held in a
// flat structure-of-arrays buffer and nodes reference each other by slot
// index rather than by pointer, so the graph (which is cyclic by nature —
// neighbors point to neighbors) never needs a garbage-collector-defeating
// arena of heap pointers.
package hnsw

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/observability"
)

// SelectionPolicy chooses how a node's neighbor set is diversified during
// insertion.
type SelectionPolicy int

const (
	// SelectClosest keeps the cap nearest candidates as-is — the reference
	// graph index's default, always-take-the-nearest behavior.
	SelectClosest SelectionPolicy = iota
	// SelectHeuristic applies an RNG-like occlusion check: a candidate is
	// rejected once some already-selected neighbor lies closer to it than
	// it lies to the node being inserted, the same diversification
	// trees/diskann.go's selectNeighbors applies to its Vamana graph.
	SelectHeuristic
)

// Config governs the shape and cost/recall tradeoffs of the graph.
type Config struct {
	// M is the number of bidirectional edges created per node at layers above 0.
	M int
	// M0 is the edge cap at layer 0, conventionally 2*M.
	M0 int
	// EfConstruction is the beam width used while inserting.
	EfConstruction int
	// EfSearch is the default beam width used while searching, overridable per query.
	EfSearch int
	// CompressionThreshold (C) is the neighbor-list length above which a
	// sealed layer's adjacency is roaring-compressed.
	CompressionThreshold int
	Metric               Metric
	Seed                 int64
	// Selection picks the neighbor-diversification policy applied whenever
	// a candidate set must be pruned down to a degree cap.
	Selection SelectionPolicy
}

// DefaultConfig mirrors the values the reference graph index ships with:
// M=16, efConstruction=200, cosine similarity, plain-closest selection.
func DefaultConfig() Config {
	return Config{
		M:                    16,
		M0:                   32,
		EfConstruction:       200,
		EfSearch:             64,
		CompressionThreshold: 256,
		Metric:               MetricCosine,
		Seed:                 42,
		Selection:            SelectClosest,
	}
}

// Index is the hierarchical small-world graph. Layer 0 holds every node;
// higher layers hold a geometrically shrinking subset, giving logarithmic
// expected search cost.
type Index struct {
	mu sync.RWMutex

	cfg Config
	ml  float64 // 1 / ln(M), the level-generation scale

	dim int

	// SoA vector storage: vectors[slot*dim : slot*dim+dim] is the vector for
	// that slot. docIDs[slot] is the caller-facing document id.
	vectors []float32
	docIDs  []uint32

	nodeLevel []int // highest layer each slot participates in
	layers    []*layer
	entry     uint32
	hasEntry  bool

	built bool
	rng   *rand.Rand

	dist func(a, b []float32) float32
}

// New constructs an empty index over vectors of the given dimension.
func New(dim int, cfg Config) *Index {
	if cfg.M == 0 {
		cfg = DefaultConfig()
	}
	return &Index{
		cfg:    cfg,
		ml:     1 / math.Log(float64(cfg.M)),
		dim:    dim,
		layers: []*layer{newLayer()},
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		dist:   cfg.Metric.distanceFunc(),
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
	size := int64(len(idx.vectors)) * 4
	size += int64(len(idx.docIDs)) * 4
	for _, l := range idx.layers {
		for _, nl := range l.neighbors {
			size += int64(nl.len()) * 4
		}
	}
	return size
}

func (idx *Index) Stats() ann.Stats {
	return ann.Stats{
		NumVectors:    idx.NumVectors(),
		Dimension:     idx.dim,
		SizeBytes:     idx.SizeBytes(),
		AlgorithmName: "hnsw",
	}
}

// randomLevel samples the layer a freshly inserted node will occupy, using
// the standard HNSW exponential-decay distribution: level = floor(-ln(u) * mL).
func (idx *Index) randomLevel() int {
	u := idx.rng.Float64()
	for u == 0 {
		u = idx.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * idx.ml))
}

func (idx *Index) vectorAt(slot uint32) []float32 {
	off := int(slot) * idx.dim
	return idx.vectors[off : off+idx.dim]
}

// Add inserts a vector before Build is called. Per spec, the graph is built
// incrementally (insertion IS the build protocol) so Add performs the full
// HNSW insertion immediately; Build only seals the index against further
// mutation and compresses cold adjacency lists.
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

	level := idx.randomLevel()
	idx.nodeLevel = append(idx.nodeLevel, level)
	for len(idx.layers) <= level {
		idx.layers = append(idx.layers, newLayer())
	}

	idx.insert(slot, level)
	return nil
}

// Build seals the index: no further Add calls are accepted, and read-only
// adjacency lists beyond the compression threshold are roaring-compressed.
func (idx *Index) Build() error {
	start := time.Now()
	err := observability.GetGlobalLogger().Operation("hnsw.Build", func() error {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		if len(idx.docIDs) == 0 {
			return errs.EmptyIndex()
		}
		for _, l := range idx.layers {
			for _, nl := range l.neighbors {
				nl.compressIfLarge(idx.cfg.CompressionThreshold)
			}
		}
		idx.built = true
		return nil
	})
	observability.GetGlobalMetrics().RecordBuild("hnsw", time.Since(start), err)
	if err == nil {
		observability.GetGlobalMetrics().UpdateIndexSize("hnsw", idx.NumVectors(), idx.SizeBytes())
	}
	return err
}
