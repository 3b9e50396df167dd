package trees

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
)

// RPTreeConfig tunes recursion limits.
type RPTreeConfig struct {
	MaxLeafSize int
	MaxDepth    int
}

func DefaultRPTreeConfig() RPTreeConfig {
	return RPTreeConfig{MaxLeafSize: 10, MaxDepth: 32}
}

type rpNode struct {
	slots      []uint32 // leaf only
	hyperplane []float32
	threshold  float32
	left       *rpNode
	right      *rpNode
}

func (n *rpNode) isLeaf() bool { return n.left == nil && n.right == nil }

// RPTree splits, at each internal node, by projecting members onto a
// random unit hyperplane and thresholding at the median projection.
type RPTree struct {
	store
	cfg  RPTreeConfig
	rng  *rand.Rand
	root *rpNode
}

func NewRPTree(dim int, cfg RPTreeConfig, seed int64) *RPTree {
	if cfg.MaxLeafSize == 0 {
		cfg = DefaultRPTreeConfig()
	}
	return &RPTree{store: store{dim: dim}, cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

func (t *RPTree) Add(docID uint32, vector []float32) error { return t.store.add(docID, vector) }
func (t *RPTree) Dimension() int                            { return t.dim }
func (t *RPTree) NumVectors() int                            { return t.numVectors() }
func (t *RPTree) SizeBytes() int64                           { return t.sizeBytes() }
func (t *RPTree) Stats() ann.Stats {
	return ann.Stats{NumVectors: t.NumVectors(), Dimension: t.dim, SizeBytes: t.SizeBytes(), AlgorithmName: "rp-tree"}
}

func (t *RPTree) Build() (err error) {
	start := time.Now()
	defer func() { recordBuild("rp-tree", start, err) }()
	if t.numVectors() == 0 {
		return errs.EmptyIndex()
	}
	t.root = t.buildNode(allSlots(t.numVectors()), 0)
	t.built = true
	return nil
}

func (t *RPTree) randomHyperplane() []float32 {
	h := make([]float32, t.dim)
	var normSq float32
	for i := range h {
		h[i] = t.rng.Float32()*2 - 1
		normSq += h[i] * h[i]
	}
	if normSq == 0 {
		h[0] = 1
		return h
	}
	inv := 1 / float32(math.Sqrt(float64(normSq)))
	for i := range h {
		h[i] *= inv
	}
	return h
}

func (t *RPTree) buildNode(slots []uint32, depth int) *rpNode {
	if len(slots) <= t.cfg.MaxLeafSize || depth >= t.cfg.MaxDepth {
		return &rpNode{slots: slots}
	}

	hyperplane := t.randomHyperplane()
	projections := make([]float32, len(slots))
	for i, s := range slots {
		projections[i] = dot(t.vectorAt(s), hyperplane)
	}
	sorted := append([]float32(nil), projections...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	threshold := sorted[len(sorted)/2]

	var left, right []uint32
	for i, s := range slots {
		if projections[i] < threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &rpNode{slots: slots}
	}

	return &rpNode{
		hyperplane: hyperplane,
		threshold:  threshold,
		left:       t.buildNode(left, depth+1),
		right:      t.buildNode(right, depth+1),
	}
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// Search collects candidates by visiting both subtrees unconditionally
// (traversal order follows the query's projection, but pruning is not
// applied), then re-ranks by exact cosine distance.
func (t *RPTree) Search(query []float32, k int) (result []ann.Neighbor, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			recordSearch("rp-tree", start, len(result))
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
	t.collect(t.root, query, &candidates)
	return t.rerank(query, candidates, k, cosineDistance), nil
}

func (t *RPTree) collect(n *rpNode, query []float32, out *[]uint32) {
	if n.isLeaf() {
		*out = append(*out, n.slots...)
		return
	}
	proj := dot(query, n.hyperplane)
	if proj < n.threshold {
		t.collect(n.left, query, out)
		t.collect(n.right, query, out)
	} else {
		t.collect(n.right, query, out)
		t.collect(n.left, query, out)
	}
}
