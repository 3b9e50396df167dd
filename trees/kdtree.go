package trees

import (
	"sort"
	"time"

	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
)

// KDTreeConfig tunes recursion limits.
type KDTreeConfig struct {
	MaxLeafSize int
	MaxDepth    int
}

func DefaultKDTreeConfig() KDTreeConfig {
	return KDTreeConfig{MaxLeafSize: 10, MaxDepth: 32}
}

type kdNode struct {
	// leaf
	slots []uint32
	// internal
	axis      int
	threshold float32
	left      *kdNode
	right     *kdNode
}

func (n *kdNode) isLeaf() bool { return n.left == nil && n.right == nil }

// KDTree splits, at each internal node, on the coordinate with maximum
// variance among the node's members, using the median value along that
// axis as the threshold.
type KDTree struct {
	store
	cfg  KDTreeConfig
	root *kdNode
}

func NewKDTree(dim int, cfg KDTreeConfig) *KDTree {
	if cfg.MaxLeafSize == 0 {
		cfg = DefaultKDTreeConfig()
	}
	return &KDTree{store: store{dim: dim}, cfg: cfg}
}

func (t *KDTree) Add(docID uint32, vector []float32) error { return t.store.add(docID, vector) }
func (t *KDTree) Dimension() int                            { return t.dim }
func (t *KDTree) NumVectors() int                            { return t.numVectors() }
func (t *KDTree) SizeBytes() int64                           { return t.sizeBytes() }
func (t *KDTree) Stats() ann.Stats {
	return ann.Stats{NumVectors: t.NumVectors(), Dimension: t.dim, SizeBytes: t.SizeBytes(), AlgorithmName: "kd-tree"}
}

func (t *KDTree) Build() (err error) {
	start := time.Now()
	defer func() { recordBuild("kd-tree", start, err) }()
	if t.numVectors() == 0 {
		return errs.EmptyIndex()
	}
	t.root = t.buildNode(allSlots(t.numVectors()), 0)
	t.built = true
	return nil
}

func (t *KDTree) buildNode(slots []uint32, depth int) *kdNode {
	if len(slots) <= t.cfg.MaxLeafSize || depth >= t.cfg.MaxDepth {
		return &kdNode{slots: slots}
	}

	axis := t.maxVarianceAxis(slots)
	sortedIdx := append([]uint32(nil), slots...)
	sort.Slice(sortedIdx, func(i, j int) bool {
		return t.vectorAt(sortedIdx[i])[axis] < t.vectorAt(sortedIdx[j])[axis]
	})
	median := sortedIdx[len(sortedIdx)/2]
	threshold := t.vectorAt(median)[axis]

	var left, right []uint32
	for _, s := range slots {
		if t.vectorAt(s)[axis] < threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &kdNode{slots: slots}
	}

	return &kdNode{
		axis:      axis,
		threshold: threshold,
		left:      t.buildNode(left, depth+1),
		right:     t.buildNode(right, depth+1),
	}
}

func (t *KDTree) maxVarianceAxis(slots []uint32) int {
	mean := make([]float32, t.dim)
	for _, s := range slots {
		v := t.vectorAt(s)
		for j, x := range v {
			mean[j] += x
		}
	}
	inv := 1 / float32(len(slots))
	for j := range mean {
		mean[j] *= inv
	}

	variance := make([]float32, t.dim)
	for _, s := range slots {
		v := t.vectorAt(s)
		for j, x := range v {
			diff := x - mean[j]
			variance[j] += diff * diff
		}
	}

	best := 0
	for j := 1; j < t.dim; j++ {
		if variance[j] > variance[best] {
			best = j
		}
	}
	return best
}

// Search collects candidates by visiting both children unconditionally at
// every internal node, without pruning by best-so-far distance, then
// re-ranks the full candidate set by exact cosine distance. This mirrors
// the observable contract of the original baseline exactly: the traversal
// is a correctness baseline, not a pruned search.
func (t *KDTree) Search(query []float32, k int) (result []ann.Neighbor, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			recordSearch("kd-tree", start, len(result))
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
	t.collect(t.root, &candidates)
	return t.rerank(query, candidates, k, cosineDistance), nil
}

func (t *KDTree) collect(n *kdNode, out *[]uint32) {
	if n.isLeaf() {
		*out = append(*out, n.slots...)
		return
	}
	t.collect(n.left, out)
	t.collect(n.right, out)
}
