package trees

import (
	"time"

	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/kernel"
)

// BallTreeConfig tunes recursion limits.
type BallTreeConfig struct {
	MaxLeafSize int
	MaxDepth    int
}

func DefaultBallTreeConfig() BallTreeConfig {
	return BallTreeConfig{MaxLeafSize: 10, MaxDepth: 32}
}

type ballNode struct {
	center []float32
	radius float32
	slots  []uint32 // leaf only
	left   *ballNode
	right  *ballNode
}

func (n *ballNode) isLeaf() bool { return n.left == nil && n.right == nil }

// BallTree recursively bisects its members by distance to the two farthest
// points in the node, storing a centroid and enclosing radius per node —
// better suited than a k-d tree to medium dimensionality (20 < d < 100).
type BallTree struct {
	store
	cfg  BallTreeConfig
	root *ballNode
}

func NewBallTree(dim int, cfg BallTreeConfig) *BallTree {
	if cfg.MaxLeafSize == 0 {
		cfg = DefaultBallTreeConfig()
	}
	return &BallTree{store: store{dim: dim}, cfg: cfg}
}

func (t *BallTree) Add(docID uint32, vector []float32) error { return t.store.add(docID, vector) }
func (t *BallTree) Dimension() int                            { return t.dim }
func (t *BallTree) NumVectors() int                            { return t.numVectors() }
func (t *BallTree) SizeBytes() int64                           { return t.sizeBytes() }
func (t *BallTree) Stats() ann.Stats {
	return ann.Stats{NumVectors: t.NumVectors(), Dimension: t.dim, SizeBytes: t.SizeBytes(), AlgorithmName: "ball-tree"}
}

func (t *BallTree) Build() (err error) {
	start := time.Now()
	defer func() { recordBuild("ball-tree", start, err) }()
	if t.numVectors() == 0 {
		return errs.EmptyIndex()
	}
	t.root = t.buildNode(allSlots(t.numVectors()), 0)
	t.built = true
	return nil
}

func (t *BallTree) buildNode(slots []uint32, depth int) *ballNode {
	center, radius := t.centerAndRadius(slots)
	if len(slots) <= t.cfg.MaxLeafSize || depth >= t.cfg.MaxDepth {
		return &ballNode{center: center, radius: radius, slots: slots}
	}

	seed1, seed2 := t.farthestPair(slots)
	var left, right []uint32
	p1, p2 := t.vectorAt(seed1), t.vectorAt(seed2)
	for _, s := range slots {
		v := t.vectorAt(s)
		if kernel.L2(v, p1) < kernel.L2(v, p2) {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	if len(left) == 0 {
		left, right = right[len(right)-1:], right[:len(right)-1]
	}
	if len(right) == 0 {
		right, left = left[len(left)-1:], left[:len(left)-1]
	}

	return &ballNode{
		center: center,
		radius: radius,
		left:   t.buildNode(left, depth+1),
		right:  t.buildNode(right, depth+1),
	}
}

func (t *BallTree) centerAndRadius(slots []uint32) ([]float32, float32) {
	center := make([]float32, t.dim)
	for _, s := range slots {
		v := t.vectorAt(s)
		for j, x := range v {
			center[j] += x
		}
	}
	inv := 1 / float32(len(slots))
	for j := range center {
		center[j] *= inv
	}

	var radius float32
	for _, s := range slots {
		d := kernel.L2(t.vectorAt(s), center)
		if d > radius {
			radius = d
		}
	}
	return center, radius
}

func (t *BallTree) farthestPair(slots []uint32) (uint32, uint32) {
	var maxDist float32
	pair := [2]uint32{slots[0], slots[0]}
	for i := 0; i < len(slots); i++ {
		for j := i + 1; j < len(slots); j++ {
			d := kernel.L2(t.vectorAt(slots[i]), t.vectorAt(slots[j]))
			if d > maxDist {
				maxDist = d
				pair = [2]uint32{slots[i], slots[j]}
			}
		}
	}
	return pair[0], pair[1]
}

// Search collects every leaf's members reachable from the root (no
// pruning by ball radius, matching the classic baseline's behavior) and
// re-ranks by exact cosine distance.
func (t *BallTree) Search(query []float32, k int) (result []ann.Neighbor, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			recordSearch("ball-tree", start, len(result))
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

func (t *BallTree) collect(n *ballNode, out *[]uint32) {
	if n.isLeaf() {
		*out = append(*out, n.slots...)
		return
	}
	t.collect(n.left, out)
	t.collect(n.right, out)
}
