package trees

import (
	"time"

	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/kmeans"
)

// KMeansTreeConfig tunes recursion limits and branching factor.
type KMeansTreeConfig struct {
	Branching   int
	MaxLeafSize int
	MaxDepth    int
	KMeans      kmeans.Config
}

func DefaultKMeansTreeConfig() KMeansTreeConfig {
	cfg := kmeans.DefaultConfig()
	cfg.MaxIterations = 20
	return KMeansTreeConfig{Branching: 4, MaxLeafSize: 10, MaxDepth: 16, KMeans: cfg}
}

type kmeansNode struct {
	slots     []uint32 // leaf only
	centroids [][]float32
	children  []*kmeansNode
}

func (n *kmeansNode) isLeaf() bool { return len(n.children) == 0 }

// KMeansTree recursively partitions its members with small-k k-means at
// each internal node (branching factor Branching). Search visits every
// child of every internal node; it does not choose children by centroid
// distance.
type KMeansTree struct {
	store
	cfg  KMeansTreeConfig
	root *kmeansNode
}

func NewKMeansTree(dim int, cfg KMeansTreeConfig) *KMeansTree {
	if cfg.Branching == 0 {
		cfg = DefaultKMeansTreeConfig()
	}
	return &KMeansTree{store: store{dim: dim}, cfg: cfg}
}

func (t *KMeansTree) Add(docID uint32, vector []float32) error { return t.store.add(docID, vector) }
func (t *KMeansTree) Dimension() int                            { return t.dim }
func (t *KMeansTree) NumVectors() int                            { return t.numVectors() }
func (t *KMeansTree) SizeBytes() int64                           { return t.sizeBytes() }
func (t *KMeansTree) Stats() ann.Stats {
	return ann.Stats{NumVectors: t.NumVectors(), Dimension: t.dim, SizeBytes: t.SizeBytes(), AlgorithmName: "kmeans-tree"}
}

func (t *KMeansTree) Build() (err error) {
	start := time.Now()
	defer func() { recordBuild("kmeans-tree", start, err) }()
	if t.numVectors() == 0 {
		return errs.EmptyIndex()
	}
	t.root = t.buildNode(allSlots(t.numVectors()), 0)
	t.built = true
	return nil
}

func (t *KMeansTree) buildNode(slots []uint32, depth int) *kmeansNode {
	branching := t.cfg.Branching
	if len(slots) <= t.cfg.MaxLeafSize || depth >= t.cfg.MaxDepth || len(slots) <= branching {
		return &kmeansNode{slots: slots}
	}

	buf := make([]float32, 0, len(slots)*t.dim)
	for _, s := range slots {
		buf = append(buf, t.vectorAt(s)...)
	}
	result, err := kmeans.Fit(buf, len(slots), t.dim, branching, t.cfg.KMeans)
	if err != nil {
		return &kmeansNode{slots: slots}
	}

	buckets := make([][]uint32, branching)
	for i, s := range slots {
		c := result.Assignment[i]
		buckets[c] = append(buckets[c], s)
	}

	nonEmpty := 0
	for _, b := range buckets {
		if len(b) > 0 {
			nonEmpty++
		}
	}
	if nonEmpty <= 1 {
		return &kmeansNode{slots: slots}
	}

	children := make([]*kmeansNode, 0, branching)
	centroids := make([][]float32, 0, branching)
	for c, b := range buckets {
		if len(b) == 0 {
			continue
		}
		children = append(children, t.buildNode(b, depth+1))
		centroids = append(centroids, result.Centroids[c])
	}

	return &kmeansNode{centroids: centroids, children: children}
}

// Search descends, at each internal node, into every child whose centroid
// falls within the node's candidate set — in practice all children are
// visited (no pruning), matching the baseline's unconditional-traversal
// contract — then re-ranks the union by exact cosine distance.
func (t *KMeansTree) Search(query []float32, k int) (result []ann.Neighbor, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			recordSearch("kmeans-tree", start, len(result))
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

func (t *KMeansTree) collect(n *kmeansNode, out *[]uint32) {
	if n.isLeaf() {
		*out = append(*out, n.slots...)
		return
	}
	for _, c := range n.children {
		t.collect(c, out)
	}
}
