package trees

import (
	"time"

	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
)

// ForestConfig tunes the random-projection forest: each tree is grown
// independently with its own random hyperplanes, and search unions the
// candidates collected from every tree before the shared exact re-rank.
type ForestConfig struct {
	NumTrees    int
	MaxLeafSize int
	MaxDepth    int
}

func DefaultForestConfig() ForestConfig {
	return ForestConfig{NumTrees: 8, MaxLeafSize: 10, MaxDepth: 32}
}

// Forest is a bag of independent RPTrees (the Annoy-style baseline):
// candidates are collected from every tree and unioned before the final
// exact-distance re-rank, trading index size for substantially better
// recall than any single RP-tree.
type Forest struct {
	dim   int
	cfg   ForestConfig
	trees []*RPTree
	built bool
}

func NewForest(dim int, cfg ForestConfig, seed int64) *Forest {
	if cfg.NumTrees == 0 {
		cfg = DefaultForestConfig()
	}
	trees := make([]*RPTree, cfg.NumTrees)
	rpCfg := RPTreeConfig{MaxLeafSize: cfg.MaxLeafSize, MaxDepth: cfg.MaxDepth}
	for i := range trees {
		trees[i] = NewRPTree(dim, rpCfg, seed+int64(i))
	}
	return &Forest{dim: dim, cfg: cfg, trees: trees}
}

func (f *Forest) Add(docID uint32, vector []float32) error {
	for _, t := range f.trees {
		if err := t.Add(docID, vector); err != nil {
			return err
		}
	}
	return nil
}

func (f *Forest) Dimension() int { return f.dim }

func (f *Forest) NumVectors() int {
	if len(f.trees) == 0 {
		return 0
	}
	return f.trees[0].NumVectors()
}

func (f *Forest) SizeBytes() int64 {
	var total int64
	for _, t := range f.trees {
		total += t.SizeBytes()
	}
	return total
}

func (f *Forest) Stats() ann.Stats {
	return ann.Stats{NumVectors: f.NumVectors(), Dimension: f.dim, SizeBytes: f.SizeBytes(), AlgorithmName: "rp-forest"}
}

func (f *Forest) Build() (err error) {
	start := time.Now()
	defer func() { recordBuild("rp-forest", start, err) }()
	if f.NumVectors() == 0 {
		return errs.EmptyIndex()
	}
	for _, t := range f.trees {
		if err := t.Build(); err != nil {
			return err
		}
	}
	f.built = true
	return nil
}

func (f *Forest) Search(query []float32, k int) (result []ann.Neighbor, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			recordSearch("rp-forest", start, len(result))
		}
	}()
	if k <= 0 {
		return nil, errs.Other("k must be positive")
	}
	if len(query) != f.dim {
		return nil, errs.DimensionMismatch(f.dim, len(query))
	}
	if !f.built {
		return nil, errs.NotBuilt("index must be built before search")
	}

	var candidates []uint32
	for _, t := range f.trees {
		t.collect(t.root, query, &candidates)
	}
	return f.trees[0].rerank(query, candidates, k, cosineDistance), nil
}
