package hnsw

import (
	"time"

	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/observability"
)

// Search returns up to k nearest neighbors of query, sorted closest-first.
// It greedily descends through every layer above 0 to find a single good
// entry point, then runs a bounded beam search (width efSearch, widened to
// at least k) at layer 0 and returns the closest k results.
func (idx *Index) Search(query []float32, k int) ([]ann.Neighbor, error) {
	start := time.Now()
	out, err := idx.search(query, k)
	if err == nil {
		observability.GetGlobalMetrics().RecordSearch("hnsw", time.Since(start), len(out))
	}
	return out, err
}

func (idx *Index) search(query []float32, k int) ([]ann.Neighbor, error) {
	if k <= 0 {
		return nil, errs.Other("k must be positive")
	}
	if len(query) != idx.dim {
		return nil, errs.DimensionMismatch(idx.dim, len(query))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.built {
		return nil, errs.NotBuilt("call Build before Search")
	}

	distTo := func(slot uint32) float32 { return idx.dist(query, idx.vectorAt(slot)) }

	current := idx.entry
	topLayer := len(idx.layers) - 1
	for l := topLayer; l > 0; l-- {
		current = greedyDescend(query, current, distTo, func(s uint32) []uint32 {
			return idx.layers[l].neighborsOf(s)
		})
		idx.layers[l].clearCaches()
	}

	ef := idx.cfg.EfSearch
	if ef < k {
		ef = k
	}
	results := searchLayer(query, []uint32{current}, ef, distTo, func(s uint32) []uint32 {
		return idx.layers[0].neighborsOf(s)
	})
	idx.layers[0].clearCaches()

	if len(results) > k {
		results = results[:k]
	}

	out := make([]ann.Neighbor, len(results))
	for i, c := range results {
		out[i] = ann.Neighbor{DocID: idx.docIDs[c.slot], Distance: c.dist}
	}
	return out, nil
}
