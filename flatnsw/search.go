package flatnsw

import (
	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/hnsw"
)

// Search runs a single bounded beam search over the flat graph — there is
// no layer hierarchy to descend through first.
func (idx *Index) Search(query []float32, k int) ([]ann.Neighbor, error) {
	if k <= 0 {
		return nil, errs.Other("k must be positive")
	}
	if len(query) != idx.dim {
		return nil, errs.DimensionMismatch(idx.dim, len(query))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.docIDs) == 0 {
		return nil, errs.EmptyIndex()
	}

	distTo := func(slot uint32) float32 { return idx.dist(query, idx.vectorAt(slot)) }
	neighborsOf := func(s uint32) []uint32 { return idx.neighbors[s].slots() }

	ef := idx.cfg.EfSearch
	if ef < k {
		ef = k
	}
	results := hnsw.SearchLayer(query, []uint32{0}, ef, distTo, neighborsOf)
	if len(results) > k {
		results = results[:k]
	}

	out := make([]ann.Neighbor, len(results))
	for i, c := range results {
		out[i] = ann.Neighbor{DocID: idx.docIDs[c.Slot()], Distance: c.Dist()}
	}
	return out, nil
}
