package hnsw

import "github.com/nearkit/retrieve/ann"

// SearchBatch runs Search independently for each query, matching the
// reference index's batch convenience wrapper. There is no internal task
// runtime spun up for this: per the module's concurrency model, batches run
// sequentially on the caller's goroutine, and callers wanting parallelism
// fan out across goroutines themselves.
func (idx *Index) SearchBatch(queries [][]float32, k int) ([][]ann.Neighbor, error) {
	out := make([][]ann.Neighbor, len(queries))
	for i, q := range queries {
		res, err := idx.Search(q, k)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

// AddBatch appends every vector in order, stopping at the first error.
func (idx *Index) AddBatch(docIDs []uint32, vectors [][]float32) error {
	for i, v := range vectors {
		if err := idx.Add(docIDs[i], v); err != nil {
			return err
		}
	}
	return nil
}
