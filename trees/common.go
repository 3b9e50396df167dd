// Package trees implements the space-partitioning baseline indexes: k-d
// tree, ball tree, random-projection tree and forest, k-means tree, and LSH.
// Every index shares the same SoA vector storage and the same final step —
// collect candidate slots from the tree/hash structure, then re-rank them
// by exact distance against the stored vectors — varying only in how
// candidates are collected.
package trees

import (
	"sort"
	"time"

	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/kernel"
	"github.com/nearkit/retrieve/observability"
)

// store holds the flat vector buffer shared by every tree variant.
type store struct {
	dim     int
	docIDs  []uint32
	vectors []float32
	built   bool
}

func (s *store) add(docID uint32, vector []float32) error {
	if len(vector) != s.dim {
		return errs.DimensionMismatch(s.dim, len(vector))
	}
	if s.built {
		return errs.NotBuilt("index sealed: cannot Add after Build")
	}
	s.docIDs = append(s.docIDs, docID)
	s.vectors = append(s.vectors, vector...)
	return nil
}

func (s *store) vectorAt(slot uint32) []float32 {
	off := int(slot) * s.dim
	return s.vectors[off : off+s.dim]
}

func (s *store) numVectors() int { return len(s.docIDs) }

func (s *store) sizeBytes() int64 {
	return int64(len(s.vectors))*4 + int64(len(s.docIDs))*4
}

// rerank scores every candidate slot by exact distance to query and
// returns the closest k, sorted ascending. This is the "final re-ranking
// uses exact distance against stored vectors" step every tree baseline
// shares.
func (s *store) rerank(query []float32, candidates []uint32, k int, dist func(a, b []float32) float32) []ann.Neighbor {
	seen := make(map[uint32]bool, len(candidates))
	type scored struct {
		slot uint32
		d    float32
	}
	var results []scored
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		results = append(results, scored{slot: c, d: dist(query, s.vectorAt(c))})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].d < results[j].d })
	if len(results) > k {
		results = results[:k]
	}
	out := make([]ann.Neighbor, len(results))
	for i, r := range results {
		out[i] = ann.Neighbor{DocID: s.docIDs[r.slot], Distance: r.d}
	}
	return out
}

// cosineDistance reports 1 - cosine-similarity, matching the convention
// used throughout the module: smaller is closer.
func cosineDistance(a, b []float32) float32 { return 1 - kernel.Cosine(a, b) }

// recordBuild reports a completed Build call's duration/outcome under
// algorithm's name, shared by every tree variant's Build method.
func recordBuild(algorithm string, start time.Time, err error) {
	observability.GetGlobalMetrics().RecordBuild(algorithm, time.Since(start), err)
}

// recordSearch reports a completed Search call's latency/result size under
// algorithm's name, shared by every tree variant's Search method.
func recordSearch(algorithm string, start time.Time, resultSize int) {
	observability.GetGlobalMetrics().RecordSearch(algorithm, time.Since(start), resultSize)
}

func allSlots(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}
