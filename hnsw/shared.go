package hnsw

// This file exposes the package's beam-search and compressed-adjacency
// primitives for reuse by the flatnsw package's single-layer graph, so the
// two graph variants share one implementation of beam search and
// roaring-style neighbor compression instead of forking them. Neighbor
// pruning is not exported here; flatnsw does its own.

// Candidate is a search result: a slot and its distance to the query.
type Candidate = candidate

// Slot returns the candidate's slot index.
func (c Candidate) Slot() uint32 { return c.slot }

// Dist returns the candidate's distance to the query.
func (c Candidate) Dist() float32 { return c.dist }

// SearchLayer runs a bounded beam search within a single adjacency graph.
func SearchLayer(query []float32, entryPoints []uint32, ef int, dist func(uint32) float32, neighbors func(uint32) []uint32) []Candidate {
	return searchLayer(query, entryPoints, ef, dist, neighbors)
}

// GreedyDescend walks toward the closest neighbor of entry, one hop at a time.
func GreedyDescend(query []float32, entry uint32, dist func(uint32) float32, neighbors func(uint32) []uint32) uint32 {
	return greedyDescend(query, entry, dist, neighbors)
}

// CompressedIDs is the roaring-style compressed slot-id container.
type CompressedIDs = compressedIDs

// Compress builds a CompressedIDs from a sorted, deduplicated id list.
func Compress(ids []uint32) CompressedIDs { return compress(ids) }

// Decompress returns the full sorted id list held by c.
func Decompress(c CompressedIDs) []uint32 { return decompress(c) }

// Metric and distance helpers, reused verbatim by flatnsw.
func (m Metric) DistanceFunc() func(a, b []float32) float32 { return m.distanceFunc() }
