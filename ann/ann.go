// Package ann defines the contract every dense index in this module
// implements: add vectors, build, search, report stats. Consumers that need
// to hold heterogeneous index types (graph-, tree-, quantization-, or
// hash-based) program against Index rather than a concrete type.
package ann

// Neighbor is one element of a search result: a document id and its
// distance to the query under the index's similarity metric (lower is
// better; cosine results are reported as 1 - cosine-similarity).
type Neighbor struct {
	DocID    uint32
	Distance float32
}

// Stats summarizes an index's current state.
type Stats struct {
	NumVectors    int
	Dimension     int
	SizeBytes     int64
	AlgorithmName string
}

// Index is the common life-cycle and result contract: add zero or more
// vectors, build once, then serve read-only searches.
//
//	add(doc_id, vector) -> add a vector before build
//	build()              -> seal the index; no further Add calls accepted
//	search(query, k)     -> up to k neighbors sorted ascending by distance
//	stats()              -> current index statistics
type Index interface {
	Add(docID uint32, vector []float32) error
	Build() error
	Search(query []float32, k int) ([]Neighbor, error)
	Stats() Stats
	Dimension() int
	NumVectors() int
	SizeBytes() int64
}
