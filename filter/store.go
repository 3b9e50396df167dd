package filter

import "sort"

// Store maps document id to metadata, supporting predicate matching and
// facet enumeration over a single field's category values.
type Store struct {
	metadata map[uint32]Metadata
}

func NewStore() *Store {
	return &Store{metadata: make(map[uint32]Metadata)}
}

// Add stores (or replaces) metadata for a document.
func (s *Store) Add(docID uint32, metadata Metadata) {
	s.metadata[docID] = metadata
}

// Remove deletes a document's metadata.
func (s *Store) Remove(docID uint32) {
	delete(s.metadata, docID)
}

// Get returns a document's metadata, or nil if absent.
func (s *Store) Get(docID uint32) Metadata {
	return s.metadata[docID]
}

// Matches reports whether a document's stored metadata satisfies the
// predicate; documents with no metadata never match.
func (s *Store) Matches(docID uint32, predicate Predicate) bool {
	metadata, ok := s.metadata[docID]
	return ok && predicate.Match(metadata)
}

// Selectivity estimates the fraction of stored documents matching a
// predicate. Returns false if the store is empty.
func (s *Store) Selectivity(predicate Predicate) (float32, bool) {
	if len(s.metadata) == 0 {
		return 0, false
	}
	matching := 0
	for _, metadata := range s.metadata {
		if predicate.Match(metadata) {
			matching++
		}
	}
	return float32(matching) / float32(len(s.metadata)), true
}

// FacetCount is one (value, count) pair from a facet enumeration.
type FacetCount struct {
	Value interface{}
	Count int
}

// Facets enumerates every distinct value held by field across stored
// documents and counts how many documents carry each, sorted by count
// descending. If predicate is non-nil, only documents it matches
// contribute to the counts — "filtered faceting" over the current
// result set.
func Facets(s *Store, field string, predicate Predicate) []FacetCount {
	counts := make(map[interface{}]int)
	for _, metadata := range s.metadata {
		if predicate != nil && !predicate.Match(metadata) {
			continue
		}
		value, ok := metadata[field]
		if !ok {
			continue
		}
		counts[value]++
	}

	result := make([]FacetCount, 0, len(counts))
	for value, count := range counts {
		result = append(result, FacetCount{Value: value, Count: count})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Count > result[j].Count })
	return result
}
