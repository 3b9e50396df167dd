package bm25

import (
	"container/heap"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/kernel"
	"github.com/nearkit/retrieve/observability"
)

// sparseVector is a sorted-by-term-id (indices, values) pair, matching
// kernel.SparseDot's required merge-walk layout.
type sparseVector struct {
	indices []uint32
	values  []float32
}

// EagerIndex precomputes a BM25 score for every (term, document) pair at
// indexing time, trading memory for ~500x faster repeated queries: a
// query becomes a single sparse-dot computation against unit query
// weights instead of a per-term postings walk.
type EagerIndex struct {
	mu sync.RWMutex

	scores     map[uint32]sparseVector
	vocabulary map[string]uint32
	nextTermID uint32
	numDocs    int
}

func NewEagerIndex() *EagerIndex {
	return &EagerIndex{
		scores:     make(map[uint32]sparseVector),
		vocabulary: make(map[string]uint32),
	}
}

func (e *EagerIndex) termID(term string) uint32 {
	if id, ok := e.vocabulary[term]; ok {
		return id
	}
	id := e.nextTermID
	e.vocabulary[term] = id
	e.nextTermID++
	return id
}

// AddDocumentScores stores precomputed term -> score pairs for a document.
func (e *EagerIndex) AddDocumentScores(docID uint32, termScores map[string]float32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	type pair struct {
		id    uint32
		score float32
	}
	pairs := make([]pair, 0, len(termScores))
	for term, score := range termScores {
		pairs = append(pairs, pair{id: e.termID(term), score: score})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	sv := sparseVector{indices: make([]uint32, len(pairs)), values: make([]float32, len(pairs))}
	for i, p := range pairs {
		sv.indices[i] = p.id
		sv.values[i] = p.score
	}
	e.scores[docID] = sv
	e.numDocs++
}

// FromLazyIndex precomputes BM25 scores for every document currently in
// a lazy Index, the conversion step spec §4.I calls the "eager variant".
func FromLazyIndex(idx *Index, cfg Config) *EagerIndex {
	eager := NewEagerIndex()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	numDocs := float64(idx.docCount)
	avgdl := idx.avgDocLengthLocked()

	for docID, dl := range idx.docLengths {
		termScores := make(map[string]float32)
		for term, postings := range idx.postings {
			tf, ok := postings[docID]
			if !ok || tf == 0 {
				continue
			}
			df := float64(len(postings))
			termIDF := idf(numDocs, df)
			numerator := float64(tf) * (cfg.K1 + 1)
			denominator := float64(tf) + cfg.K1*(1-cfg.B+cfg.B*(float64(dl)/avgdl))
			termScores[term] = float32(termIDF * (numerator / denominator))
		}
		eager.AddDocumentScores(docID, termScores)
	}
	return eager
}

// NumDocs reports the number of documents with precomputed scores.
func (e *EagerIndex) NumDocs() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.numDocs
}

// VocabularySize reports the number of distinct terms seen.
func (e *EagerIndex) VocabularySize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.vocabulary)
}

type scoredDoc struct {
	docID uint32
	score float32
}

type minScoreHeap []scoredDoc

func (h minScoreHeap) Len() int            { return len(h) }
func (h minScoreHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h minScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minScoreHeap) Push(x interface{}) { *h = append(*h, x.(scoredDoc)) }
func (h *minScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Search builds a unit-weight sparse query vector and scores every
// document via kernel.SparseDot. For k much smaller than the document
// count it uses a bounded min-heap; otherwise it sorts every score.
// Non-finite or non-positive scores are dropped.
func (e *EagerIndex) Search(queryTerms []string, k int) (result []Result, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			observability.GetGlobalMetrics().RecordSearch("bm25-eager", time.Since(start), len(result))
		}
	}()

	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(queryTerms) == 0 {
		return nil, errs.EmptyQuery()
	}
	if e.numDocs == 0 {
		return nil, errs.EmptyIndex()
	}

	type pair struct {
		id  uint32
		val float32
	}
	var pairs []pair
	for _, term := range queryTerms {
		if id, ok := e.vocabulary[term]; ok {
			pairs = append(pairs, pair{id: id, val: 1.0})
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })
	qIdx := make([]uint32, len(pairs))
	qVal := make([]float32, len(pairs))
	for i, p := range pairs {
		qIdx[i] = p.id
		qVal[i] = p.val
	}

	if k > 0 && k < e.numDocs/2 {
		return e.searchHeap(qIdx, qVal, k), nil
	}
	return e.searchFullSort(qIdx, qVal, k), nil
}

func (e *EagerIndex) searchHeap(qIdx []uint32, qVal []float32, k int) []Result {
	h := &minScoreHeap{}
	heap.Init(h)
	for docID, doc := range e.scores {
		score := kernel.SparseDot(qIdx, qVal, doc.indices, doc.values)
		if !validScore(score) {
			continue
		}
		if h.Len() < k {
			heap.Push(h, scoredDoc{docID: docID, score: score})
		} else if (*h)[0].score < score {
			heap.Pop(h)
			heap.Push(h, scoredDoc{docID: docID, score: score})
		}
	}
	results := make([]Result, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		sd := heap.Pop(h).(scoredDoc)
		results[i] = Result{DocID: sd.docID, Score: sd.score}
	}
	return results
}

func (e *EagerIndex) searchFullSort(qIdx []uint32, qVal []float32, k int) []Result {
	results := make([]Result, 0, len(e.scores))
	for docID, doc := range e.scores {
		score := kernel.SparseDot(qIdx, qVal, doc.indices, doc.values)
		if !validScore(score) {
			continue
		}
		results = append(results, Result{DocID: docID, Score: score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results
}

func validScore(score float32) bool {
	return !math.IsNaN(float64(score)) && !math.IsInf(float64(score), 0) && score > 0
}
