// Package bm25 implements lexical retrieval over tokenized text: a lazy
// BM25 inverted index, an eager precomputed-score variant sharing the
// same sparse-dot scoring path as the dense kernels, and the TF-IDF and
// query-likelihood scorers built atop the same posting-list structure.
package bm25

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/observability"
)

// Result is one scored document from a retrieval call.
type Result struct {
	DocID uint32
	Score float32
}

// Config tunes BM25's term-frequency saturation (K1) and length
// normalization (B) parameters.
type Config struct {
	K1 float64
	B  float64
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{K1: 1.2, B: 0.75}
}

// tokenize lowercases and splits on anything that isn't a letter or
// digit, dropping tokens shorter than two characters.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	filtered := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) >= 2 {
			filtered = append(filtered, w)
		}
	}
	return filtered
}

// Index is the lazy BM25 inverted index: term -> (doc_id -> term
// frequency) postings, plus per-document lengths and corpus-level
// aggregates. avgDocLength is cached and only recomputed on demand
// (the first query after a mutation), not on every Index call — the
// spec requires observable scores be unaffected by when the cache is
// populated, not that it be eagerly maintained.
type Index struct {
	mu sync.RWMutex

	cfg Config

	postings     map[string]map[uint32]int
	docLengths   map[uint32]int
	docCount     int
	totalLength  int
	avgDocLength float64
	avgDirty     bool
}

func New(cfg Config) *Index {
	if cfg.K1 == 0 && cfg.B == 0 {
		cfg = DefaultConfig()
	}
	return &Index{
		cfg:        cfg,
		postings:   make(map[string]map[uint32]int),
		docLengths: make(map[uint32]int),
		avgDirty:   true,
	}
}

// AddDocument tokenizes text and folds it into the index. Existing
// postings for docID, if any, are removed first so re-indexing a
// document behaves like an update.
func (idx *Index) AddDocument(docID uint32, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.docLengths[docID]; exists {
		idx.removeLocked(docID)
	}

	tokens := tokenize(text)
	termFreq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		termFreq[t]++
	}

	idx.docLengths[docID] = len(tokens)
	idx.docCount++
	idx.totalLength += len(tokens)

	for term, freq := range termFreq {
		if idx.postings[term] == nil {
			idx.postings[term] = make(map[uint32]int)
		}
		idx.postings[term][docID] = freq
	}

	idx.avgDirty = true
}

// Remove deletes a document from the index.
func (idx *Index) Remove(docID uint32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.docLengths[docID]; !exists {
		return
	}
	idx.removeLocked(docID)
	idx.avgDirty = true
}

func (idx *Index) removeLocked(docID uint32) {
	for term, postings := range idx.postings {
		if _, ok := postings[docID]; ok {
			delete(postings, docID)
			if len(postings) == 0 {
				delete(idx.postings, term)
			}
		}
	}
	idx.totalLength -= idx.docLengths[docID]
	delete(idx.docLengths, docID)
	idx.docCount--
}

// avgDocLengthLocked recomputes the cached average if dirty. Callers
// must hold idx.mu for writing if avgDirty may be true.
func (idx *Index) avgDocLengthLocked() float64 {
	if idx.avgDirty {
		if idx.docCount == 0 {
			idx.avgDocLength = 0
		} else {
			idx.avgDocLength = float64(idx.totalLength) / float64(idx.docCount)
		}
		idx.avgDirty = false
	}
	return idx.avgDocLength
}

func idf(numDocs, df float64) float64 {
	return math.Log((numDocs-df+0.5)/(df+0.5) + 1)
}

// Search scores candidate documents — the union of posting lists for
// every query term, each scored once per matching term — and returns
// the top k by BM25 score.
func (idx *Index) Search(query string, k int) (result []Result, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			observability.GetGlobalMetrics().RecordSearch("bm25-lazy", time.Since(start), len(result))
		}
	}()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil, errs.EmptyQuery()
	}
	if idx.docCount == 0 {
		return nil, errs.EmptyIndex()
	}

	avgdl := idx.avgDocLengthLocked()
	N := float64(idx.docCount)

	scores := make(map[uint32]float64)
	for _, term := range queryTerms {
		postings, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := float64(len(postings))
		termIDF := idf(N, df)

		for docID, tf := range postings {
			dl := float64(idx.docLengths[docID])
			numerator := float64(tf) * (idx.cfg.K1 + 1)
			denominator := float64(tf) + idx.cfg.K1*(1-idx.cfg.B+idx.cfg.B*(dl/avgdl))
			scores[docID] += termIDF * (numerator / denominator)
		}
	}

	return topK(scores, k), nil
}

func topK(scores map[uint32]float64, k int) []Result {
	results := make([]Result, 0, len(scores))
	for docID, score := range scores {
		results = append(results, Result{DocID: docID, Score: float32(score)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k < len(results) {
		results = results[:k]
	}
	return results
}

// NumDocs reports the current document count.
func (idx *Index) NumDocs() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.docCount
}

// DocLength reports a document's token count.
func (idx *Index) DocLength(docID uint32) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.docLengths[docID]
}

// DocFrequency reports how many documents contain term.
func (idx *Index) DocFrequency(term string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.postings[term])
}

// TermFrequency reports term's frequency within docID.
func (idx *Index) TermFrequency(docID uint32, term string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	postings, ok := idx.postings[term]
	if !ok {
		return 0
	}
	return postings[docID]
}

// DocumentIDs returns every indexed document id, in no particular order.
func (idx *Index) DocumentIDs() []uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := make([]uint32, 0, len(idx.docLengths))
	for id := range idx.docLengths {
		ids = append(ids, id)
	}
	return ids
}

// Postings exposes the term -> (doc_id -> term frequency) table for the
// TF-IDF and query-likelihood scorers built on top of this index.
func (idx *Index) Postings(term string) map[uint32]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.postings[term]
}

// Terms returns every term in the vocabulary.
func (idx *Index) Terms() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	terms := make([]string, 0, len(idx.postings))
	for t := range idx.postings {
		terms = append(terms, t)
	}
	return terms
}
