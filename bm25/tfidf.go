package bm25

import (
	"math"
	"sort"

	"github.com/nearkit/retrieve/errs"
)

// TFVariant selects how raw term counts are converted to term frequency.
type TFVariant int

const (
	// TFLinear uses the raw count.
	TFLinear TFVariant = iota
	// TFLogScaled uses 1 + ln(count), damping the effect of high counts.
	TFLogScaled
)

// IDFVariant selects the inverse-document-frequency formula.
type IDFVariant int

const (
	// IDFStandard is ln(N / df).
	IDFStandard IDFVariant = iota
	// IDFSmoothed is the BM25-style ln(1 + (N - df + 0.5) / (df + 0.5)).
	IDFSmoothed
)

// TFIDFParams selects the TF and IDF variants used by ScoreTFIDF.
type TFIDFParams struct {
	TF  TFVariant
	IDF IDFVariant
}

func DefaultTFIDFParams() TFIDFParams {
	return TFIDFParams{TF: TFLogScaled, IDF: IDFSmoothed}
}

func computeTF(count int, variant TFVariant) float64 {
	if count == 0 {
		return 0
	}
	switch variant {
	case TFLogScaled:
		return 1 + math.Log(float64(count))
	default:
		return float64(count)
	}
}

func computeIDF(numDocs, df float64, variant IDFVariant) float64 {
	if df == 0 {
		return 0
	}
	switch variant {
	case IDFSmoothed:
		return math.Log(1 + (numDocs-df+0.5)/(df+0.5))
	default:
		return math.Log(numDocs / df)
	}
}

// ScoreTFIDF scores a single document against query terms: score = sum
// over matching terms of tf(term, doc) * idf(term).
func ScoreTFIDF(idx *Index, docID uint32, queryTerms []string, params TFIDFParams) float32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var score float64
	numDocs := float64(idx.docCount)
	for _, term := range queryTerms {
		postings, ok := idx.postings[term]
		if !ok {
			continue
		}
		count := postings[docID]
		if count == 0 {
			continue
		}
		tf := computeTF(count, params.TF)
		idfVal := computeIDF(numDocs, float64(len(postings)), params.IDF)
		if idfVal == 0 {
			continue
		}
		score += tf * idfVal
	}
	return float32(score)
}

// RetrieveTFIDF scores every document that matches at least one query
// term and returns the top k by TF-IDF score, descending.
func RetrieveTFIDF(idx *Index, queryTerms []string, k int, params TFIDFParams) ([]Result, error) {
	if len(queryTerms) == 0 {
		return nil, errs.EmptyQuery()
	}
	if idx.NumDocs() == 0 {
		return nil, errs.EmptyIndex()
	}
	if k == 0 {
		return nil, nil
	}

	seen := make(map[uint32]bool)
	var candidates []uint32
	for _, term := range queryTerms {
		for docID := range idx.Postings(term) {
			if !seen[docID] {
				seen[docID] = true
				candidates = append(candidates, docID)
			}
		}
	}

	results := make([]Result, len(candidates))
	for i, docID := range candidates {
		results[i] = Result{DocID: docID, Score: ScoreTFIDF(idx, docID, queryTerms, params)}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}
