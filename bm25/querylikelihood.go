package bm25

import (
	"math"
	"sort"

	"github.com/nearkit/retrieve/errs"
)

// SmoothingKind selects the language-model smoothing method.
type SmoothingKind int

const (
	// JelinekMercer interpolates document and corpus models: λ·P(t|D) + (1-λ)·P(t|C).
	JelinekMercer SmoothingKind = iota
	// Dirichlet uses Bayesian length-adaptive smoothing: (c(t,D) + μ·P(t|C)) / (|D| + μ).
	Dirichlet
)

// Smoothing selects a kind plus its single tuning parameter (Lambda for
// Jelinek-Mercer, Mu for Dirichlet).
type Smoothing struct {
	Kind   SmoothingKind
	Lambda float64
	Mu     float64
}

func JelinekMercerSmoothing(lambda float64) Smoothing {
	if lambda < 0 {
		lambda = 0
	}
	if lambda > 1 {
		lambda = 1
	}
	return Smoothing{Kind: JelinekMercer, Lambda: lambda}
}

func DirichletSmoothing(mu float64) Smoothing {
	if mu < 0 {
		mu = 0
	}
	return Smoothing{Kind: Dirichlet, Mu: mu}
}

// QueryLikelihoodParams selects the smoothing method for scoring.
type QueryLikelihoodParams struct {
	Smoothing Smoothing
}

func DefaultQueryLikelihoodParams() QueryLikelihoodParams {
	return QueryLikelihoodParams{Smoothing: DirichletSmoothing(1000.0)}
}

func corpusStats(idx *Index) (map[string]int, int) {
	freqs := make(map[string]int)
	total := 0
	for _, term := range idx.Terms() {
		sum := 0
		for _, tf := range idx.Postings(term) {
			sum += tf
		}
		freqs[term] = sum
		total += sum
	}
	return freqs, total
}

func corpusProbability(term string, freqs map[string]int, corpusSize int) float64 {
	if corpusSize == 0 {
		return 0
	}
	return float64(freqs[term]) / float64(corpusSize)
}

func scoreJelinekMercer(idx *Index, docID uint32, queryTerms []string, lambda float64, freqs map[string]int, corpusSize int) float64 {
	dl := float64(idx.DocLength(docID))
	var logScore float64
	for _, term := range queryTerms {
		var pDoc float64
		if dl > 0 {
			pDoc = float64(idx.TermFrequency(docID, term)) / dl
		}
		pCorpus := corpusProbability(term, freqs, corpusSize)
		pSmoothed := lambda*pDoc + (1-lambda)*pCorpus
		if pSmoothed > 0 {
			logScore += math.Log(pSmoothed)
		}
	}
	return logScore
}

func scoreDirichlet(idx *Index, docID uint32, queryTerms []string, mu float64, freqs map[string]int, corpusSize int) float64 {
	dl := float64(idx.DocLength(docID))
	var logScore float64
	for _, term := range queryTerms {
		tf := float64(idx.TermFrequency(docID, term))
		pCorpus := corpusProbability(term, freqs, corpusSize)
		pSmoothed := (tf + mu*pCorpus) / (dl + mu)
		if pSmoothed > 0 {
			logScore += math.Log(pSmoothed)
		}
	}
	return logScore
}

// RetrieveQueryLikelihood ranks documents by P(Q|D) under a unigram
// language model with the selected smoothing. Unlike BM25/TF-IDF,
// smoothing assigns non-zero probability to documents that match no
// query term, so when no posting list matches, every document is
// scored rather than returning an empty result.
func RetrieveQueryLikelihood(idx *Index, queryTerms []string, k int, params QueryLikelihoodParams) ([]Result, error) {
	if len(queryTerms) == 0 {
		return nil, errs.EmptyQuery()
	}
	if idx.NumDocs() == 0 {
		return nil, errs.EmptyIndex()
	}
	if k == 0 {
		return nil, nil
	}

	freqs, corpusSize := corpusStats(idx)

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
	if len(candidates) == 0 {
		candidates = idx.DocumentIDs()
	}

	results := make([]Result, 0, len(candidates))
	for _, docID := range candidates {
		var score float64
		switch params.Smoothing.Kind {
		case JelinekMercer:
			score = scoreJelinekMercer(idx, docID, queryTerms, params.Smoothing.Lambda, freqs, corpusSize)
		default:
			score = scoreDirichlet(idx, docID, queryTerms, params.Smoothing.Mu, freqs, corpusSize)
		}
		if score > math.Inf(-1) {
			results = append(results, Result{DocID: docID, Score: float32(score)})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}
