package pq

import (
	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/kernel"
	"github.com/nearkit/retrieve/kmeans"
)

// OnlineQuantizer adapts its codebooks to a streaming data set: each new
// vector nudges the centroid it lands on toward itself by LearningRate, and
// optionally decays every other centroid in that subspace by scaling it by
// (1 - ForgettingRate/100), letting stale codewords drift toward newer data without
// ever re-running a full k-means pass.
type OnlineQuantizer struct {
	dim           int
	numSubvectors int
	subvectorDim  int
	learningRate  float32
	forgettingRate float32
	codebooks     [][][]float32 // [sv][code][dim]
	counts        [][]int       // [sv][code]
}

// NewOnlinePQ validates its rate parameters the way the streaming quantizer
// in the original implementation does: learning rate in (0,1], forgetting
// rate in [0,1].
func NewOnlinePQ(dim, numSubvectors, codebookSize int, learningRate, forgettingRate float32) (*OnlineQuantizer, error) {
	if dim == 0 || numSubvectors == 0 || codebookSize == 0 {
		return nil, errs.Other("dimension, numSubvectors, and codebookSize must all be positive")
	}
	if dim%numSubvectors != 0 {
		return nil, errs.Other("dimension must be divisible by numSubvectors")
	}
	if learningRate <= 0 || learningRate > 1 {
		return nil, errs.Other("learning rate must be in (0, 1]")
	}
	if forgettingRate < 0 || forgettingRate > 1 {
		return nil, errs.Other("forgetting rate must be in [0, 1]")
	}

	counts := make([][]int, numSubvectors)
	for sv := range counts {
		counts[sv] = make([]int, codebookSize)
	}

	return &OnlineQuantizer{
		dim:            dim,
		numSubvectors:  numSubvectors,
		subvectorDim:   dim / numSubvectors,
		learningRate:   learningRate,
		forgettingRate: forgettingRate,
		counts:         counts,
	}, nil
}

// Initialize seeds the codebooks with k-means++ over an initial batch, then
// counts each vector's assignment so Update's online statistics start warm.
func (o *OnlineQuantizer) Initialize(buf []float32, n int) error {
	codebookSize := len(o.counts[0])
	o.codebooks = make([][][]float32, o.numSubvectors)

	kc := kmeans.DefaultConfig()
	for sv := 0; sv < o.numSubvectors; sv++ {
		sub := extractSubspace(buf, n, o.dim, sv, o.subvectorDim)
		result, err := kmeans.Fit(sub, n, o.subvectorDim, codebookSize, kc)
		if err != nil {
			return err
		}
		o.codebooks[sv] = result.Centroids
	}

	for i := 0; i < n; i++ {
		vec := buf[i*o.dim : (i+1)*o.dim]
		codes := o.quantizeInternal(vec)
		for sv, code := range codes {
			o.counts[sv][code]++
		}
	}
	return nil
}

func (o *OnlineQuantizer) quantizeInternal(vector []float32) []byte {
	codes := make([]byte, o.numSubvectors)
	for sv := 0; sv < o.numSubvectors; sv++ {
		start := sv * o.subvectorDim
		sub := vector[start : start+o.subvectorDim]
		best := 0
		bestDist := float32(1 << 30)
		for code, word := range o.codebooks[sv] {
			d := 1 - kernel.Cosine(sub, word)
			if d < bestDist {
				bestDist = d
				best = code
			}
		}
		codes[sv] = byte(best)
	}
	return codes
}

// Update quantizes vector, nudges the centroid each subvector landed on
// toward it by LearningRate, optionally decays the other centroids in that
// subspace by scaling them by (1 - ForgettingRate/100), and returns the
// assigned codes.
func (o *OnlineQuantizer) Update(vector []float32) ([]byte, error) {
	if len(vector) != o.dim {
		return nil, errs.DimensionMismatch(o.dim, len(vector))
	}

	codes := o.quantizeInternal(vector)
	for sv := 0; sv < o.numSubvectors; sv++ {
		start := sv * o.subvectorDim
		sub := vector[start : start+o.subvectorDim]
		code := int(codes[sv])

		centroid := o.codebooks[sv][code]
		for i, val := range sub {
			centroid[i] = (1-o.learningRate)*centroid[i] + o.learningRate*val
		}
		o.counts[sv][code]++

		if o.forgettingRate > 0 {
			decay := 1 - o.forgettingRate*0.01
			for other, word := range o.codebooks[sv] {
				if other == code {
					continue
				}
				for i := range word {
					word[i] *= decay
				}
			}
		}
	}
	return codes, nil
}

// UpdateBatch applies Update to each vector in order.
func (o *OnlineQuantizer) UpdateBatch(buf []float32, n int) ([][]byte, error) {
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		codes, err := o.Update(buf[i*o.dim : (i+1)*o.dim])
		if err != nil {
			return nil, err
		}
		out[i] = codes
	}
	return out, nil
}

// ApproximateDistance sums each subvector's cosine distance to its assigned
// codeword against the query.
func (o *OnlineQuantizer) ApproximateDistance(query []float32, codes []byte) float32 {
	var total float32
	for sv, code := range codes {
		start := sv * o.subvectorDim
		sub := query[start : start+o.subvectorDim]
		total += 1 - kernel.Cosine(sub, o.codebooks[sv][code])
	}
	return total
}

// CodebookCounts reports how many vectors have landed on each codeword,
// useful for monitoring codebook drift/imbalance.
func (o *OnlineQuantizer) CodebookCounts() [][]int { return o.counts }
