// Package pq implements product quantization: each vector is split into
// numSubvectors equal-width subvectors, and each subspace gets its own
// k-means codebook of 2^bitsPerCode centroids. An encoded vector is then
// just one byte (for bitsPerCode <= 8) per subvector — the centroid index —
// giving compression ratios of 8-32x with modest recall loss, and an
// asymmetric query-to-code distance that costs O(numSubvectors) table
// lookups instead of O(dimensions) float arithmetic.
package pq

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/kernel"
	"github.com/nearkit/retrieve/kmeans"
)

// Metric selects the distance used both to train subspace codebooks and to
// score encoded vectors.
type Metric int

const (
	MetricL2 Metric = iota
	MetricCosine
	MetricDot
)

// Config tunes a Quantizer's training.
type Config struct {
	NumSubvectors int
	BitsPerCode   int // codes per subvector = 2^BitsPerCode, max 8
	Metric        Metric
	KMeans        kmeans.Config
}

// DefaultConfig mirrors the reference quantizer's defaults: 25 Lloyd
// iterations, Euclidean distance, a fixed seed for reproducible training.
func DefaultConfig() Config {
	kc := kmeans.DefaultConfig()
	kc.MaxIterations = 25
	return Config{
		NumSubvectors: 8,
		BitsPerCode:   8,
		Metric:        MetricL2,
		KMeans:        kc,
	}
}

// Quantizer holds one trained codebook per subvector.
type Quantizer struct {
	cfg          Config
	subvectorDim int
	codebooks    [][][]float32 // codebooks[sv][code] = centroid
}

func New(cfg Config) *Quantizer {
	return &Quantizer{cfg: cfg}
}

func (q *Quantizer) kmeansMetric() kmeans.Metric {
	if q.cfg.Metric == MetricCosine {
		return kmeans.MetricCosine
	}
	return kmeans.MetricL2
}

// Train fits one codebook per subspace from n vectors of dimension d packed
// contiguously in buf.
func (q *Quantizer) Train(buf []float32, n, d int) error {
	if n == 0 {
		return errs.EmptyQuery()
	}
	if d%q.cfg.NumSubvectors != 0 {
		return errs.Other("dimension must be divisible by numSubvectors")
	}
	q.subvectorDim = d / q.cfg.NumSubvectors
	numCodes := 1 << uint(q.cfg.BitsPerCode)
	if numCodes > n {
		return errs.Other("fewer training vectors than codes requested")
	}

	q.codebooks = make([][][]float32, q.cfg.NumSubvectors)
	kc := q.cfg.KMeans
	kc.Metric = q.kmeansMetric()

	for sv := 0; sv < q.cfg.NumSubvectors; sv++ {
		sub := extractSubspace(buf, n, d, sv, q.subvectorDim)
		result, err := kmeans.Fit(sub, n, q.subvectorDim, numCodes, kc)
		if err != nil {
			return errs.Other("subspace " + strconv.Itoa(sv) + " training failed: " + err.Error())
		}
		q.codebooks[sv] = result.Centroids
	}
	return nil
}

func extractSubspace(buf []float32, n, d, sv, subDim int) []float32 {
	out := make([]float32, n*subDim)
	start := sv * subDim
	for i := 0; i < n; i++ {
		copy(out[i*subDim:(i+1)*subDim], buf[i*d+start:i*d+start+subDim])
	}
	return out
}

func (q *Quantizer) subDist(a, b []float32) float32 {
	switch q.cfg.Metric {
	case MetricCosine:
		return 1 - kernel.Cosine(a, b)
	case MetricDot:
		return -kernel.Dot(a, b)
	default:
		return kernel.L2(a, b)
	}
}

// Encode assigns each subvector to its nearest codebook centroid.
func (q *Quantizer) Encode(vector []float32) []byte {
	codes := make([]byte, q.cfg.NumSubvectors)
	for sv := 0; sv < q.cfg.NumSubvectors; sv++ {
		start := sv * q.subvectorDim
		sub := vector[start : start+q.subvectorDim]
		codes[sv] = byte(q.nearestCode(sv, sub))
	}
	return codes
}

func (q *Quantizer) nearestCode(sv int, sub []float32) int {
	best := 0
	bestDist := float32(math.MaxFloat32)
	for code, centroid := range q.codebooks[sv] {
		d := q.subDist(sub, centroid)
		if d < bestDist {
			bestDist = d
			best = code
		}
	}
	return best
}

// Decode reconstructs an approximate vector from codes.
func (q *Quantizer) Decode(codes []byte) []float32 {
	vector := make([]float32, q.cfg.NumSubvectors*q.subvectorDim)
	for sv, code := range codes {
		centroid := q.codebooks[sv][code]
		copy(vector[sv*q.subvectorDim:(sv+1)*q.subvectorDim], centroid)
	}
	return vector
}

// DistanceTable precomputes, for one query, the distance from each of its
// subvectors to every centroid in the corresponding codebook. Asymmetric
// search over many encoded vectors then costs one table lookup per
// subvector instead of decoding and comparing in the original space.
type DistanceTable struct {
	perSubvector [][]float32
	metric       Metric
}

func (q *Quantizer) ComputeDistanceTable(query []float32) DistanceTable {
	table := make([][]float32, q.cfg.NumSubvectors)
	for sv := 0; sv < q.cfg.NumSubvectors; sv++ {
		start := sv * q.subvectorDim
		sub := query[start : start+q.subvectorDim]
		table[sv] = make([]float32, len(q.codebooks[sv]))
		for code, centroid := range q.codebooks[sv] {
			if q.cfg.Metric == MetricL2 {
				table[sv][code] = kernel.L2(sub, centroid) * kernel.L2(sub, centroid)
				continue
			}
			table[sv][code] = q.subDist(sub, centroid)
		}
	}
	return DistanceTable{perSubvector: table, metric: q.cfg.Metric}
}

// AsymmetricDistance scores an encoded vector against a precomputed
// DistanceTable in O(numSubvectors).
func (t DistanceTable) AsymmetricDistance(codes []byte) float32 {
	var total float32
	for sv, code := range codes {
		total += t.perSubvector[sv][code]
	}
	if t.metric == MetricL2 {
		return float32(math.Sqrt(float64(total)))
	}
	return total
}

// SymmetricDistance scores two encoded vectors against each other via their
// codebook centroids, without decoding to full vectors.
func (q *Quantizer) SymmetricDistance(a, b []byte) float32 {
	var total float32
	for sv := range a {
		ca := q.codebooks[sv][a[sv]]
		cb := q.codebooks[sv][b[sv]]
		d := q.subDist(ca, cb)
		if q.cfg.Metric == MetricL2 {
			d *= d
		}
		total += d
	}
	if q.cfg.Metric == MetricL2 {
		return float32(math.Sqrt(float64(total)))
	}
	return total
}

// CompressionRatio reports the ratio of original float32 storage to
// quantized-code storage for vectors of dimension dim.
func (q *Quantizer) CompressionRatio(dim int) float32 {
	return float32(dim*4) / float32(q.cfg.NumSubvectors)
}

// Serialize packs the quantizer into the header+codebook byte layout used
// by the persistence layer's quantizer section.
func (q *Quantizer) Serialize() []byte {
	numCodes := 1 << uint(q.cfg.BitsPerCode)
	headerSize := 12
	codebookSize := q.cfg.NumSubvectors * numCodes * q.subvectorDim * 4
	data := make([]byte, headerSize+codebookSize)

	binary.LittleEndian.PutUint32(data[0:], uint32(q.cfg.NumSubvectors))
	binary.LittleEndian.PutUint32(data[4:], uint32(q.cfg.BitsPerCode))
	binary.LittleEndian.PutUint32(data[8:], uint32(q.subvectorDim))

	offset := headerSize
	for sv := 0; sv < q.cfg.NumSubvectors; sv++ {
		for code := 0; code < numCodes; code++ {
			for d := 0; d < q.subvectorDim; d++ {
				binary.LittleEndian.PutUint32(data[offset:], math.Float32bits(q.codebooks[sv][code][d]))
				offset += 4
			}
		}
	}
	return data
}

// Deserialize restores a quantizer previously produced by Serialize.
func Deserialize(data []byte, cfg Config) (*Quantizer, error) {
	if len(data) < 12 {
		return nil, errs.Deserialization(errs.Other("quantizer data truncated"))
	}
	numSubvectors := int(binary.LittleEndian.Uint32(data[0:]))
	bitsPerCode := int(binary.LittleEndian.Uint32(data[4:]))
	subvectorDim := int(binary.LittleEndian.Uint32(data[8:]))

	cfg.NumSubvectors = numSubvectors
	cfg.BitsPerCode = bitsPerCode
	q := &Quantizer{cfg: cfg, subvectorDim: subvectorDim}

	numCodes := 1 << uint(bitsPerCode)
	q.codebooks = make([][][]float32, numSubvectors)
	offset := 12
	for sv := 0; sv < numSubvectors; sv++ {
		q.codebooks[sv] = make([][]float32, numCodes)
		for code := 0; code < numCodes; code++ {
			q.codebooks[sv][code] = make([]float32, subvectorDim)
			for d := 0; d < subvectorDim; d++ {
				if offset+4 > len(data) {
					return nil, errs.Deserialization(errs.Other("quantizer data truncated"))
				}
				q.codebooks[sv][code][d] = math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
				offset += 4
			}
		}
	}
	return q, nil
}

func (q *Quantizer) SubvectorDim() int  { return q.subvectorDim }
func (q *Quantizer) NumSubvectors() int { return q.cfg.NumSubvectors }
