package hnsw

import "github.com/nearkit/retrieve/kernel"

// Metric selects the similarity kernel the index is built over.
type Metric int

const (
	MetricCosine Metric = iota
	MetricL2
	MetricDot
)

func (m Metric) distanceFunc() func(a, b []float32) float32 {
	switch m {
	case MetricL2:
		return kernel.L2
	case MetricDot:
		return negDot
	default:
		return cosineDistance
	}
}

// cosineDistance reports 1 - cosine-similarity so that, like every other
// supported metric, smaller means closer.
func cosineDistance(a, b []float32) float32 {
	return 1 - kernel.Cosine(a, b)
}

// negDot lets a max-inner-product index reuse the same min-heap machinery
// as the distance-based metrics: smaller negated dot product means a larger
// original dot product.
func negDot(a, b []float32) float32 {
	return -kernel.Dot(a, b)
}
