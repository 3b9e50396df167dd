package pq

import "math"

// OptimizedQuantizer extends a plain product Quantizer with one rotation
// matrix per subspace, applied to vectors before they are split and
// encoded. Rotating each subspace's covariance toward alignment with the
// per-subspace axes reduces the quantization error a plain PQ split
// produces on correlated dimensions (Ge et al., "Optimized Product
// Quantization"). The rotations start as identity matrices and are nudged
// toward each subspace's covariance, then re-orthonormalized by
// Gram-Schmidt after every training pass.
type OptimizedQuantizer struct {
	cfg        Config
	dim        int
	rotations  [][][]float32 // rotations[sv][row][col]
	quantizer  *Quantizer
	iterations int
}

// NewOPQ builds an optimized quantizer over vectors of the given dimension.
func NewOPQ(dim int, cfg Config, iterations int) *OptimizedQuantizer {
	subDim := dim / cfg.NumSubvectors
	rotations := make([][][]float32, cfg.NumSubvectors)
	for sv := range rotations {
		rotations[sv] = identity(subDim)
	}
	if iterations <= 0 {
		iterations = 5
	}
	return &OptimizedQuantizer{
		cfg:        cfg,
		dim:        dim,
		rotations:  rotations,
		quantizer:  New(cfg),
		iterations: iterations,
	}
}

func identity(n int) [][]float32 {
	m := make([][]float32, n)
	for i := range m {
		m[i] = make([]float32, n)
		m[i][i] = 1
	}
	return m
}

// Train alternates: rotate the training set with the current rotations,
// fit a plain PQ codebook on the rotated vectors, then update the
// rotations from the rotated subvectors' covariance and re-orthonormalize.
func (o *OptimizedQuantizer) Train(buf []float32, n, d int) error {
	for iter := 0; iter < o.iterations; iter++ {
		rotated := o.rotateAll(buf, n)
		if err := o.quantizer.Train(rotated, n, d); err != nil {
			return err
		}
		o.updateRotations(rotated, n)
	}
	return nil
}

func (o *OptimizedQuantizer) rotateAll(buf []float32, n int) []float32 {
	out := make([]float32, len(buf))
	for i := 0; i < n; i++ {
		o.rotateInto(buf[i*o.dim:(i+1)*o.dim], out[i*o.dim:(i+1)*o.dim])
	}
	return out
}

func (o *OptimizedQuantizer) rotateInto(vec, dst []float32) {
	subDim := o.dim / o.cfg.NumSubvectors
	for sv := 0; sv < o.cfg.NumSubvectors; sv++ {
		start := sv * subDim
		sub := vec[start : start+subDim]
		rot := o.rotations[sv]
		for row := 0; row < subDim; row++ {
			var sum float32
			for col := 0; col < subDim; col++ {
				sum += rot[row][col] * sub[col]
			}
			dst[start+row] = sum
		}
	}
}

// updateRotations nudges each subspace rotation toward its rotated
// vectors' covariance with a small learning rate, then re-orthonormalizes
// by Gram-Schmidt so the matrix stays a valid rotation.
func (o *OptimizedQuantizer) updateRotations(rotated []float32, n int) {
	subDim := o.dim / o.cfg.NumSubvectors
	const learningRate = 0.1

	for sv := 0; sv < o.cfg.NumSubvectors; sv++ {
		start := sv * subDim
		cov := covariance(rotated, n, o.dim, start, subDim)
		rot := o.rotations[sv]
		for i := 0; i < subDim; i++ {
			for j := 0; j < subDim; j++ {
				rot[i][j] += learningRate * cov[i][j] * 0.01
			}
		}
		gramSchmidt(rot)
	}
}

func covariance(buf []float32, n, d, offset, dim int) [][]float32 {
	mean := make([]float32, dim)
	for i := 0; i < n; i++ {
		v := buf[i*d+offset : i*d+offset+dim]
		for j, x := range v {
			mean[j] += x
		}
	}
	inv := 1 / float32(n)
	for j := range mean {
		mean[j] *= inv
	}

	cov := make([][]float32, dim)
	for i := range cov {
		cov[i] = make([]float32, dim)
	}
	for i := 0; i < n; i++ {
		v := buf[i*d+offset : i*d+offset+dim]
		for a := 0; a < dim; a++ {
			diffA := v[a] - mean[a]
			for b := 0; b < dim; b++ {
				cov[a][b] += diffA * (v[b] - mean[b])
			}
		}
	}
	for a := range cov {
		for b := range cov[a] {
			cov[a][b] *= inv
		}
	}
	return cov
}

// gramSchmidt orthonormalizes the rows of m in place.
func gramSchmidt(m [][]float32) {
	n := len(m)
	for i := 0; i < n; i++ {
		for k := 0; k < i; k++ {
			dot := dotRows(m[i], m[k])
			for j := range m[i] {
				m[i][j] -= dot * m[k][j]
			}
		}
		normalizeRow(m[i])
	}
}

func dotRows(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func normalizeRow(row []float32) {
	var sumSq float32
	for _, x := range row {
		sumSq += x * x
	}
	if sumSq <= 1e-12 {
		return
	}
	norm := float32(math.Sqrt(float64(sumSq)))
	for i := range row {
		row[i] /= norm
	}
}

// Encode rotates then delegates to the underlying plain quantizer.
func (o *OptimizedQuantizer) Encode(vector []float32) []byte {
	rotated := make([]float32, o.dim)
	o.rotateInto(vector, rotated)
	return o.quantizer.Encode(rotated)
}

// ComputeDistanceTable rotates the query before delegating.
func (o *OptimizedQuantizer) ComputeDistanceTable(query []float32) DistanceTable {
	rotated := make([]float32, o.dim)
	o.rotateInto(query, rotated)
	return o.quantizer.ComputeDistanceTable(rotated)
}

func (o *OptimizedQuantizer) AsymmetricDistance(table DistanceTable, codes []byte) float32 {
	return table.AsymmetricDistance(codes)
}
