package trees

import (
	"math"
	"time"

	"github.com/nearkit/retrieve/ann"
	"github.com/nearkit/retrieve/errs"
	"github.com/nearkit/retrieve/kernel"
	"github.com/nearkit/retrieve/kmeans"
)

// AnisotropicConfig tunes ScaNN-style anisotropic-loss-weighted
// partitioning: an alternative to plain k-means that biases quantization
// error toward preserving the component of a vector that matters for
// maximum-inner-product search, at the cost of the component that doesn't.
type AnisotropicConfig struct {
	NumPartitions int
	NProbe        int
	// Threshold is ScaNN's T parameter in (0, 1): the expected quantile of
	// the normalized inner product between a database vector and the
	// queries that will retrieve it. Values closer to 1 weight the
	// parallel (score-relevant) residual component much more heavily than
	// the perpendicular one. The two weights are equal (ordinary isotropic
	// k-means) at T = 1/sqrt(dim); below that the parallel weight falls
	// toward 0 while the perpendicular weight stays 1.
	Threshold     float64
	MaxIterations int
	Epsilon       float64
}

func DefaultAnisotropicConfig() AnisotropicConfig {
	return AnisotropicConfig{NumPartitions: 16, NProbe: 4, Threshold: 0.2, MaxIterations: 10, Epsilon: 1e-4}
}

// AnisotropicResult mirrors kmeans.Result's shape so callers (notably
// ivfpq's coarse quantizer) can swap one partitioner for the other without
// restructuring their Build step.
type AnisotropicResult struct {
	Centroids  [][]float32
	Assignment []int
}

// anisotropicWeights computes ScaNN's parallel/perpendicular loss weights
// for a threshold t and dimension dim, per Guo et al. 2020 ("Accelerating
// Large-Scale Inference with Anisotropic Vector Quantization"): the
// perpendicular weight is fixed at 1, and the parallel weight grows
// without bound as t approaches 1, making parallel error (the part of the
// residual that changes the inner product with the original vector's own
// direction) increasingly expensive to get wrong.
func anisotropicWeights(t float64, dim int) (etaParallel, etaPerp float32) {
	if t < 0.001 {
		t = 0.001
	}
	if t > 0.999 {
		t = 0.999
	}
	d := float64(dim - 1)
	if d < 1 {
		d = 1
	}
	etaParallel = float32(d * t * t / (1 - t*t))
	etaPerp = 1
	return
}

// decomposeResidual splits residual r = x - c into its component parallel
// to x (the direction whose inner product with queries approximates the
// original vector's score) and what remains, returning the squared norm of
// each component.
func decomposeResidual(x, c []float32) (parallelSq, perpSq float32) {
	var xNormSq, dot, rNormSq float32
	for i := range x {
		r := x[i] - c[i]
		xNormSq += x[i] * x[i]
		dot += r * x[i]
		rNormSq += r * r
	}
	if xNormSq == 0 {
		return 0, rNormSq
	}
	parallelSq = (dot * dot) / xNormSq
	perpSq = rNormSq - parallelSq
	if perpSq < 0 {
		perpSq = 0
	}
	return
}

func anisotropicLoss(x, c []float32, etaParallel, etaPerp float32) float32 {
	parallelSq, perpSq := decomposeResidual(x, c)
	return etaParallel*parallelSq + etaPerp*perpSq
}

// updateCentroidAnisotropic solves the weighted least-squares centroid that
// minimizes sum_i [etaParallel*parallel_i^2 + etaPerp*perp_i^2] for the
// points assigned to one cluster. Differentiating the loss with respect to
// c gives a per-cluster linear system
//
//	A c = b,  A = sum_i [etaPerp*I + (etaParallel-etaPerp)*xhat_i xhat_i^T]
//
// which collapses to a plain mean when etaParallel == etaPerp (ordinary
// k-means is the isotropic special case).
func updateCentroidAnisotropic(members [][]float32, etaParallel, etaPerp float32, dim int, fallback []float32) []float32 {
	if len(members) == 0 {
		return fallback
	}
	delta := etaParallel - etaPerp

	a := make([][]float64, dim)
	b := make([]float64, dim)
	for i := range a {
		a[i] = make([]float64, dim)
	}

	for _, x := range members {
		var xNormSq float32
		for _, v := range x {
			xNormSq += v * v
		}
		for i := 0; i < dim; i++ {
			b[i] += float64(etaPerp) * float64(x[i])
		}
		if xNormSq == 0 || delta == 0 {
			for i := 0; i < dim; i++ {
				a[i][i] += float64(etaPerp)
			}
			continue
		}
		coef := float64(delta) / float64(xNormSq)
		xx := dotF64(x, x)
		for i := 0; i < dim; i++ {
			a[i][i] += float64(etaPerp)
			for j := 0; j < dim; j++ {
				a[i][j] += coef * float64(x[i]) * float64(x[j])
			}
			b[i] += coef * float64(x[i]) * xx
		}
	}

	solved, ok := solveLinearSystem(a, b)
	if !ok {
		return meanVector(members, dim)
	}
	out := make([]float32, dim)
	for i, v := range solved {
		out[i] = float32(v)
	}
	return out
}

func dotF64(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func meanVector(members [][]float32, dim int) []float32 {
	out := make([]float32, dim)
	for _, v := range members {
		for i := 0; i < dim; i++ {
			out[i] += v[i]
		}
	}
	inv := 1 / float32(len(members))
	for i := range out {
		out[i] *= inv
	}
	return out
}

// solveLinearSystem solves a x = b via Gaussian elimination with partial
// pivoting, returning ok=false if a is (numerically) singular.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	m := make([][]float64, n)
	for i := range m {
		m[i] = append([]float64(nil), a[i]...)
	}
	x := append([]float64(nil), b...)

	for col := 0; col < n; col++ {
		pivot := col
		best := math.Abs(m[col][col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(m[r][col]); v > best {
				best = v
				pivot = r
			}
		}
		if best < 1e-9 {
			return nil, false
		}
		if pivot != col {
			m[col], m[pivot] = m[pivot], m[col]
			x[col], x[pivot] = x[pivot], x[col]
		}
		for r := col + 1; r < n; r++ {
			factor := m[r][col] / m[col][col]
			if factor == 0 {
				continue
			}
			for c := col; c < n; c++ {
				m[r][c] -= factor * m[col][c]
			}
			x[r] -= factor * x[col]
		}
	}

	out := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := x[i]
		for j := i + 1; j < n; j++ {
			sum -= m[i][j] * out[j]
		}
		out[i] = sum / m[i][i]
	}
	return out, true
}

// FitAnisotropic partitions the n vectors of dimension d stored contiguously
// in buf into k clusters using ScaNN's anisotropic loss in place of plain
// squared-L2 distance, both for assignment and for the centroid update.
// Seeding runs an ordinary kmeans.Fit (k-means++ plus Lloyd iterations) and
// starts from its centroids (anisotropic loss has no natural seeding rule of
// its own; it only reweights refinement).
func FitAnisotropic(buf []float32, n, d, k int, cfg AnisotropicConfig) (*AnisotropicResult, error) {
	if n < k {
		return nil, errs.Other("insufficient vectors")
	}
	if cfg.MaxIterations == 0 {
		cfg = DefaultAnisotropicConfig()
	}

	seed, err := kmeans.Fit(buf, n, d, k, kmeans.DefaultConfig())
	if err != nil {
		return nil, err
	}
	centroids := seed.Centroids
	etaParallel, etaPerp := anisotropicWeights(cfg.Threshold, d)

	assignment := make([]int, n)
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		for i := 0; i < n; i++ {
			v := buf[i*d : (i+1)*d]
			best := 0
			bestLoss := float32(math.MaxFloat32)
			for c, centroid := range centroids {
				l := anisotropicLoss(v, centroid, etaParallel, etaPerp)
				if l < bestLoss {
					bestLoss = l
					best = c
				}
			}
			assignment[i] = best
		}

		members := make([][][]float32, k)
		for i := 0; i < n; i++ {
			c := assignment[i]
			members[c] = append(members[c], buf[i*d:(i+1)*d])
		}

		var maxMove float64
		for c := 0; c < k; c++ {
			newCentroid := updateCentroidAnisotropic(members[c], etaParallel, etaPerp, d, centroids[c])
			move := float64(kernel.L2(centroids[c], newCentroid))
			if move > maxMove {
				maxMove = move
			}
			centroids[c] = newCentroid
		}
		if maxMove < cfg.Epsilon {
			break
		}
	}

	return &AnisotropicResult{Centroids: centroids, Assignment: assignment}, nil
}

// ScaNNPartitioner is a single-level IVF-style baseline that trains its
// coarse regions with FitAnisotropic instead of plain k-means, then probes
// the NProbe regions whose centroids have the highest inner product with
// the query (ScaNN's native metric) before re-ranking candidates exactly.
type ScaNNPartitioner struct {
	store
	cfg        AnisotropicConfig
	centroids  [][]float32
	partitions [][]uint32
}

func NewScaNNPartitioner(dim int, cfg AnisotropicConfig) *ScaNNPartitioner {
	if cfg.NumPartitions == 0 {
		cfg = DefaultAnisotropicConfig()
	}
	return &ScaNNPartitioner{store: store{dim: dim}, cfg: cfg}
}

func (t *ScaNNPartitioner) Add(docID uint32, vector []float32) error { return t.store.add(docID, vector) }
func (t *ScaNNPartitioner) Dimension() int                           { return t.dim }
func (t *ScaNNPartitioner) NumVectors() int                          { return t.numVectors() }
func (t *ScaNNPartitioner) SizeBytes() int64 {
	return t.sizeBytes() + int64(len(t.centroids))*int64(t.dim)*4
}
func (t *ScaNNPartitioner) Stats() ann.Stats {
	return ann.Stats{NumVectors: t.NumVectors(), Dimension: t.dim, SizeBytes: t.SizeBytes(), AlgorithmName: "scann-anisotropic"}
}

func (t *ScaNNPartitioner) Build() (err error) {
	start := time.Now()
	defer func() { recordBuild("scann-anisotropic", start, err) }()
	n := t.numVectors()
	if n == 0 {
		return errs.EmptyIndex()
	}
	k := t.cfg.NumPartitions
	if k > n {
		k = n
	}
	result, err := FitAnisotropic(t.vectors, n, t.dim, k, t.cfg)
	if err != nil {
		return err
	}
	t.centroids = result.Centroids
	t.partitions = make([][]uint32, k)
	for i := 0; i < n; i++ {
		c := result.Assignment[i]
		t.partitions[c] = append(t.partitions[c], uint32(i))
	}
	t.built = true
	return nil
}

// mipsDistance reports a "lower is better" score over negative inner
// product, matching ScaNN's native maximum-inner-product objective while
// staying compatible with store.rerank's ascending-distance convention.
func mipsDistance(a, b []float32) float32 { return -kernel.Dot(a, b) }

func (t *ScaNNPartitioner) Search(query []float32, k int) (result []ann.Neighbor, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			recordSearch("scann-anisotropic", start, len(result))
		}
	}()
	if k <= 0 {
		return nil, errs.Other("k must be positive")
	}
	if len(query) != t.dim {
		return nil, errs.DimensionMismatch(t.dim, len(query))
	}
	if !t.built {
		return nil, errs.NotBuilt("index must be built before search")
	}

	type scoredCentroid struct {
		idx  int
		dist float32
	}
	scored := make([]scoredCentroid, len(t.centroids))
	for i, c := range t.centroids {
		scored[i] = scoredCentroid{idx: i, dist: mipsDistance(query, c)}
	}
	nprobe := t.cfg.NProbe
	if nprobe > len(scored) {
		nprobe = len(scored)
	}
	for i := 0; i < nprobe; i++ {
		best := i
		for j := i + 1; j < len(scored); j++ {
			if scored[j].dist < scored[best].dist {
				best = j
			}
		}
		scored[i], scored[best] = scored[best], scored[i]
	}

	var candidates []uint32
	for i := 0; i < nprobe; i++ {
		candidates = append(candidates, t.partitions[scored[i].idx]...)
	}
	return t.rerank(query, candidates, k, mipsDistance), nil
}
