package kernel

import (
	"math"
	"math/rand"
	"testing"
)

func TestDotUnrolledMatchesScalar(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 2, 3, 4, 5, 7, 8, 31, 128} {
		a := make([]float32, n)
		b := make([]float32, n)
		for i := range a {
			a[i] = float32(r.NormFloat64())
			b[i] = float32(r.NormFloat64())
		}
		if got, want := dotUnrolled(a, b), dotScalar(a, b); got != want {
			t.Fatalf("n=%d: dotUnrolled=%v dotScalar=%v", n, got, want)
		}
	}
}

func TestCosineSelfIsOne(t *testing.T) {
	v := []float32{1, 2, 3, 4}
	got := Cosine(v, v)
	if math.Abs(float64(got)-1.0) > 1e-5 {
		t.Fatalf("cosine(v,v) = %v, want ~1.0", got)
	}
}

func TestCosineZeroVectorIsZero(t *testing.T) {
	v := []float32{1, 2, 3}
	zero := []float32{0, 0, 0}
	if got := Cosine(v, zero); got != 0 {
		t.Fatalf("cosine(v,0) = %v, want 0", got)
	}
}

func TestL2NeverNegativeOrNaN(t *testing.T) {
	a := []float32{1e-20, 1e-20, 1e-20}
	b := []float32{1e-20, 1e-20, 1e-20}
	d := L2(a, b)
	if d < 0 || math.IsNaN(float64(d)) {
		t.Fatalf("L2 = %v, want finite non-negative", d)
	}
}

func TestL2KnownValue(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	if got := L2(a, b); math.Abs(float64(got)-5.0) > 1e-5 {
		t.Fatalf("L2 = %v, want 5.0", got)
	}
}

func TestSparseDotMergeWalk(t *testing.T) {
	aIdx := []uint32{1, 3, 5, 9}
	aVal := []float32{1, 2, 3, 4}
	bIdx := []uint32{0, 3, 5, 8}
	bVal := []float32{5, 6, 7, 8}

	got := SparseDot(aIdx, aVal, bIdx, bVal)
	want := float32(2*6 + 3*7) // indices 3 and 5 overlap
	if got != want {
		t.Fatalf("SparseDot = %v, want %v", got, want)
	}
}

func TestSparseDotEmpty(t *testing.T) {
	if got := SparseDot(nil, nil, nil, nil); got != 0 {
		t.Fatalf("SparseDot(empty) = %v, want 0", got)
	}
}

func TestKernelsFiniteOnFiniteInputs(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		n := 1 + r.Intn(64)
		a := make([]float32, n)
		b := make([]float32, n)
		for j := range a {
			a[j] = float32(r.NormFloat64() * 1000)
			b[j] = float32(r.NormFloat64() * 1000)
		}
		for _, v := range []float32{Dot(a, b), Cosine(a, b), L2(a, b)} {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("non-finite kernel result: %v", v)
			}
		}
	}
}
