package hnsw

import (
	"bytes"
	"math/rand"
	"testing"
)

func randomVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}

func TestAddAndSearchFindsExactMatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metric = MetricL2
	idx := New(8, cfg)
	r := rand.New(rand.NewSource(1))

	var target []float32
	for i := 0; i < 200; i++ {
		v := randomVector(r, 8)
		if i == 50 {
			target = append([]float32(nil), v...)
		}
		if err := idx.Add(uint32(i), v); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := idx.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}

	results, err := idx.Search(target, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].DocID != 50 {
		t.Fatalf("expected exact match docID 50, got %d (dist %f)", results[0].DocID, results[0].Distance)
	}
	if results[0].Distance > 1e-5 {
		t.Fatalf("expected near-zero distance for exact match, got %f", results[0].Distance)
	}
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	idx := New(4, DefaultConfig())
	idx.Add(1, []float32{1, 2, 3, 4})
	idx.Build()
	if _, err := idx.Search([]float32{1, 2, 3}, 1); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestBuildRejectsEmptyIndex(t *testing.T) {
	idx := New(4, DefaultConfig())
	if err := idx.Build(); err == nil {
		t.Fatal("expected error building empty index")
	}
}

func TestAddAfterBuildRejected(t *testing.T) {
	idx := New(4, DefaultConfig())
	idx.Add(1, []float32{1, 2, 3, 4})
	idx.Build()
	if err := idx.Add(2, []float32{1, 2, 3, 4}); err == nil {
		t.Fatal("expected error adding after build")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	idx := New(6, cfg)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 60; i++ {
		idx.Add(uint32(i), randomVector(r, 6))
	}
	idx.Build()

	var buf bytes.Buffer
	if _, err := idx.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	restored, err := ReadFrom(&buf, Config{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if restored.NumVectors() != idx.NumVectors() {
		t.Fatalf("expected %d vectors, got %d", idx.NumVectors(), restored.NumVectors())
	}

	q := randomVector(rand.New(rand.NewSource(99)), 6)
	before, _ := idx.Search(q, 5)
	after, err := restored.Search(q, 5)
	if err != nil {
		t.Fatalf("search restored: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("result count mismatch: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].DocID != after[i].DocID {
			t.Fatalf("result %d mismatch: %d vs %d", i, before[i].DocID, after[i].DocID)
		}
	}
}
