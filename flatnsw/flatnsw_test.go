package flatnsw

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/nearkit/retrieve/hnsw"
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
	cfg.Metric = hnsw.MetricL2
	idx := New(8, cfg)
	r := rand.New(rand.NewSource(3))

	var target []float32
	for i := 0; i < 150; i++ {
		v := randomVector(r, 8)
		if i == 30 {
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
	if len(results) != 1 || results[0].DocID != 30 {
		t.Fatalf("expected exact match docID 30, got %+v", results)
	}
}

func TestBuildRejectsEmptyIndex(t *testing.T) {
	idx := New(4, DefaultConfig())
	if err := idx.Build(); err == nil {
		t.Fatal("expected error building empty index")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	idx := New(5, DefaultConfig())
	r := rand.New(rand.NewSource(5))
	for i := 0; i < 40; i++ {
		idx.Add(uint32(i), randomVector(r, 5))
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
}
