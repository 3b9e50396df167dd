package ivfpq

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/nearkit/retrieve/pq"
)

func randomVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NumCentroids = 8
	cfg.NProbe = 4
	cfg.PQ.NumSubvectors = 4
	cfg.PQ.BitsPerCode = 4
	return cfg
}

func TestBuildAndSearchFindsExactMatch(t *testing.T) {
	idx := New(8, testConfig())
	r := rand.New(rand.NewSource(11))

	var target []float32
	for i := 0; i < 300; i++ {
		v := randomVector(r, 8)
		if i == 100 {
			target = append([]float32(nil), v...)
		}
		if err := idx.Add(uint32(i), v); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := idx.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}

	results, err := idx.Search(target, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	found := false
	for _, r := range results {
		if r.DocID == 100 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected exact-match doc 100 among top results, got %+v", results)
	}
}

func TestAddAfterBuildRejected(t *testing.T) {
	idx := New(4, testConfig())
	r := rand.New(rand.NewSource(12))
	for i := 0; i < 50; i++ {
		idx.Add(uint32(i), randomVector(r, 4))
	}
	idx.Build()
	if err := idx.Add(999, randomVector(r, 4)); err == nil {
		t.Fatal("expected error adding after build")
	}
}

func TestBuildRejectsEmptyIndex(t *testing.T) {
	idx := New(4, testConfig())
	if err := idx.Build(); err == nil {
		t.Fatal("expected error building empty index")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	cfg := testConfig()
	idx := New(8, cfg)
	r := rand.New(rand.NewSource(13))
	for i := 0; i < 200; i++ {
		idx.Add(uint32(i), randomVector(r, 8))
	}
	idx.Build()

	var buf bytes.Buffer
	if _, err := idx.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	restored, err := ReadFrom(&buf, pq.Config{})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if restored.NumVectors() != idx.NumVectors() {
		t.Fatalf("expected %d vectors, got %d", idx.NumVectors(), restored.NumVectors())
	}
}

func TestAnisotropicCoarsePartitionFindsExactMatch(t *testing.T) {
	cfg := testConfig()
	cfg.Anisotropic = true
	cfg.AnisotropicThreshold = 0.3
	idx := New(8, cfg)
	r := rand.New(rand.NewSource(14))

	var target []float32
	for i := 0; i < 300; i++ {
		v := randomVector(r, 8)
		if i == 150 {
			target = append([]float32(nil), v...)
		}
		if err := idx.Add(uint32(i), v); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := idx.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}

	results, err := idx.Search(target, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	found := false
	for _, r := range results {
		if r.DocID == 150 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected exact-match doc 150 among top results, got %+v", results)
	}
}
