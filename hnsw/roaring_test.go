package hnsw

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for trial := 0; trial < 20; trial++ {
		n := r.Intn(500)
		seen := map[uint32]bool{}
		var ids []uint32
		for len(ids) < n {
			v := uint32(r.Intn(1 << 20))
			if !seen[v] {
				seen[v] = true
				ids = append(ids, v)
			}
		}
		sortUint32(ids)

		got := decompress(compress(ids))
		if !reflect.DeepEqual(got, ids) {
			if len(got) == 0 && len(ids) == 0 {
				continue
			}
			t.Fatalf("trial %d: round trip mismatch\nwant %v\ngot  %v", trial, ids, got)
		}
	}
}

func TestCompressDecompressEmpty(t *testing.T) {
	got := decompress(compress(nil))
	if len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestCompressDenseRun(t *testing.T) {
	ids := make([]uint32, 5000)
	for i := range ids {
		ids[i] = uint32(i)
	}
	got := decompress(compress(ids))
	if !reflect.DeepEqual(got, ids) {
		t.Fatalf("dense run round trip failed: got %d ids, want %d", len(got), len(ids))
	}
}

func TestCompressFullyDenseContainer(t *testing.T) {
	ids := make([]uint32, 65536)
	for i := range ids {
		ids[i] = uint32(i)
	}
	got := decompress(compress(ids))
	if !reflect.DeepEqual(got, ids) {
		t.Fatalf("fully dense container round trip failed: got %d ids, want %d", len(got), len(ids))
	}
}

func sortUint32(ids []uint32) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
