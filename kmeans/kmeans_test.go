package kmeans

import (
	"math/rand"
	"testing"

	"github.com/nearkit/retrieve/errs"
)

func makeClusteredData(r *rand.Rand, centers [][]float32, perCenter int) ([]float32, int, int) {
	d := len(centers[0])
	n := len(centers) * perCenter
	buf := make([]float32, 0, n*d)
	for _, c := range centers {
		for i := 0; i < perCenter; i++ {
			for j := 0; j < d; j++ {
				buf = append(buf, c[j]+float32(r.NormFloat64()*0.01))
			}
		}
	}
	return buf, n, d
}

func TestFitRecoversWellSeparatedClusters(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	centers := [][]float32{{0, 0}, {10, 10}, {-10, 10}}
	buf, n, d := makeClusteredData(r, centers, 30)

	cfg := DefaultConfig()
	cfg.Rand = r
	res, err := Fit(buf, n, d, 3, cfg)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(res.Assignment) != n {
		t.Fatalf("assignment length = %d, want %d", len(res.Assignment), n)
	}

	// Points from the same seed center should land in the same cluster.
	for c := range centers {
		first := res.Assignment[c*30]
		for i := 1; i < 30; i++ {
			if res.Assignment[c*30+i] != first {
				t.Fatalf("center %d: points split across clusters", c)
			}
		}
	}
}

func TestFitInsufficientVectors(t *testing.T) {
	buf := make([]float32, 2*4)
	_, err := Fit(buf, 2, 4, 5, DefaultConfig())
	if !errs.Is(err, errs.KindOther) {
		t.Fatalf("expected Other error for k > n, got %v", err)
	}
}

func TestFitEmptyClusterRetainsCentroid(t *testing.T) {
	// Three points, all identical, asking for two clusters: one cluster
	// will end up empty every iteration and must keep its seeded centroid
	// rather than crash or reseed.
	buf := []float32{1, 1, 1, 1, 1, 1}
	cfg := DefaultConfig()
	cfg.MaxIterations = 5
	res, err := Fit(buf, 3, 2, 2, cfg)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if len(res.Centroids) != 2 {
		t.Fatalf("expected 2 centroids, got %d", len(res.Centroids))
	}
}
