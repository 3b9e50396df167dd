package config

import (
	"testing"

	"github.com/nearkit/retrieve/hnsw"
)

func TestBuildHNSW(t *testing.T) {
	cfg := Default()
	cfg.HNSW.M = 24
	hc := cfg.BuildHNSW()

	if hc.M != 24 {
		t.Errorf("expected M=24, got %d", hc.M)
	}
	if hc.M0 != 48 {
		t.Errorf("expected M0=2*M=48, got %d", hc.M0)
	}
	if hc.Selection != hnsw.SelectHeuristic {
		t.Errorf("expected heuristic selection policy, got %v", hc.Selection)
	}
}

func TestBuildIVFPQ(t *testing.T) {
	cfg := Default()
	cfg.IVFPQ.PQSubvectors = 16
	cfg.IVFPQ.PQBitsPerCode = 4
	ic := cfg.BuildIVFPQ()

	if ic.NumCentroids != cfg.IVFPQ.NumCentroids {
		t.Errorf("expected NumCentroids=%d, got %d", cfg.IVFPQ.NumCentroids, ic.NumCentroids)
	}
	if ic.PQ.NumSubvectors != 16 {
		t.Errorf("expected PQ.NumSubvectors=16, got %d", ic.PQ.NumSubvectors)
	}
	if ic.PQ.BitsPerCode != 4 {
		t.Errorf("expected PQ.BitsPerCode=4, got %d", ic.PQ.BitsPerCode)
	}
}

func TestBuildBM25(t *testing.T) {
	cfg := Default()
	cfg.BM25.K1 = 2.0
	bc := cfg.BuildBM25()
	if bc.K1 != 2.0 {
		t.Errorf("expected K1=2.0, got %v", bc.K1)
	}
	if bc.B != cfg.BM25.B {
		t.Errorf("expected B=%v, got %v", cfg.BM25.B, bc.B)
	}
}

func TestBuildTreesVariants(t *testing.T) {
	cfg := Default()

	lc := cfg.BuildLSH()
	if lc.NumTables != cfg.Trees.LSHNumTables || lc.HashesPerTable != cfg.Trees.LSHNumHyperplanes {
		t.Errorf("LSH config mismatch: got %+v", lc)
	}

	dc := cfg.BuildDiskANN()
	if dc.R != cfg.Trees.DiskANNDegree || dc.L != cfg.Trees.DiskANNListSize {
		t.Errorf("DiskANN config mismatch: got %+v", dc)
	}

	sc := cfg.BuildScaNN()
	if sc.NumPartitions != cfg.Trees.ScaNNPartitions {
		t.Errorf("ScaNN config mismatch: got %+v", sc)
	}
}
