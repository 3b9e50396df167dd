package config

import (
	"os"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.HNSW.M != 16 {
		t.Errorf("Expected M=16, got %d", cfg.HNSW.M)
	}
	if cfg.HNSW.EfConstruction != 200 {
		t.Errorf("Expected EfConstruction=200, got %d", cfg.HNSW.EfConstruction)
	}
	if cfg.HNSW.Dimensions != 768 {
		t.Errorf("Expected Dimensions=768, got %d", cfg.HNSW.Dimensions)
	}

	if cfg.IVFPQ.NumCentroids != 256 {
		t.Errorf("Expected NumCentroids=256, got %d", cfg.IVFPQ.NumCentroids)
	}
	if cfg.IVFPQ.Anisotropic {
		t.Error("Expected Anisotropic disabled by default")
	}

	if cfg.BM25.K1 != 1.2 {
		t.Errorf("Expected K1=1.2, got %v", cfg.BM25.K1)
	}
	if cfg.BM25.B != 0.75 {
		t.Errorf("Expected B=0.75, got %v", cfg.BM25.B)
	}

	if cfg.Persistence.DataDir != "./data" {
		t.Errorf("Expected data dir ./data, got %s", cfg.Persistence.DataDir)
	}
	if !cfg.Persistence.EnableWAL {
		t.Error("Expected WAL enabled by default")
	}
	if cfg.Persistence.SyncWrites {
		t.Error("Expected sync writes disabled by default")
	}

	if cfg.Trees.DiskANNDegree != 64 {
		t.Errorf("Expected DiskANNDegree=64, got %d", cfg.Trees.DiskANNDegree)
	}
	if cfg.Trees.ScaNNPartitions != 16 {
		t.Errorf("Expected ScaNNPartitions=16, got %d", cfg.Trees.ScaNNPartitions)
	}
}

func TestLoadFromEnv(t *testing.T) {
	envVars := []string{
		"RETRIEVE_HNSW_M", "RETRIEVE_HNSW_EF_CONSTRUCTION", "RETRIEVE_DIMENSIONS",
		"RETRIEVE_IVFPQ_NUM_CENTROIDS", "RETRIEVE_IVFPQ_NPROBE",
		"RETRIEVE_IVFPQ_ANISOTROPIC", "RETRIEVE_IVFPQ_ANISOTROPIC_THRESHOLD",
		"RETRIEVE_BM25_K1", "RETRIEVE_BM25_B", "RETRIEVE_BM25_EAGER",
		"RETRIEVE_DATA_DIR", "RETRIEVE_ENABLE_WAL", "RETRIEVE_SYNC_WRITES",
	}
	original := make(map[string]string)
	for _, key := range envVars {
		original[key] = os.Getenv(key)
	}
	defer func() {
		for key, value := range original {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	os.Setenv("RETRIEVE_HNSW_M", "32")
	os.Setenv("RETRIEVE_HNSW_EF_CONSTRUCTION", "400")
	os.Setenv("RETRIEVE_DIMENSIONS", "1536")
	os.Setenv("RETRIEVE_IVFPQ_NUM_CENTROIDS", "512")
	os.Setenv("RETRIEVE_IVFPQ_NPROBE", "16")
	os.Setenv("RETRIEVE_IVFPQ_ANISOTROPIC", "true")
	os.Setenv("RETRIEVE_IVFPQ_ANISOTROPIC_THRESHOLD", "0.4")
	os.Setenv("RETRIEVE_BM25_K1", "1.5")
	os.Setenv("RETRIEVE_BM25_B", "0.6")
	os.Setenv("RETRIEVE_BM25_EAGER", "true")
	os.Setenv("RETRIEVE_DATA_DIR", "/var/lib/retrieve")
	os.Setenv("RETRIEVE_ENABLE_WAL", "false")
	os.Setenv("RETRIEVE_SYNC_WRITES", "true")

	cfg := LoadFromEnv()

	if cfg.HNSW.M != 32 {
		t.Errorf("Expected M=32, got %d", cfg.HNSW.M)
	}
	if cfg.HNSW.EfConstruction != 400 {
		t.Errorf("Expected EfConstruction=400, got %d", cfg.HNSW.EfConstruction)
	}
	if cfg.HNSW.Dimensions != 1536 {
		t.Errorf("Expected Dimensions=1536, got %d", cfg.HNSW.Dimensions)
	}
	if cfg.IVFPQ.NumCentroids != 512 {
		t.Errorf("Expected NumCentroids=512, got %d", cfg.IVFPQ.NumCentroids)
	}
	if cfg.IVFPQ.NProbe != 16 {
		t.Errorf("Expected NProbe=16, got %d", cfg.IVFPQ.NProbe)
	}
	if !cfg.IVFPQ.Anisotropic {
		t.Error("Expected Anisotropic enabled")
	}
	if cfg.IVFPQ.AnisotropicThreshold != 0.4 {
		t.Errorf("Expected AnisotropicThreshold=0.4, got %v", cfg.IVFPQ.AnisotropicThreshold)
	}
	if cfg.BM25.K1 != 1.5 {
		t.Errorf("Expected K1=1.5, got %v", cfg.BM25.K1)
	}
	if cfg.BM25.B != 0.6 {
		t.Errorf("Expected B=0.6, got %v", cfg.BM25.B)
	}
	if !cfg.BM25.Eager {
		t.Error("Expected Eager enabled")
	}
	if cfg.Persistence.DataDir != "/var/lib/retrieve" {
		t.Errorf("Expected data dir /var/lib/retrieve, got %s", cfg.Persistence.DataDir)
	}
	if cfg.Persistence.EnableWAL {
		t.Error("Expected WAL disabled")
	}
	if !cfg.Persistence.SyncWrites {
		t.Error("Expected sync writes enabled")
	}
}

func TestLoadFromEnvDefaultsWhenNotSet(t *testing.T) {
	envVars := []string{"RETRIEVE_HNSW_M", "RETRIEVE_IVFPQ_NUM_CENTROIDS"}
	for _, key := range envVars {
		os.Unsetenv(key)
	}

	cfg := LoadFromEnv()
	def := Default()

	if cfg.HNSW.M != def.HNSW.M {
		t.Errorf("Expected default M=%d, got %d", def.HNSW.M, cfg.HNSW.M)
	}
	if cfg.IVFPQ.NumCentroids != def.IVFPQ.NumCentroids {
		t.Errorf("Expected default NumCentroids=%d, got %d", def.IVFPQ.NumCentroids, cfg.IVFPQ.NumCentroids)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got: %v", err)
	}

	cfg = Default()
	cfg.HNSW.M = 1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for HNSW.M below minimum")
	}

	cfg = Default()
	cfg.IVFPQ.NProbe = cfg.IVFPQ.NumCentroids + 1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for NProbe exceeding NumCentroids")
	}

	cfg = Default()
	cfg.IVFPQ.Anisotropic = true
	cfg.IVFPQ.AnisotropicThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for AnisotropicThreshold outside (0,1)")
	}

	cfg = Default()
	cfg.BM25.B = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for BM25.B outside [0,1]")
	}

	cfg = Default()
	cfg.Persistence.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty data directory")
	}

	cfg = Default()
	cfg.Trees.DiskANNAlpha = 0.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for DiskANNAlpha below 1")
	}
}

func TestCheckpointFsyncInterval(t *testing.T) {
	cfg := Default()
	if cfg.Persistence.CheckpointFsyncInterval() <= 0 {
		t.Error("expected a positive interval at the default pacing rate")
	}

	cfg.Persistence.CheckpointFsyncsPerSecond = 0
	if cfg.Persistence.CheckpointFsyncInterval() != 0 {
		t.Error("expected zero interval when pacing is disabled")
	}
}
