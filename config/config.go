// Package config assembles tunables for every index and storage component
// in this module into one structure: sane compiled-in defaults from
// Default, optional environment overrides from LoadFromEnv, and range
// checks from Validate.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds tunables for every retrieval component this module ships.
type Config struct {
	HNSW        HNSWConfig
	IVFPQ       IVFPQConfig
	BM25        BM25Config
	Persistence PersistenceConfig
	Filter      FilterConfig
	Trees       TreesConfig
}

// HNSWConfig mirrors hnsw.Config.
type HNSWConfig struct {
	M                    int // Number of bidirectional edges per node above layer 0 (default: 16)
	EfConstruction       int // Construction-time beam width (default: 200)
	EfSearch             int // Default search-time beam width (default: 50)
	Dimensions           int // Vector dimensions (default: 768)
	CompressionThreshold int // Neighbor-list length above which adjacency is roaring-compressed
}

// IVFPQConfig mirrors ivfpq.Config.
type IVFPQConfig struct {
	NumCentroids         int     // Coarse partitions (default: 256)
	NProbe               int     // Regions probed per query (default: 8)
	PQSubvectors         int     // Residual PQ subvector count
	PQBitsPerCode        int     // Bits per PQ code, max 8
	CompressionThreshold int     // Posting-list length above which ids are roaring-compressed
	Anisotropic          bool    // Use ScaNN-style anisotropic-loss coarse partitioning instead of k-means
	AnisotropicThreshold float64 // Threshold T in (0,1) controlling the anisotropic loss weighting
}

// BM25Config tunes the sparse lexical scorer.
type BM25Config struct {
	K1              float64 // BM25 term-frequency saturation (default: 1.2)
	B               float64 // BM25 length-normalization strength (default: 0.75)
	DirichletMu     float64 // Query-likelihood Dirichlet smoothing parameter (default: 1000.0)
	Eager           bool    // Build eager (pre-scored) postings instead of lazy
}

// PersistenceConfig tunes the WAL and checkpoint writer.
type PersistenceConfig struct {
	DataDir         string // Data directory root (default: "./data")
	EnableWAL       bool   // Enable write-ahead logging (default: true)
	SyncWrites      bool   // Fsync every WAL append (default: false)
	SegmentMaxBytes int64  // WAL segment rotation size (default: 64MiB)
	CheckpointFsyncsPerSecond int // Rate-limits checkpoint segment-copy fsyncs (default: 50)
}

// FilterConfig tunes predicate evaluation and selectivity estimation.
type FilterConfig struct {
	SelectivitySampleSize int // Sample size used to estimate predicate selectivity
}

// TreesConfig tunes the baseline index family (kd-tree, ball-tree, LSH,
// k-means tree, DiskANN stub, ScaNN anisotropic partitioner).
type TreesConfig struct {
	LSHNumHyperplanes int     // Hyperplanes per LSH table
	LSHNumTables      int     // Number of LSH hash tables
	DiskANNDegree     int     // Vamana max out-degree (R)
	DiskANNListSize   int     // Candidate list size during construction/search (L)
	DiskANNAlpha      float64 // RNG pruning threshold
	ScaNNPartitions   int     // Anisotropic partitioner cluster count
	ScaNNThreshold    float64 // Anisotropic loss threshold T
}

// Default returns the compiled-in defaults every component ships with.
func Default() *Config {
	return &Config{
		HNSW: HNSWConfig{
			M:                    16,
			EfConstruction:       200,
			EfSearch:             50,
			Dimensions:           768,
			CompressionThreshold: 512,
		},
		IVFPQ: IVFPQConfig{
			NumCentroids:         256,
			NProbe:               8,
			PQSubvectors:         8,
			PQBitsPerCode:        8,
			CompressionThreshold: 512,
			Anisotropic:          false,
			AnisotropicThreshold: 0.2,
		},
		BM25: BM25Config{
			K1:          1.2,
			B:           0.75,
			DirichletMu: 1000.0,
			Eager:       false,
		},
		Persistence: PersistenceConfig{
			DataDir:                   "./data",
			EnableWAL:                 true,
			SyncWrites:                false,
			SegmentMaxBytes:           64 << 20,
			CheckpointFsyncsPerSecond: 50,
		},
		Filter: FilterConfig{
			SelectivitySampleSize: 1000,
		},
		Trees: TreesConfig{
			LSHNumHyperplanes: 12,
			LSHNumTables:      8,
			DiskANNDegree:     64,
			DiskANNListSize:   100,
			DiskANNAlpha:      1.2,
			ScaNNPartitions:   16,
			ScaNNThreshold:    0.2,
		},
	}
}

// LoadFromEnv starts from Default and overrides fields set via RETRIEVE_*
// environment variables.
func LoadFromEnv() *Config {
	cfg := Default()

	if m := os.Getenv("RETRIEVE_HNSW_M"); m != "" {
		if v, err := strconv.Atoi(m); err == nil {
			cfg.HNSW.M = v
		}
	}
	if ef := os.Getenv("RETRIEVE_HNSW_EF_CONSTRUCTION"); ef != "" {
		if v, err := strconv.Atoi(ef); err == nil {
			cfg.HNSW.EfConstruction = v
		}
	}
	if ef := os.Getenv("RETRIEVE_HNSW_EF_SEARCH"); ef != "" {
		if v, err := strconv.Atoi(ef); err == nil {
			cfg.HNSW.EfSearch = v
		}
	}
	if dims := os.Getenv("RETRIEVE_DIMENSIONS"); dims != "" {
		if v, err := strconv.Atoi(dims); err == nil {
			cfg.HNSW.Dimensions = v
		}
	}

	if nc := os.Getenv("RETRIEVE_IVFPQ_NUM_CENTROIDS"); nc != "" {
		if v, err := strconv.Atoi(nc); err == nil {
			cfg.IVFPQ.NumCentroids = v
		}
	}
	if np := os.Getenv("RETRIEVE_IVFPQ_NPROBE"); np != "" {
		if v, err := strconv.Atoi(np); err == nil {
			cfg.IVFPQ.NProbe = v
		}
	}
	if aniso := os.Getenv("RETRIEVE_IVFPQ_ANISOTROPIC"); aniso == "true" {
		cfg.IVFPQ.Anisotropic = true
	}
	if t := os.Getenv("RETRIEVE_IVFPQ_ANISOTROPIC_THRESHOLD"); t != "" {
		if v, err := strconv.ParseFloat(t, 64); err == nil {
			cfg.IVFPQ.AnisotropicThreshold = v
		}
	}

	if k1 := os.Getenv("RETRIEVE_BM25_K1"); k1 != "" {
		if v, err := strconv.ParseFloat(k1, 64); err == nil {
			cfg.BM25.K1 = v
		}
	}
	if b := os.Getenv("RETRIEVE_BM25_B"); b != "" {
		if v, err := strconv.ParseFloat(b, 64); err == nil {
			cfg.BM25.B = v
		}
	}
	if eager := os.Getenv("RETRIEVE_BM25_EAGER"); eager == "true" {
		cfg.BM25.Eager = true
	}

	if dataDir := os.Getenv("RETRIEVE_DATA_DIR"); dataDir != "" {
		cfg.Persistence.DataDir = dataDir
	}
	if wal := os.Getenv("RETRIEVE_ENABLE_WAL"); wal == "false" {
		cfg.Persistence.EnableWAL = false
	}
	if sync := os.Getenv("RETRIEVE_SYNC_WRITES"); sync == "true" {
		cfg.Persistence.SyncWrites = true
	}
	if seg := os.Getenv("RETRIEVE_WAL_SEGMENT_MAX_BYTES"); seg != "" {
		if v, err := strconv.ParseInt(seg, 10, 64); err == nil {
			cfg.Persistence.SegmentMaxBytes = v
		}
	}
	if fps := os.Getenv("RETRIEVE_CHECKPOINT_FSYNCS_PER_SECOND"); fps != "" {
		if v, err := strconv.Atoi(fps); err == nil {
			cfg.Persistence.CheckpointFsyncsPerSecond = v
		}
	}

	return cfg
}

// Validate range-checks every section, returning the first error found.
func (c *Config) Validate() error {
	if c.HNSW.M < 2 || c.HNSW.M > 100 {
		return fmt.Errorf("invalid HNSW M: %d (recommended: 16)", c.HNSW.M)
	}
	if c.HNSW.EfConstruction < 10 {
		return fmt.Errorf("invalid HNSW efConstruction: %d (must be >= 10)", c.HNSW.EfConstruction)
	}
	if c.HNSW.Dimensions < 1 {
		return fmt.Errorf("invalid dimensions: %d (must be > 0)", c.HNSW.Dimensions)
	}

	if c.IVFPQ.NumCentroids < 1 {
		return fmt.Errorf("invalid IVF-PQ NumCentroids: %d (must be > 0)", c.IVFPQ.NumCentroids)
	}
	if c.IVFPQ.NProbe < 1 || c.IVFPQ.NProbe > c.IVFPQ.NumCentroids {
		return fmt.Errorf("invalid IVF-PQ NProbe: %d (must be in [1, NumCentroids])", c.IVFPQ.NProbe)
	}
	if c.IVFPQ.PQBitsPerCode < 1 || c.IVFPQ.PQBitsPerCode > 8 {
		return fmt.Errorf("invalid IVF-PQ PQBitsPerCode: %d (must be 1-8)", c.IVFPQ.PQBitsPerCode)
	}
	if c.IVFPQ.Anisotropic && (c.IVFPQ.AnisotropicThreshold <= 0 || c.IVFPQ.AnisotropicThreshold >= 1) {
		return fmt.Errorf("invalid IVF-PQ AnisotropicThreshold: %v (must be in (0,1))", c.IVFPQ.AnisotropicThreshold)
	}

	if c.BM25.K1 < 0 {
		return fmt.Errorf("invalid BM25 K1: %v (must be >= 0)", c.BM25.K1)
	}
	if c.BM25.B < 0 || c.BM25.B > 1 {
		return fmt.Errorf("invalid BM25 B: %v (must be in [0,1])", c.BM25.B)
	}

	if c.Persistence.DataDir == "" {
		return fmt.Errorf("data directory not specified")
	}
	if c.Persistence.SegmentMaxBytes < 1 {
		return fmt.Errorf("invalid WAL segment max bytes: %d (must be > 0)", c.Persistence.SegmentMaxBytes)
	}

	if c.Filter.SelectivitySampleSize < 1 {
		return fmt.Errorf("invalid filter selectivity sample size: %d (must be > 0)", c.Filter.SelectivitySampleSize)
	}

	if c.Trees.DiskANNDegree < 1 {
		return fmt.Errorf("invalid DiskANN degree: %d (must be > 0)", c.Trees.DiskANNDegree)
	}
	if c.Trees.DiskANNAlpha < 1 {
		return fmt.Errorf("invalid DiskANN alpha: %v (must be >= 1)", c.Trees.DiskANNAlpha)
	}
	if c.Trees.ScaNNPartitions < 1 {
		return fmt.Errorf("invalid ScaNN partition count: %d (must be > 0)", c.Trees.ScaNNPartitions)
	}

	return nil
}

// CheckpointFsyncInterval is the inverse pacing interval implied by
// CheckpointFsyncsPerSecond, handy for callers that want a time.Duration
// rather than a rate.
func (c *PersistenceConfig) CheckpointFsyncInterval() time.Duration {
	if c.CheckpointFsyncsPerSecond <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.CheckpointFsyncsPerSecond)
}
