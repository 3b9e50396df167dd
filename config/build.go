package config

import (
	"github.com/nearkit/retrieve/bm25"
	"github.com/nearkit/retrieve/hnsw"
	"github.com/nearkit/retrieve/ivfpq"
	"github.com/nearkit/retrieve/kmeans"
	"github.com/nearkit/retrieve/pq"
	"github.com/nearkit/retrieve/trees"
)

// BuildHNSW translates the HNSW section into the native hnsw.Config the
// index constructor expects. M0 is set to 2*M as hnsw.DefaultConfig does;
// Selection is set to SelectHeuristic, where hnsw.DefaultConfig uses
// SelectClosest.
func (c *Config) BuildHNSW() hnsw.Config {
	cfg := hnsw.DefaultConfig()
	cfg.M = c.HNSW.M
	cfg.M0 = 2 * c.HNSW.M
	cfg.EfConstruction = c.HNSW.EfConstruction
	cfg.EfSearch = c.HNSW.EfSearch
	cfg.CompressionThreshold = c.HNSW.CompressionThreshold
	cfg.Selection = hnsw.SelectHeuristic
	return cfg
}

// BuildIVFPQ translates the IVF-PQ section, including the residual product
// quantizer and the optional ScaNN-style anisotropic coarse partitioner.
func (c *Config) BuildIVFPQ() ivfpq.Config {
	cfg := ivfpq.DefaultConfig()
	cfg.NumCentroids = c.IVFPQ.NumCentroids
	cfg.NProbe = c.IVFPQ.NProbe
	cfg.CompressionThreshold = c.IVFPQ.CompressionThreshold
	cfg.Anisotropic = c.IVFPQ.Anisotropic
	cfg.AnisotropicThreshold = c.IVFPQ.AnisotropicThreshold
	cfg.PQ = pq.Config{
		NumSubvectors: c.IVFPQ.PQSubvectors,
		BitsPerCode:   c.IVFPQ.PQBitsPerCode,
		Metric:        pq.MetricL2,
		KMeans:        kmeans.DefaultConfig(),
	}
	return cfg
}

// BuildBM25 translates the BM25 section into the native lazy-index config;
// the Eager/DirichletMu fields select the variant and scorer a caller
// builds on top, not the Config struct itself.
func (c *Config) BuildBM25() bm25.Config {
	return bm25.Config{K1: c.BM25.K1, B: c.BM25.B}
}

// BuildLSH translates the trees section's LSH tunables.
func (c *Config) BuildLSH() trees.LSHConfig {
	return trees.LSHConfig{NumTables: c.Trees.LSHNumTables, HashesPerTable: c.Trees.LSHNumHyperplanes}
}

// BuildDiskANN translates the trees section's Vamana-graph tunables.
func (c *Config) BuildDiskANN() trees.DiskANNConfig {
	cfg := trees.DefaultDiskANNConfig()
	cfg.R = c.Trees.DiskANNDegree
	cfg.L = c.Trees.DiskANNListSize
	cfg.Alpha = c.Trees.DiskANNAlpha
	return cfg
}

// BuildScaNN translates the trees section's anisotropic-partitioner tunables.
func (c *Config) BuildScaNN() trees.AnisotropicConfig {
	cfg := trees.DefaultAnisotropicConfig()
	cfg.NumPartitions = c.Trees.ScaNNPartitions
	cfg.Threshold = c.Trees.ScaNNThreshold
	return cfg
}
