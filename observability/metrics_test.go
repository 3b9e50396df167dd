package observability

import (
	"errors"
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	t.Run("NewMetrics", func(t *testing.T) {
		if m == nil {
			t.Fatal("NewMetrics returned nil")
		}
		if m.BuildDuration == nil {
			t.Error("BuildDuration not initialized")
		}
		if m.SearchLatency == nil {
			t.Error("SearchLatency not initialized")
		}
		if m.SegmentFlushTotal == nil {
			t.Error("SegmentFlushTotal not initialized")
		}
		if m.WALReplayTotal == nil {
			t.Error("WALReplayTotal not initialized")
		}
		if m.FilterSelectivity == nil {
			t.Error("FilterSelectivity not initialized")
		}
	})

	t.Run("RecordBuild", func(t *testing.T) {
		m.RecordBuild("hnsw", 200*time.Millisecond, nil)
		m.RecordBuild("ivf-pq", 5*time.Second, errors.New("insufficient vectors"))

		algorithms := []string{"hnsw", "ivf-pq", "diskann", "scann-anisotropic", "kd-tree", "ball-tree", "lsh"}
		for _, alg := range algorithms {
			m.RecordBuild(alg, 10*time.Millisecond, nil)
		}
	})

	t.Run("RecordSearch", func(t *testing.T) {
		m.RecordSearch("hnsw", 500*time.Microsecond, 10)
		m.RecordSearch("ivf-pq", 2*time.Millisecond, 0)
		for i := 0; i < 20; i++ {
			m.RecordSearch("brute-force", time.Millisecond, i)
		}
	})

	t.Run("UpdateIndexSize", func(t *testing.T) {
		m.UpdateIndexSize("hnsw", 1000, 4_000_000)
		m.UpdateIndexSize("hnsw", 1001, 4_004_000)
		m.UpdateIndexSize("ivf-pq", 0, 0)
	})

	t.Run("RecordSegmentFlush", func(t *testing.T) {
		m.RecordSegmentFlush(10 * time.Millisecond)
		m.RecordSegmentFlush(2 * time.Second)
	})

	t.Run("RecordSegmentMerge", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			m.RecordSegmentMerge()
		}
	})

	t.Run("RecordWALAppend", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			m.RecordWALAppend()
		}
	})

	t.Run("RecordWALReplay", func(t *testing.T) {
		m.RecordWALReplay(128, false)
		m.RecordWALReplay(3, true)
	})

	t.Run("RecordCheckpoint", func(t *testing.T) {
		m.RecordCheckpoint()
		m.RecordCheckpoint()
	})

	t.Run("RecordFilterSelectivity", func(t *testing.T) {
		m.RecordFilterSelectivity("category", 0.12)
		m.RecordFilterSelectivity("timestamp", 0.83)
	})
}
