package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments every index/persistence
// component in this module reports through. Labels are by algorithm name
// (ann.Stats.AlgorithmName) where a metric varies across index types.
type Metrics struct {
	registry *prometheus.Registry

	BuildDuration  *prometheus.HistogramVec
	BuildErrors    *prometheus.CounterVec
	SearchLatency  *prometheus.HistogramVec
	SearchResults  *prometheus.HistogramVec
	IndexSize      *prometheus.GaugeVec
	IndexSizeBytes *prometheus.GaugeVec

	SegmentFlushTotal    prometheus.Counter
	SegmentFlushDuration prometheus.Histogram
	SegmentMergeTotal    prometheus.Counter

	WALAppendTotal  prometheus.Counter
	WALReplayTotal  prometheus.Counter
	WALReplayErrors prometheus.Counter
	CheckpointTotal prometheus.Counter

	FilterSelectivity *prometheus.HistogramVec
}

// NewMetrics creates and registers every instrument against a fresh private
// registry (rather than prometheus.DefaultRegisterer), so constructing more
// than one Metrics instance in the same process — as the global instance
// below and this package's own tests both do — never panics on duplicate
// registration.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	promauto := promauto.With(reg)
	return &Metrics{
		registry: reg,
		BuildDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieve_build_duration_seconds",
				Help:    "Index build duration in seconds by algorithm",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"algorithm"},
		),
		BuildErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrieve_build_errors_total",
				Help: "Total build failures by algorithm",
			},
			[]string{"algorithm"},
		),
		SearchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieve_search_latency_seconds",
				Help:    "Search latency in seconds by algorithm",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"algorithm"},
		),
		SearchResults: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieve_search_result_size",
				Help:    "Number of results returned by search, by algorithm",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
			},
			[]string{"algorithm"},
		),
		IndexSize: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "retrieve_index_size",
				Help: "Number of vectors currently indexed, by algorithm",
			},
			[]string{"algorithm"},
		),
		IndexSizeBytes: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "retrieve_index_size_bytes",
				Help: "Estimated resident size of the index in bytes, by algorithm",
			},
			[]string{"algorithm"},
		),

		SegmentFlushTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "retrieve_segment_flush_total",
			Help: "Total number of segments flushed to durable storage",
		}),
		SegmentFlushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "retrieve_segment_flush_duration_seconds",
			Help:    "Segment flush duration in seconds",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 10},
		}),
		SegmentMergeTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "retrieve_segment_merge_total",
			Help: "Total number of completed segment merges",
		}),

		WALAppendTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "retrieve_wal_append_total",
			Help: "Total number of WAL entries appended",
		}),
		WALReplayTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "retrieve_wal_replay_total",
			Help: "Total number of WAL entries successfully replayed during recovery",
		}),
		WALReplayErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "retrieve_wal_replay_errors_total",
			Help: "Total number of WAL replays halted by a corrupt or truncated record",
		}),
		CheckpointTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "retrieve_checkpoint_total",
			Help: "Total number of checkpoints created",
		}),

		FilterSelectivity: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieve_filter_selectivity",
				Help:    "Estimated fraction of documents a predicate matches",
				Buckets: []float64{.001, .01, .05, .1, .25, .5, .75, .9, .99, 1},
			},
			[]string{"field"},
		),
	}
}

func (m *Metrics) RecordBuild(algorithm string, duration time.Duration, err error) {
	m.BuildDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
	if err != nil {
		m.BuildErrors.WithLabelValues(algorithm).Inc()
	}
}

func (m *Metrics) RecordSearch(algorithm string, duration time.Duration, resultSize int) {
	m.SearchLatency.WithLabelValues(algorithm).Observe(duration.Seconds())
	m.SearchResults.WithLabelValues(algorithm).Observe(float64(resultSize))
}

func (m *Metrics) UpdateIndexSize(algorithm string, numVectors int, sizeBytes int64) {
	m.IndexSize.WithLabelValues(algorithm).Set(float64(numVectors))
	m.IndexSizeBytes.WithLabelValues(algorithm).Set(float64(sizeBytes))
}

func (m *Metrics) RecordSegmentFlush(duration time.Duration) {
	m.SegmentFlushTotal.Inc()
	m.SegmentFlushDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordSegmentMerge() { m.SegmentMergeTotal.Inc() }

func (m *Metrics) RecordWALAppend() { m.WALAppendTotal.Inc() }

func (m *Metrics) RecordWALReplay(entries int, haltedByCorruption bool) {
	m.WALReplayTotal.Add(float64(entries))
	if haltedByCorruption {
		m.WALReplayErrors.Inc()
	}
}

func (m *Metrics) RecordCheckpoint() { m.CheckpointTotal.Inc() }

func (m *Metrics) RecordFilterSelectivity(field string, selectivity float64) {
	m.FilterSelectivity.WithLabelValues(field).Observe(selectivity)
}

// Registry returns the private Prometheus registry this instance's
// instruments are registered against, for callers that expose a
// /metrics scrape endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

var globalMetrics = NewMetrics()

// SetGlobalMetrics replaces the package-level Metrics instance every
// index/persistence call site records through.
func SetGlobalMetrics(m *Metrics) { globalMetrics = m }

// GetGlobalMetrics returns the package-level Metrics instance.
func GetGlobalMetrics() *Metrics { return globalMetrics }
