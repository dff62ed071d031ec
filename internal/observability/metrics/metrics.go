// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "media_transcription"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Job metrics
	JobsTotal     prometheus.Counter
	JobsActive    prometheus.Gauge
	JobsCompleted prometheus.Counter
	JobsFailed    *prometheus.CounterVec
	JobDuration   prometheus.Histogram
	StageDuration *prometheus.HistogramVec

	// Media metrics
	UploadBytes        prometheus.Counter
	NormalizeDuration  prometheus.Histogram
	NormalizePassthru  prometheus.Counter
	ChunkingSkipped    prometheus.Counter
	SegmentSplits      prometheus.Counter
	SegmentSizeBytes   prometheus.Histogram
	SegmentsCreated    prometheus.Counter
	SegmentsCompleted  prometheus.Counter
	SegmentsFailed     *prometheus.CounterVec
	SegmentAttempts    prometheus.Histogram
	SegmentRetries     *prometheus.CounterVec
	SegmentsInFlight   prometheus.Gauge

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// STT metrics
	STTLatency *prometheus.HistogramVec
	STTErrors  *prometheus.CounterVec

	// Health probe metrics
	GRPCCalls *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		JobsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of pipeline jobs submitted",
		}),
		JobsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Number of pipeline jobs currently running",
		}),
		JobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that produced a transcript",
		}),
		JobsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_failed_total",
			Help:      "Total number of jobs that ended in the error stage",
		}, []string{"kind"}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "End-to-end duration of pipeline jobs in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"stage"}),

		UploadBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Total bytes of source media accepted",
		}),
		NormalizeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "normalize_duration_seconds",
			Help:      "Time spent transcoding source media",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		NormalizePassthru: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_passthrough_total",
			Help:      "Inputs passed through without transcoding",
		}),
		ChunkingSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunking_skipped_total",
			Help:      "Jobs transcribed as a single segment",
		}),
		SegmentSplits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_splits_total",
			Help:      "Oversized segments split in half and re-extracted",
		}),
		SegmentSizeBytes: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_size_bytes",
			Help:      "Size of extracted segments",
			Buckets:   prometheus.ExponentialBuckets(256*1024, 2, 8),
		}),
		SegmentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_created_total",
			Help:      "Total number of segments created",
		}),
		SegmentsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_completed_total",
			Help:      "Total number of segments transcribed",
		}),
		SegmentsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_failed_total",
			Help:      "Total number of segments that exhausted retries",
		}, []string{"kind"}),
		SegmentAttempts: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_attempts",
			Help:      "Attempts used per segment",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		SegmentRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_retries_total",
			Help:      "Segment attempts retried after a retryable error",
		}, []string{"kind"}),
		SegmentsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segments_in_flight",
			Help:      "Segments currently being fetched or transcribed",
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		STTLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Speech-to-text call latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 45, 90, 120},
		}, []string{"backend", "model"}),
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of classified STT errors",
		}, []string{"backend", "kind"}),

		GRPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls by method and status code",
		}, []string{"method", "code"}),
	}
}

// RecordJobStart records a new job starting.
func (m *Metrics) RecordJobStart() {
	m.JobsTotal.Inc()
	m.JobsActive.Inc()
}

// RecordJobEnd records a job reaching a terminal stage.
func (m *Metrics) RecordJobEnd(kind string, durationSeconds float64) {
	m.JobsActive.Dec()
	m.JobDuration.Observe(durationSeconds)
	if kind == "" {
		m.JobsCompleted.Inc()
		return
	}
	m.JobsFailed.WithLabelValues(kind).Inc()
}

// RecordStage records the time a stage took.
func (m *Metrics) RecordStage(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordUpload records accepted source bytes.
func (m *Metrics) RecordUpload(bytes int64) {
	m.UploadBytes.Add(float64(bytes))
}

// RecordNormalize records a normalization run.
func (m *Metrics) RecordNormalize(passthrough bool, durationSeconds float64) {
	if passthrough {
		m.NormalizePassthru.Inc()
		return
	}
	m.NormalizeDuration.Observe(durationSeconds)
}

// RecordSegmentCreated records an extracted segment.
func (m *Metrics) RecordSegmentCreated(sizeBytes int64) {
	m.SegmentsCreated.Inc()
	m.SegmentSizeBytes.Observe(float64(sizeBytes))
}

// RecordSegmentSplit records an oversize split.
func (m *Metrics) RecordSegmentSplit() {
	m.SegmentSplits.Inc()
}

// RecordChunkingSkipped records a single-segment job.
func (m *Metrics) RecordChunkingSkipped() {
	m.ChunkingSkipped.Inc()
}

// RecordSegmentResult records a segment reaching a terminal status.
func (m *Metrics) RecordSegmentResult(kind string, attempts int) {
	m.SegmentAttempts.Observe(float64(attempts))
	if kind == "" {
		m.SegmentsCompleted.Inc()
		return
	}
	m.SegmentsFailed.WithLabelValues(kind).Inc()
}

// RecordRetry records a retried attempt.
func (m *Metrics) RecordRetry(kind string) {
	m.SegmentRetries.WithLabelValues(kind).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSTTCall records one backend call.
func (m *Metrics) RecordSTTCall(backend, model string, kind string, latencySeconds float64) {
	m.STTLatency.WithLabelValues(backend, model).Observe(latencySeconds)
	if kind != "" {
		m.STTErrors.WithLabelValues(backend, kind).Inc()
	}
}

// RecordGRPCCall records one unary gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
}
