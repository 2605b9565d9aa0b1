package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the orchestration service.
// A nil *Metrics is valid and records nothing, so components never need
// to guard their instrumentation calls.
type Metrics struct {
	// Job metrics
	JobsSubmitted prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobDuration   prometheus.Histogram

	// Live session metrics
	ActiveSessions    prometheus.Gauge
	SessionsStarted   prometheus.Counter
	SessionsFinalized prometheus.Counter
	ChunksTranscribed prometheus.Counter
	ChunkFailures     prometheus.Counter

	// Inline request metrics
	InlineRequests prometheus.Counter
	InlineFailures prometheus.Counter
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		JobsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "echostream_jobs_submitted_total",
			Help: "Total number of jobs submitted to the queue",
		}),
		JobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "echostream_jobs_completed_total",
			Help: "Total number of jobs that reached the completed state",
		}),
		JobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "echostream_jobs_failed_total",
			Help: "Total number of jobs that reached the failed state",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "echostream_job_duration_seconds",
			Help:    "Wall time of job execution in the worker pool",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "echostream_active_sessions",
			Help: "Current number of live streaming sessions",
		}),
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "echostream_sessions_started_total",
			Help: "Total number of streaming sessions started",
		}),
		SessionsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "echostream_sessions_finalized_total",
			Help: "Total number of streaming sessions finalized",
		}),
		ChunksTranscribed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "echostream_chunks_transcribed_total",
			Help: "Total number of audio chunks successfully transcribed",
		}),
		ChunkFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "echostream_chunk_failures_total",
			Help: "Total number of audio chunks that failed transcription",
		}),
		InlineRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "echostream_inline_requests_total",
			Help: "Total number of requests executed inline",
		}),
		InlineFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "echostream_inline_failures_total",
			Help: "Total number of inline requests that failed",
		}),
	}
}

// RecordJobSubmitted increments the submitted counter.
func (m *Metrics) RecordJobSubmitted() {
	if m == nil {
		return
	}
	m.JobsSubmitted.Inc()
}

// RecordJobCompleted records a completed job and its duration.
func (m *Metrics) RecordJobCompleted(durationSeconds float64) {
	if m == nil {
		return
	}
	m.JobsCompleted.Inc()
	m.JobDuration.Observe(durationSeconds)
}

// RecordJobFailed records a failed job and its duration.
func (m *Metrics) RecordJobFailed(durationSeconds float64) {
	if m == nil {
		return
	}
	m.JobsFailed.Inc()
	m.JobDuration.Observe(durationSeconds)
}

// SetActiveSessions sets the live session gauge.
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionStarted increments the sessions started counter.
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// RecordSessionFinalized increments the sessions finalized counter.
func (m *Metrics) RecordSessionFinalized() {
	if m == nil {
		return
	}
	m.SessionsFinalized.Inc()
}

// RecordChunk records the outcome of one chunk transcription.
func (m *Metrics) RecordChunk(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.ChunksTranscribed.Inc()
	} else {
		m.ChunkFailures.Inc()
	}
}

// RecordInlineRequest records one inline execution and its outcome.
func (m *Metrics) RecordInlineRequest(ok bool) {
	if m == nil {
		return
	}
	m.InlineRequests.Inc()
	if !ok {
		m.InlineFailures.Inc()
	}
}
