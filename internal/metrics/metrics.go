package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationGet records cache read calls.
	CacheOperationGet CacheOperation = "get"
	// CacheOperationSet records cache write attempts.
	CacheOperationSet CacheOperation = "set"
)

// CacheOutcome captures the result of a cache operation.
type CacheOutcome string

const (
	// CacheHit indicates the read returned a fresh entry.
	CacheHit CacheOutcome = "hit"
	// CacheMiss indicates no fresh entry was present.
	CacheMiss CacheOutcome = "miss"
	// CacheStored indicates the entry was persisted.
	CacheStored CacheOutcome = "stored"
	// CacheError indicates the operation failed on every backend.
	CacheError CacheOutcome = "error"
)

// FetchOutcome captures the result of one source fetch.
type FetchOutcome string

const (
	// FetchOK indicates the source returned live records.
	FetchOK FetchOutcome = "ok"
	// FetchFallback indicates every endpoint failed and the static dataset was served.
	FetchFallback FetchOutcome = "fallback"
	// FetchSkipped indicates the source was disabled or out of quota.
	FetchSkipped FetchOutcome = "skipped"
	// FetchError indicates the fetch failed without a fallback.
	FetchError FetchOutcome = "error"
)

// Recorder publishes Prometheus metrics for cache, source, and scheduler activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	sourceFetches *prometheus.CounterVec
	sourceLatency *prometheus.HistogramVec
	sourceRecords *prometheus.GaugeVec

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loanfeed",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Cache store operations executed by the service.",
	}, []string{"source", "operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "loanfeed",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for cache store operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"source", "operation", "result"})

	sourceFetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loanfeed",
		Subsystem: "source",
		Name:      "fetches_total",
		Help:      "External source fetch attempts by outcome.",
	}, []string{"source", "outcome"})

	sourceLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "loanfeed",
		Subsystem: "source",
		Name:      "fetch_duration_seconds",
		Help:      "Latency distribution for completed source fetches.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
	}, []string{"source", "outcome"})

	sourceRecords := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "loanfeed",
		Subsystem: "source",
		Name:      "records",
		Help:      "Records contributed by each source in the most recent aggregation.",
	}, []string{"source"})

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loanfeed",
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job executions by terminal state.",
	}, []string{"job", "state"})

	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "loanfeed",
		Subsystem: "scheduler",
		Name:      "job_duration_seconds",
		Help:      "Latency distribution for completed scheduled jobs.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"job"})

	reg.MustRegister(cacheOperations, cacheLatency, sourceFetches, sourceLatency, sourceRecords, jobRuns, jobDuration)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		cacheOperations: cacheOperations,
		cacheLatency:    cacheLatency,
		sourceFetches:   sourceFetches,
		sourceLatency:   sourceLatency,
		sourceRecords:   sourceRecords,
		jobRuns:         jobRuns,
		jobDuration:     jobDuration,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveCache records the result of one cache operation.
func (r *Recorder) ObserveCache(source string, operation CacheOperation, result CacheOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	sourceLabel := normalizeLabel(source)
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(CacheOperationGet)
	}
	resLabel := normalizeLabel(string(result))
	r.cacheOperations.WithLabelValues(sourceLabel, opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(sourceLabel, opLabel, resLabel).Observe(duration.Seconds())
}

// ObserveFetch records the outcome and latency of one source fetch.
func (r *Recorder) ObserveFetch(source string, outcome FetchOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	sourceLabel := normalizeLabel(source)
	outcomeLabel := normalizeLabel(string(outcome))
	r.sourceFetches.WithLabelValues(sourceLabel, outcomeLabel).Inc()
	r.sourceLatency.WithLabelValues(sourceLabel, outcomeLabel).Observe(duration.Seconds())
}

// SetSourceRecords publishes the per-source record count from the latest aggregation.
func (r *Recorder) SetSourceRecords(source string, count int) {
	if r == nil {
		return
	}
	r.sourceRecords.WithLabelValues(normalizeLabel(source)).Set(float64(count))
}

// ObserveJob records one scheduled job execution.
func (r *Recorder) ObserveJob(job, state string, duration time.Duration) {
	if r == nil {
		return
	}
	jobLabel := normalizeLabel(job)
	r.jobRuns.WithLabelValues(jobLabel, normalizeLabel(state)).Inc()
	r.jobDuration.WithLabelValues(jobLabel).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
