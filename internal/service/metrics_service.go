package service

import (
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the portal.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	scoringRuns     *prometheus.CounterVec
	scoringDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	admissions      *prometheus.CounterVec
	sideEffects     *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	scoringRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_scoring_runs_total",
		Help: "Scoring engine invocations by operation and outcome",
	}, []string{"operation", "outcome"})

	scoringDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "admission_scoring_duration_seconds",
		Help:    "Time spent loading inputs and scoring",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_status_transitions_total",
		Help: "Application status changes by source and target status",
	}, []string{"from", "to", "expected"})

	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_confirmations_total",
		Help: "Confirm-admission attempts by outcome",
	}, []string{"outcome"})

	sideEffects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admission_side_effects_total",
		Help: "Notification and email side effects by channel and result",
	}, []string{"channel", "result"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		scoringRuns, scoringDuration, transitions, admissions, sideEffects, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		scoringRuns:     scoringRuns,
		scoringDuration: scoringDuration,
		transitions:     transitions,
		admissions:      admissions,
		sideEffects:     sideEffects,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveScoring records one scoring run. outcome is e.g. "ok", "empty" or "insufficient_data".
func (m *MetricsService) ObserveScoring(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.scoringRuns.WithLabelValues(operation, outcome).Inc()
	m.scoringDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTransition counts a status change; expected is false for administrator overrides.
func (m *MetricsService) RecordTransition(from, to string, expected bool) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, strconv.FormatBool(expected)).Inc()
}

// RecordAdmission counts a confirm-admission attempt.
func (m *MetricsService) RecordAdmission(outcome string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

// RecordSideEffect counts a notification or email dispatch.
func (m *MetricsService) RecordSideEffect(channel, result string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(channel, result).Inc()
}

// TrackQueue exports the pending depth of a background job queue.
func (m *MetricsService) TrackQueue(name string, pending func() int) {
	if m == nil || pending == nil {
		return
	}
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "job_queue_pending",
		Help:        "Jobs buffered and waiting for a worker",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 {
		return float64(pending())
	})
	if err := m.registry.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			panic(err)
		}
	}
}
