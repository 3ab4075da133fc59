package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/alers-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	completionDuration *prometheus.HistogramVec
	completionTotal    *prometheus.CounterVec
	fallbackTotal      prometheus.Counter
	summaryRefreshes   *prometheus.CounterVec
	bookkeepingFailed  *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	completionCount      uint64
	completionFailures   uint64
	fallbackCount        uint64
	summaryRefreshCount  uint64
	bookkeepingFailures  uint64
}

// NewMetricsService registers core Prometheus collectors.
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
		Help:    "Latency for cache operations",
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

	completionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_completion_duration_seconds",
		Help:    "Duration of completion gateway calls",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
	}, []string{"purpose", "mode"})

	completionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_completions_total",
		Help: "Completion gateway calls by purpose, mode and outcome",
	}, []string{"purpose", "mode", "outcome"})

	fallbackTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_stream_fallbacks_total",
		Help: "Turns that fell back from streaming to a single completion",
	})

	summaryRefreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_summary_refreshes_total",
		Help: "Rolling summary refresh attempts by outcome",
	}, []string{"outcome"})

	bookkeepingFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_turn_bookkeeping_failures_total",
		Help: "Post-turn steps that failed after the exchange was stored",
	}, []string{"step", "kind"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		completionDuration, completionTotal, fallbackTotal, summaryRefreshes, bookkeepingFailed, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		completionDuration: completionDuration,
		completionTotal:    completionTotal,
		fallbackTotal:      fallbackTotal,
		summaryRefreshes:   summaryRefreshes,
		bookkeepingFailed:  bookkeepingFailed,
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveCompletion records one gateway call. mode is "complete" or "stream".
func (m *MetricsService) ObserveCompletion(purpose, mode string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(ClassifyFailure(err))
		atomic.AddUint64(&m.completionFailures, 1)
	}
	m.completionDuration.WithLabelValues(purpose, mode).Observe(duration.Seconds())
	m.completionTotal.WithLabelValues(purpose, mode, outcome).Inc()
	atomic.AddUint64(&m.completionCount, 1)
}

// RecordFallback counts a turn answered by the non-streaming retry.
func (m *MetricsService) RecordFallback() {
	if m == nil {
		return
	}
	m.fallbackTotal.Inc()
	atomic.AddUint64(&m.fallbackCount, 1)
}

// RecordSummaryRefresh counts a rolling summary attempt.
func (m *MetricsService) RecordSummaryRefresh(outcome string) {
	if m == nil {
		return
	}
	m.summaryRefreshes.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.summaryRefreshCount, 1)
}

// RecordBookkeepingFailure counts a failed post-turn step.
func (m *MetricsService) RecordBookkeepingFailure(step string, kind FailureKind) {
	if m == nil {
		return
	}
	m.bookkeepingFailed.WithLabelValues(step, string(kind)).Inc()
	atomic.AddUint64(&m.bookkeepingFailures, 1)
}

// Snapshot returns aggregated metrics suitable for admin endpoints.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CompletionsTotal:         atomic.LoadUint64(&m.completionCount),
		CompletionFailures:       atomic.LoadUint64(&m.completionFailures),
		Fallbacks:                atomic.LoadUint64(&m.fallbackCount),
		SummaryRefreshes:         atomic.LoadUint64(&m.summaryRefreshCount),
		BookkeepingFailures:      atomic.LoadUint64(&m.bookkeepingFailures),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
