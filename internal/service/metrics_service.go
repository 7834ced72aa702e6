package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/gradebook-api/internal/models"
)

const metricsNamespace = "gradebook"

// meanTracker accumulates a count and total duration for averages.
type meanTracker struct {
	count atomic.Uint64
	nanos atomic.Uint64
}

func (t *meanTracker) add(d time.Duration) {
	t.count.Add(1)
	if d > 0 {
		t.nanos.Add(uint64(d))
	}
}

func (t *meanTracker) meanMillis() float64 {
	n := t.count.Load()
	if n == 0 {
		return 0
	}
	return float64(t.nanos.Load()) / float64(n) / float64(time.Millisecond)
}

// MetricsService owns the Prometheus registry and keeps running totals for
// the JSON summary. All methods are safe on a nil receiver.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	httpDuration   *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	cacheLatency   *prometheus.HistogramVec
	dbDuration     *prometheus.HistogramVec
	scoresWritten  prometheus.Counter
	finalOverrides *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	reportJobs     *prometheus.CounterVec

	requests  meanTracker
	queries   meanTracker
	hits      atomic.Uint64
	misses    atomic.Uint64
	scores    atomic.Uint64
	overrides atomic.Uint64
	tools     atomic.Uint64
	reports   atomic.Uint64
}

// NewMetricsService builds a private registry with process, runtime and
// gradebook collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &MetricsService{
		registry: registry,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rollup_cache_lookups_total",
			Help:      "Rollup cache lookups by result.",
		}, []string{"result"}),
		cacheLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "rollup_cache_seconds",
			Help:      "Rollup cache round trips by operation.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"op"}),
		dbDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "db_load_seconds",
			Help:      "Time spent loading data for computed views.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"view"}),
		scoresWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scores_written_total",
			Help:      "Scores inserted or updated.",
		}),
		finalOverrides: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "final_overrides_total",
			Help:      "Final grade overrides set or cleared.",
		}, []string{"action"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "assistant_tool_calls_total",
			Help:      "Assistant tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		reportJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "report_jobs_total",
			Help:      "Report jobs reaching a terminal status.",
		}, []string{"type", "status"}),
	}
}

// Handler serves the Prometheus exposition format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
	m.requests.add(d)
}

// RecordCacheOperation records a rollup cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
	m.cacheLookups.WithLabelValues(result).Inc()
	m.cacheLatency.WithLabelValues("get").Observe(d.Seconds())
}

// ObserveCacheWrite records a rollup cache store.
func (m *MetricsService) ObserveCacheWrite(d time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues("set").Observe(d.Seconds())
}

// ObserveDBQuery records the database time behind a computed view.
func (m *MetricsService) ObserveDBQuery(view string, d time.Duration) {
	if m == nil {
		return
	}
	m.dbDuration.WithLabelValues(view).Observe(d.Seconds())
	m.queries.add(d)
}

// RecordScoresWritten counts saved scores.
func (m *MetricsService) RecordScoresWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.scoresWritten.Add(float64(n))
	m.scores.Add(uint64(n))
}

// RecordFinalOverride counts an override being set or cleared.
func (m *MetricsService) RecordFinalOverride(action string) {
	if m == nil {
		return
	}
	m.finalOverrides.WithLabelValues(action).Inc()
	m.overrides.Add(1)
}

// RecordToolCall counts an assistant tool invocation.
func (m *MetricsService) RecordToolCall(tool string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.tools.Add(1)
}

// RecordReportJob counts a report job reaching a terminal status.
func (m *MetricsService) RecordReportJob(reportType models.ReportType, status models.ReportStatus) {
	if m == nil {
		return
	}
	m.reportJobs.WithLabelValues(string(reportType), string(status)).Inc()
	if status == models.ReportStatusFinished {
		m.reports.Add(1)
	}
}

// Snapshot summarises the running totals.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits, misses := m.hits.Load(), m.misses.Load()
	var ratio float64
	if lookups := hits + misses; lookups > 0 {
		ratio = float64(hits) / float64(lookups)
	}
	return models.SystemMetrics{
		RequestsTotal:            m.requests.count.Load(),
		AverageRequestDurationMs: m.requests.meanMillis(),
		CacheHits:                hits,
		CacheMisses:              misses,
		CacheHitRatio:            ratio,
		DBQueryCount:             m.queries.count.Load(),
		AverageDBQueryDurationMs: m.queries.meanMillis(),
		ScoresWritten:            m.scores.Load(),
		FinalOverrideChanges:     m.overrides.Load(),
		ToolCalls:                m.tools.Load(),
		ReportsGenerated:         m.reports.Load(),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
