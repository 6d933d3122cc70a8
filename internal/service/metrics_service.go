package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sirh-sync/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	registryCalls   *prometheus.CounterVec
	registryLatency *prometheus.HistogramVec
	syncInstances   *prometheus.CounterVec
	syncRunDuration prometheus.Histogram
	syncLastRun     prometheus.Gauge
	reconcileOps    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// NewMetricsService registers the service collectors on a private registry.
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

	registryCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sirh_requests_total",
		Help: "Total number of SIRH registry calls",
	}, []string{"endpoint", "status"})

	registryLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sirh_request_duration_seconds",
		Help:    "Duration of SIRH registry calls in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	syncInstances := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sirh_sync_instances_total",
		Help: "Instances processed by the periodic sync, by final state",
	}, []string{"state"})

	syncRunDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sirh_sync_run_duration_seconds",
		Help:    "Duration of periodic sync runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	syncLastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sirh_sync_last_run_timestamp_seconds",
		Help: "Unix time of the last completed periodic sync run",
	})

	reconcileOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sirh_reconcile_operations_total",
		Help: "Membership operations applied by reconciliation",
	}, []string{"operation"})

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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, registryCalls, registryLatency, syncInstances, syncRunDuration, syncLastRun, reconcileOps, cacheLatency, cacheWrite, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		registryCalls:   registryCalls,
		registryLatency: registryLatency,
		syncInstances:   syncInstances,
		syncRunDuration: syncRunDuration,
		syncLastRun:     syncLastRun,
		reconcileOps:    reconcileOps,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Registry exposes the underlying Prometheus registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveRegistryCall records a SIRH registry call. Status 0 denotes a transport failure.
func (m *MetricsService) ObserveRegistryCall(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.registryCalls.WithLabelValues(endpoint, label).Inc()
	m.registryLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordSyncRun records the per-instance states and duration of a periodic run.
func (m *MetricsService) RecordSyncRun(report *models.RunReport) {
	if m == nil || report == nil {
		return
	}
	for _, inst := range report.Instances {
		m.syncInstances.WithLabelValues(string(inst.State)).Inc()
		if inst.Reconcile != nil {
			m.RecordReconcile(*inst.Reconcile)
		}
	}
	m.syncRunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	m.syncLastRun.Set(float64(report.FinishedAt.Unix()))
}

// RecordReconcile adds the operations of one reconciliation pass.
func (m *MetricsService) RecordReconcile(result models.ReconcileResult) {
	if m == nil {
		return
	}
	m.reconcileOps.WithLabelValues("created").Add(float64(len(result.Created)))
	m.reconcileOps.WithLabelValues("enrolled").Add(float64(result.Enrolled))
	m.reconcileOps.WithLabelValues("removed").Add(float64(result.Removed))
	m.reconcileOps.WithLabelValues("regrouped").Add(float64(result.Regrouped))
	m.reconcileOps.WithLabelValues("failed").Add(float64(result.Failed))
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}
