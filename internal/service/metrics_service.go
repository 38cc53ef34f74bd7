package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	issuanceTotal   *prometheus.CounterVec
	transitionTotal *prometheus.CounterVec
	verifyTotal     *prometheus.CounterVec
	registryErrors  prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
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

	issuanceTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certificate_issuance_total",
		Help: "Certificate issuance attempts by outcome",
	}, []string{"outcome"})

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certificate_transition_total",
		Help: "Certificate status transitions by target status and outcome",
	}, []string{"status", "outcome"})

	verifyTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certificate_verification_total",
		Help: "Public verification requests by outcome",
	}, []string{"outcome"})

	registryErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_notification_errors_total",
		Help: "Failed outbound registry notifications",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHitRatio, cacheHits, cacheMisses,
		issuanceTotal, transitionTotal, verifyTotal, registryErrors, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		issuanceTotal:   issuanceTotal,
		transitionTotal: transitionTotal,
		verifyTotal:     verifyTotal,
		registryErrors:  registryErrors,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheLookup records a cache hit or miss and updates the hit ratio.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
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

// RecordIssuance counts an issuance attempt by outcome, e.g. "issued",
// "duplicate", "validation_error".
func (m *MetricsService) RecordIssuance(outcome string) {
	if m == nil {
		return
	}
	m.issuanceTotal.WithLabelValues(outcome).Inc()
}

// RecordTransition counts an approval decision by target status and outcome.
func (m *MetricsService) RecordTransition(status, outcome string) {
	if m == nil {
		return
	}
	m.transitionTotal.WithLabelValues(status, outcome).Inc()
}

// RecordVerification counts a public verification request by outcome.
func (m *MetricsService) RecordVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifyTotal.WithLabelValues(outcome).Inc()
}

// RecordRegistryError counts a failed outbound registry notification.
func (m *MetricsService) RecordRegistryError() {
	if m == nil {
		return
	}
	m.registryErrors.Inc()
}
