package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-leave-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// certificate sweep.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	decisionTotal   *prometheus.CounterVec
	sweepDuration   prometheus.Observer
	sweepRejected   prometheus.Counter
	sweepReminded   prometheus.Counter
	sweepRuns       prometheus.Counter
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

	decisionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "request_decisions_total",
		Help: "Total reviewer decisions by kind and action",
	}, []string{"kind", "action"})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "certificate_sweep_duration_seconds",
		Help:    "Duration of certificate sweep runs",
		Buckets: prometheus.DefBuckets,
	})

	sweepRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certificate_sweep_auto_rejected_total",
		Help: "Requests auto-rejected for a missing certificate",
	})

	sweepReminded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certificate_sweep_reminders_total",
		Help: "Reminder stamps produced by the certificate sweep",
	})

	sweepRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "certificate_sweep_runs_total",
		Help: "Completed certificate sweep runs",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, decisionTotal,
		sweepDuration, sweepRejected, sweepReminded, sweepRuns, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		decisionTotal:   decisionTotal,
		sweepDuration:   sweepDuration,
		sweepRejected:   sweepRejected,
		sweepReminded:   sweepReminded,
		sweepRuns:       sweepRuns,
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

// ObserveDecision counts a reviewer verdict.
func (m *MetricsService) ObserveDecision(kind models.RequestKind, action models.DecisionAction) {
	if m == nil {
		return
	}
	m.decisionTotal.WithLabelValues(string(kind), string(action)).Inc()
}

// ObserveSweep records the outcome of one certificate sweep run.
func (m *MetricsService) ObserveSweep(result models.SweepResult, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
	m.sweepRejected.Add(float64(result.AutoRejected))
	m.sweepReminded.Add(float64(result.Reminded))
	m.sweepRuns.Inc()
}
