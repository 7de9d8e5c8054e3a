// Package metrics exposes Prometheus collectors for the reading service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for readingd.
type Metrics struct {
	registry *prometheus.Registry

	// Session lifecycle
	SessionsStarted   prometheus.Counter
	SessionsCompleted *prometheus.CounterVec
	SessionsForfeited prometheus.Counter

	// Payments
	PaymentsSettled *prometheus.CounterVec

	// Leaderboard
	RankedUsers prometheus.Gauge

	// Scheduled jobs
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates a registry with the Go and process collectors plus every
// readingd metric.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers every readingd metric on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "readingd_sessions_started_total",
			Help: "Total number of reading sessions started",
		}),
		SessionsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readingd_sessions_completed_total",
				Help: "Total number of reading sessions completed with a point",
			},
			[]string{"mode"},
		),
		SessionsForfeited: factory.NewCounter(prometheus.CounterOpts{
			Name: "readingd_sessions_forfeited_total",
			Help: "Total number of disconnected sessions closed without a point",
		}),

		PaymentsSettled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readingd_payments_settled_total",
				Help: "Total number of payments settled",
			},
			[]string{"source"},
		),

		RankedUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "readingd_ranked_users",
			Help: "Number of users ranked by the last leaderboard recomputation",
		}),

		JobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readingd_job_runs_total",
				Help: "Total number of scheduled job runs by outcome",
			},
			[]string{"job", "outcome"},
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "readingd_job_duration_seconds",
				Help:    "Scheduled job duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"job"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readingd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "readingd_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionStarted implements application.Recorder.
func (m *Metrics) SessionStarted() { m.SessionsStarted.Inc() }

// SessionCompleted implements application.Recorder.
func (m *Metrics) SessionCompleted(auto bool) {
	mode := "manual"
	if auto {
		mode = "auto"
	}
	m.SessionsCompleted.WithLabelValues(mode).Inc()
}

// SessionForfeited implements application.Recorder.
func (m *Metrics) SessionForfeited() { m.SessionsForfeited.Inc() }

// PaymentSettled implements application.Recorder.
func (m *Metrics) PaymentSettled(source string) { m.PaymentsSettled.WithLabelValues(source).Inc() }

// RanksRecomputed implements application.Recorder.
func (m *Metrics) RanksRecomputed(users int) { m.RankedUsers.Set(float64(users)) }

// JobFinished implements scheduler.Observer.
func (m *Metrics) JobFinished(name, outcome string, duration time.Duration) {
	m.JobRuns.WithLabelValues(name, outcome).Inc()
	m.JobDuration.WithLabelValues(name).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency labelled by the matched
// ServeMux pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
