// Package metrics exposes Prometheus collectors for the artifact service,
// the login flow and the HTTP layer. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	artifactOps   *prometheus.CounterVec
	loginAttempts *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		artifactOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pasta_artifact_operations_total",
			Help: "Artifact operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		loginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pasta_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pasta_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pasta_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ArtifactOp records one service operation; err == nil counts as success.
func (m *Metrics) ArtifactOp(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.artifactOps.WithLabelValues(operation, outcome).Inc()
}

// LoginAttempt records a login outcome: success, invalid, throttled or error.
func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(outcome).Inc()
}

// HTTPRequest records a served request.
func (m *Metrics) HTTPRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
