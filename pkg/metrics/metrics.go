// Package metrics exposes Prometheus metrics for logins, session refreshes and expired
// sessions. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeThrottled = "throttled"
)

// Config configures the metric set.
type Config struct {
	// Namespace is the metric name prefix (default: "tenantauth").
	Namespace string

	// Registry is where metrics are registered.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the metric set.
type Option func(*Config)

// WithNamespace sets the metric namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithRegistry sets the Prometheus registerer.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = registry }
}

// Metrics is the tenantauth metric set.
type Metrics struct {
	logins          *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshWaiters  prometheus.Counter
	refreshDuration prometheus.Histogram
	sessionExpired  *prometheus.CounterVec
	authenticated   prometheus.Gauge
}

// New registers the metric set.
func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: "tenantauth",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	factory := promauto.With(cfg.Registry)

	return &Metrics{
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "logins_total",
			Help:      "Login attempts by scheme and outcome",
		}, []string{"scheme", "outcome"}),

		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "refresh_total",
			Help:      "Session refresh probes by outcome",
		}, []string{"outcome"}),

		refreshWaiters: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "refresh_waiters_total",
			Help:      "Requests that joined an in-flight refresh instead of starting one",
		}),

		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of session refresh probes in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		sessionExpired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "session_expired_total",
			Help:      "Session expiry reports by reason",
		}, []string{"reason"}),

		authenticated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "session_authenticated",
			Help:      "1 while the session is authenticated",
		}),
	}
}

// Login records a login attempt.
func (m *Metrics) Login(scheme, outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(scheme, outcome).Inc()
}

// Refresh records a completed refresh probe.
func (m *Metrics) Refresh(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
	m.refreshDuration.Observe(seconds)
}

// RefreshWaiter records a request joining an in-flight refresh.
func (m *Metrics) RefreshWaiter() {
	if m == nil {
		return
	}
	m.refreshWaiters.Inc()
}

// SessionExpired records an unrecoverable authentication failure.
func (m *Metrics) SessionExpired(reason string) {
	if m == nil {
		return
	}
	m.sessionExpired.WithLabelValues(reason).Inc()
}

// SetAuthenticated sets the authenticated gauge.
func (m *Metrics) SetAuthenticated(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.authenticated.Set(1)
		return
	}
	m.authenticated.Set(0)
}
