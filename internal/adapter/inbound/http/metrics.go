package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sentinel-Gate/docgate/internal/domain/gate"
)

const metricsNamespace = "docgate"

// Metrics holds all Prometheus metrics for the gateway. It implements
// gate.Observer and service.LoginObserver.
type Metrics struct {
	reg prometheus.Registerer

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	GateDecisions    *prometheus.CounterVec
	GateDuration     prometheus.Histogram
	LoginAttempts    *prometheus.CounterVec
	ViewCacheLookups *prometheus.CounterVec
	EdgeRedirects    prometheus.Counter
	RedirectLoops    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		reg: reg,
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		GateDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "gate_decisions_total",
				Help:      "Auth gate decisions by outcome",
			},
			[]string{"outcome", "bypassed"},
		),
		GateDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "gate_evaluation_seconds",
				Help:      "Time spent evaluating the auth gate",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		LoginAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "login_attempts_total",
				Help:      "Local login submits by result",
			},
			[]string{"result"},
		),
		ViewCacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "view_cache_lookups_total",
				Help:      "Gate session view cache lookups",
			},
			[]string{"result"}, // hit/miss
		),
		EdgeRedirects: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "edge_redirects_total",
				Help:      "Requests redirected by the edge filter for a missing session cookie",
			},
		),
		RedirectLoops: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "redirect_loops_total",
				Help:      "Redirect loops broken with an error page",
			},
		),
	}
}

// ObserveDecision implements gate.Observer.
func (m *Metrics) ObserveDecision(d gate.Decision, elapsed time.Duration) {
	bypassed := "false"
	if d.Bypassed {
		bypassed = "true"
	}
	m.GateDecisions.WithLabelValues(d.Outcome.String(), bypassed).Inc()
	if !d.Bypassed {
		m.GateDuration.Observe(elapsed.Seconds())
	}
}

// ObserveViewCache implements gate.Observer.
func (m *Metrics) ObserveViewCache(hit bool) {
	if hit {
		m.ViewCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.ViewCacheLookups.WithLabelValues("miss").Inc()
}

// ObserveLogin implements service.LoginObserver.
func (m *Metrics) ObserveLogin(result string) {
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// RegisterActiveSessions exports the number of live local sessions.
func (m *Metrics) RegisterActiveSessions(fn func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "active_sessions",
		Help:      "Number of live locally issued sessions",
	}, func() float64 { return float64(fn()) })
}

// RegisterAuditDrops exports the audit drop counter.
func (m *Metrics) RegisterAuditDrops(fn func() int64) {
	promauto.With(m.reg).NewCounterFunc(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "audit_drops_total",
		Help:      "Total audit records dropped due to backpressure",
	}, func() float64 { return float64(fn()) })
}

// RegisterRateLimitKeys exports the number of tracked rate limit keys.
func (m *Metrics) RegisterRateLimitKeys(fn func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "rate_limit_keys",
		Help:      "Number of active rate limit keys",
	}, func() float64 { return float64(fn()) })
}

var _ gate.Observer = (*Metrics)(nil)
