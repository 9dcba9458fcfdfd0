// Package metric provides Prometheus metrics for VendCore.
//
// It exposes handshake outcomes, the live session population by
// state, wallet dispense activity, and sweeper work.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vendcore"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Handshake metrics
	AuthStarted  prometheus.Counter
	AuthOutcomes *prometheus.CounterVec

	// Dispense metrics
	DispenseTotal  *prometheus.CounterVec
	DispensePaise  prometheus.Counter
	SessionsSwept  prometheus.Counter
	RateLimitDrops prometheus.Counter
}

// NewRegistry creates the metrics registry with all collectors
// registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.AuthStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "handshakes_started_total",
		Help:      "Authentication handshakes initiated.",
	})

	r.AuthOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "handshake_outcomes_total",
		Help:      "Terminal handshake outcomes by kind.",
	}, []string{"outcome"})

	r.DispenseTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "dispenses_total",
		Help:      "Dispense attempts by result.",
	}, []string{"result"})

	r.DispensePaise = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "dispensed_paise_total",
		Help:      "Total paise debited by successful dispenses.",
	})

	r.SessionsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sessions",
		Name:      "swept_total",
		Help:      "Expired sessions removed by the sweeper.",
	})

	r.RateLimitDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "rate_limited_total",
		Help:      "Authentication starts rejected by the rate limiter.",
	})

	r.registry.MustRegister(
		r.AuthStarted,
		r.AuthOutcomes,
		r.DispenseTotal,
		r.DispensePaise,
		r.SessionsSwept,
		r.RateLimitDrops,
	)
	return r
}

// ObserveOutcome counts one terminal handshake outcome. Shaped to
// plug into the auth service's outcome hook.
func (r *Registry) ObserveOutcome(outcome string) {
	r.AuthOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveDispense counts one completed dispense attempt. Shaped to
// plug into the dispense service's hook.
func (r *Registry) ObserveDispense(success bool, amountPaise int64) {
	if success {
		r.DispenseTotal.WithLabelValues("success").Inc()
		r.DispensePaise.Add(float64(amountPaise))
		return
	}
	r.DispenseTotal.WithLabelValues("rejected").Inc()
}

// ObserveSweep counts sessions removed by one sweeper pass.
func (r *Registry) ObserveSweep(removed int) {
	r.SessionsSwept.Add(float64(removed))
}

// MustRegister adds extra collectors, e.g. the session gauge.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.registry.MustRegister(cs...)
}

// Gatherer exposes the underlying registry for scraping and tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
