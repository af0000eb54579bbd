// Package metrics exposes Prometheus counters for chain loads and filtered events.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the filter's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	eventsTotal     *prometheus.CounterVec
	cancelledTotal  *prometheus.CounterVec
	matchedTotal    *prometheus.CounterVec
	loadErrorsTotal *prometheus.CounterVec
	chainRules      *prometheus.GaugeVec
	executeDuration *prometheus.HistogramVec
}

// New creates and registers the collectors with reg.
// A nil reg returns nil (metrics disabled).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainfilter",
			Name:      "events_total",
			Help:      "Events executed against a chain",
		}, []string{"chain"}),

		cancelledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainfilter",
			Name:      "events_cancelled_total",
			Help:      "Events whose message was cancelled",
		}, []string{"chain"}),

		matchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainfilter",
			Name:      "events_matched_total",
			Help:      "Events matched by at least one rule",
		}, []string{"chain"}),

		loadErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chainfilter",
			Name:      "load_errors_total",
			Help:      "Chain loads that failed",
		}, []string{"chain", "code"}),

		chainRules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chainfilter",
			Name:      "chain_rules",
			Help:      "Rules in a loaded chain, including included chains",
		}, []string{"chain"}),

		executeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chainfilter",
			Name:      "execute_duration_seconds",
			Help:      "Time spent executing a chain for one event",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"chain"}),
	}

	reg.MustRegister(
		m.eventsTotal,
		m.cancelledTotal,
		m.matchedTotal,
		m.loadErrorsTotal,
		m.chainRules,
		m.executeDuration,
	)
	return m
}

// ObserveEvent records one executed event.
func (m *Metrics) ObserveEvent(chain string, matched, cancelled bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(chain).Inc()
	if matched {
		m.matchedTotal.WithLabelValues(chain).Inc()
	}
	if cancelled {
		m.cancelledTotal.WithLabelValues(chain).Inc()
	}
	m.executeDuration.WithLabelValues(chain).Observe(elapsed.Seconds())
}

// SetChainRules records the rule count of a freshly loaded chain.
func (m *Metrics) SetChainRules(chain string, rules int) {
	if m == nil {
		return
	}
	m.chainRules.WithLabelValues(chain).Set(float64(rules))
}

// LoadFailed records a failed chain load.
func (m *Metrics) LoadFailed(chain, code string) {
	if m == nil {
		return
	}
	m.loadErrorsTotal.WithLabelValues(chain, code).Inc()
}
