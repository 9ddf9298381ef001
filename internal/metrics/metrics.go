package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "license_service"

const (
	StateActive      = "active"
	StateExpired     = "expired"
	StateDeactivated = "deactivated"
)

type Metrics struct {
	Operations  *prometheus.CounterVec
	Licenses    *prometheus.GaugeVec
	Completions *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "License lifecycle operations by outcome.",
		}, []string{"operation", "outcome"}),
		Licenses: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "licenses",
			Help:      "Licenses by state as of the last statistics refresh.",
		}, []string{"state"}),
		Completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Proxied completion requests by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveCompletion(result string) {
	if m == nil {
		return
	}
	m.Completions.WithLabelValues(result).Inc()
}

func (m *Metrics) SetLicenseCounts(active, expired, deactivated int) {
	if m == nil {
		return
	}
	m.Licenses.WithLabelValues(StateActive).Set(float64(active))
	m.Licenses.WithLabelValues(StateExpired).Set(float64(expired))
	m.Licenses.WithLabelValues(StateDeactivated).Set(float64(deactivated))
}
