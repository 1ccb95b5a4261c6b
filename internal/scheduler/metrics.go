package scheduler

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the agent's own counters, exposed on the control API.
type Metrics struct {
	Cycles            *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	DeliveryFailures  *prometheus.CounterVec
	SourceUnavailable *prometheus.CounterVec
}

// NewMetrics creates the agent metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_agent",
			Name:      "cycles_total",
			Help:      "Collection cycles run, by result",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fleet_agent",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a collection cycle from sampling to terminal delivery outcome",
			Buckets:   prometheus.DefBuckets,
		}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_agent",
			Name:      "delivery_failures_total",
			Help:      "Payloads that could not be delivered, by error kind",
		}, []string{"kind"}),
		SourceUnavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleet_agent",
			Name:      "source_unavailable_total",
			Help:      "Metric sources that reported their whole category unavailable",
		}, []string{"category"}),
	}
	for _, c := range []prometheus.Collector{m.Cycles, m.CycleDuration, m.DeliveryFailures, m.SourceUnavailable} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}
