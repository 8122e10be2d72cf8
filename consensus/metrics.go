package consensus

import (
	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// metrics tracks registry and panel activity. The four counters
// follow the teacher's protocol/nova wiring (one Counter/Gauge per
// observable, explicit Register calls against an injected
// prometheus.Registerer); winningShare follows the teacher's
// metric.Registry/Averager convention (context_values.go's
// Context.Metrics field) for a value better expressed as a running
// average than a counter.
type metrics struct {
	validatorsRegistered prometheus.Counter
	panelsAssigned       prometheus.Counter
	escalations          prometheus.Counter
	consensusReached     prometheus.Counter
	winningShare         metric.Averager
}

func newMetrics(registerer prometheus.Registerer, registry metric.Registry) (*metrics, error) {
	if registry == nil {
		registry = metric.NewRegistry()
	}

	m := &metrics{
		validatorsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_validators_registered",
			Help: "Number of validator registrations processed",
		}),
		panelsAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_panels_assigned",
			Help: "Number of adjudication panels assigned",
		}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_escalations",
			Help: "Number of disputes escalated to an arbiter-only panel",
		}),
		consensusReached: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_reached_total",
			Help: "Number of finalized tallies that reached consensus",
		}),
		winningShare: registry.NewAverager("consensus_winning_share"),
	}

	if registerer == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.validatorsRegistered, m.panelsAssigned, m.escalations, m.consensusReached} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
