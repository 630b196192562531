package registry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var states = []State{StateUnconfigured, StateDeactivated, StateActivating, StateActive, StateDeactivating, StateError}

// Metrics exports module lifecycle metrics. A nil *Metrics records nothing.
type Metrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	activation  *prometheus.HistogramVec
}

// NewMetrics creates the lifecycle collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "modrig",
			Name:      "module_state",
			Help:      "Current lifecycle state of each module (1 for the current state).",
		}, []string{"module", "state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modrig",
			Name:      "module_transitions_total",
			Help:      "Lifecycle transitions by module and target state.",
		}, []string{"module", "state"}),
		activation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modrig",
			Name:      "module_activation_seconds",
			Help:      "Time to activate a module including its dependencies.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"module"}),
	}
	for _, c := range []prometheus.Collector{m.state, m.transitions, m.activation} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeState(name string, s State) {
	if m == nil {
		return
	}
	for _, st := range states {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(name, string(st)).Set(v)
	}
	m.transitions.WithLabelValues(name, string(s)).Inc()
}

func (m *Metrics) observeActivation(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.activation.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) forget(name string) {
	if m == nil {
		return
	}
	m.state.DeletePartialMatch(prometheus.Labels{"module": name})
	m.transitions.DeletePartialMatch(prometheus.Labels{"module": name})
	m.activation.DeletePartialMatch(prometheus.Labels{"module": name})
}
