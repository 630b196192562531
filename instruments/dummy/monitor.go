package dummy

import (
	"context"
	"sync"
	"time"

	"github.com/skekre98/modrig/module"
)

// Sampler takes one combined reading.
type Sampler interface {
	Sample(ctx context.Context) (Reading, error)
}

var MonitorIface = module.NewInterface[Sampler]("Monitor")

type Reading struct {
	Power          float64   `json:"power"`
	Temperature    float64   `json:"temperature"`
	HasTemperature bool      `json:"hasTemperature"`
	At             time.Time `json:"at"`
}

// Monitor combines a power meter with an optional thermometer.
type Monitor struct {
	module.Base

	mu   sync.Mutex
	last Reading
}

var MonitorClass = &module.Class{
	Name: "dummy.Monitor",
	Declare: func() module.Declarations {
		return module.Declarations{
			Interfaces: []module.Interface{MonitorIface},
			Connectors: []module.Connector{
				{Name: "power", Interface: PowerMeterIface},
				{Name: "temperature", Interface: ThermometerIface, Optional: true},
			},
			StatusVars: []module.StatusVar{
				{Name: "samples", Default: 0, Constructor: module.AsInt},
			},
		}
	},
	New: func() module.Module { return &Monitor{} },
}

func (m *Monitor) OnActivate(context.Context) error {
	temp, err := m.Connection("temperature")
	if err != nil {
		return err
	}
	m.Logger().Info("monitor ready", "temperature", temp.Connected())
	return nil
}

func (m *Monitor) OnDeactivate(context.Context) error { return nil }

func (m *Monitor) Sample(ctx context.Context) (Reading, error) {
	var r Reading
	err := m.Call(ctx, func(ctx context.Context) error {
		power, err := module.Connect[Reader](m, "power")
		if err != nil {
			return err
		}
		if r.Power, err = power.Read(ctx); err != nil {
			return err
		}
		temp, err := module.Connect[Reader](m, "temperature")
		if err != nil {
			return err
		}
		if temp != nil {
			if r.Temperature, err = temp.Read(ctx); err != nil {
				return err
			}
			r.HasTemperature = true
		}
		r.At = time.Now()

		n, _ := module.StatusAs[int](m, "samples")
		if err := m.SetStatusVar("samples", n+1); err != nil {
			return err
		}
		m.mu.Lock()
		m.last = r
		m.mu.Unlock()
		return nil
	})
	return r, err
}

func (m *Monitor) Last() Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) Export() map[string]any {
	last := m.Last()
	samples, _ := module.StatusAs[int](m, "samples")
	return map[string]any{"samples": samples, "lastPower": last.Power}
}

// Register adds the dummy classes to c.
func Register(c *module.Catalog) error {
	return c.Register(SensorClass, MonitorClass)
}
