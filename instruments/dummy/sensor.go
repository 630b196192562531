// Package dummy provides simulated instruments for trying out module
// configurations without hardware.
package dummy

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/skekre98/modrig/module"
)

// Reader is a single measurement channel.
type Reader interface {
	Read(ctx context.Context) (float64, error)
}

var (
	PowerMeterIface  = module.NewInterface[Reader]("PowerMeter")
	ThermometerIface = module.NewInterface[Reader]("Thermometer")
)

const (
	chanPower = iota
	chanTemperature
)

type sensorOptions struct {
	Power       float64 `config:"power"`
	Temperature float64 `config:"temperature"`
	Noise       float64 `config:"noise" validate:"gte=0"`
	Seed        int     `config:"seed"`
}

// Sensor simulates an instrument with a power channel and a temperature
// channel. Each channel is reached through its own interface.
type Sensor struct {
	module.Base

	mu   sync.Mutex
	opts sensorOptions
	rng  *rand.Rand
}

var SensorClass = &module.Class{
	Name: "dummy.Sensor",
	Declare: func() module.Declarations {
		return module.Declarations{
			Interfaces: []module.Interface{PowerMeterIface, ThermometerIface},
			ConfigOptions: []module.ConfigOption{
				module.Defaulted("power", 1.0).WithConstructor(module.AsFloat),
				module.Defaulted("temperature", 20.0).WithConstructor(module.AsFloat).OnMissing(module.MissingInfo),
				module.Defaulted("noise", 0.0).WithConstructor(module.AtLeast(0, module.AsFloat)),
				module.Defaulted("seed", 1).WithConstructor(module.AsInt),
			},
			StatusVars: []module.StatusVar{
				{
					Name:        "calibration",
					NewDefault:  func() any { return mat.NewVecDense(2, []float64{1, 1}) },
					Constructor: asGains,
				},
			},
		}
	},
	New: func() module.Module { return &Sensor{} },
}

func (s *Sensor) OnActivate(context.Context) error {
	var o sensorOptions
	if err := s.DecodeOptions(&o); err != nil {
		return err
	}
	s.mu.Lock()
	s.opts = o
	s.rng = rand.New(rand.NewPCG(uint64(o.Seed), 0))
	s.mu.Unlock()
	s.Logger().Info("sensor ready", "power", o.Power, "temperature", o.Temperature)
	return nil
}

func (s *Sensor) OnDeactivate(context.Context) error { return nil }

func (s *Sensor) Overloads() module.Overloads {
	return module.Overloads{
		PowerMeterIface.Name:  channel{s: s, idx: chanPower},
		ThermometerIface.Name: channel{s: s, idx: chanTemperature},
	}
}

// Calibrate sets the gain of both channels.
func (s *Sensor) Calibrate(ctx context.Context, power, temperature float64) error {
	return s.Call(ctx, func(context.Context) error {
		return s.SetStatusVar("calibration", mat.NewVecDense(2, []float64{power, temperature}))
	})
}

func (s *Sensor) Export() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{"power": s.opts.Power, "temperature": s.opts.Temperature}
}

// measure runs on the sensor worker.
func (s *Sensor) measure(idx int) (float64, error) {
	gains, err := module.StatusAs[*mat.VecDense](s, "calibration")
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	base := s.opts.Power
	if idx == chanTemperature {
		base = s.opts.Temperature
	}
	if s.opts.Noise > 0 {
		base += s.rng.NormFloat64() * s.opts.Noise
	}
	if gains == nil {
		return base, nil
	}
	return base * gains.AtVec(idx), nil
}

type channel struct {
	s   *Sensor
	idx int
}

func (c channel) Read(ctx context.Context) (float64, error) {
	var v float64
	err := c.s.Call(ctx, func(context.Context) error {
		var err error
		v, err = c.s.measure(c.idx)
		return err
	})
	return v, err
}

// asGains accepts a stored vector or a plain list of two numbers.
func asGains(v any) (any, error) {
	switch x := v.(type) {
	case *mat.VecDense:
		return x, nil
	case nil:
		return mat.NewVecDense(2, []float64{1, 1}), nil
	}
	f, err := module.AsFloats(v)
	if err != nil {
		return nil, err
	}
	gains := f.([]float64)
	if len(gains) != 2 {
		return nil, fmt.Errorf("calibration needs 2 gains, got %d", len(gains))
	}
	return mat.NewVecDense(2, gains), nil
}
