package module_test

import (
	"context"

	"github.com/skekre98/modrig/module"
)

type PowerMeter interface{ Power() float64 }

type Thermometer interface{ Temperature() float64 }

type Reader interface{ Value() float64 }

var (
	powerIface = module.NewInterface[PowerMeter]("PowerMeter")
	tempIface  = module.NewInterface[Thermometer]("Thermometer")
	chanA      = module.NewInterface[Reader]("ChannelA")
	chanB      = module.NewInterface[Reader]("ChannelB")
)

type sensor struct {
	module.Base
	activated   int
	deactivated int
}

func (s *sensor) OnActivate(context.Context) error   { s.activated++; return nil }
func (s *sensor) OnDeactivate(context.Context) error { s.deactivated++; return nil }
func (s *sensor) Power() float64                     { return 1.5 }
func (s *sensor) Temperature() float64               { return 21 }

var sensorClass = &module.Class{
	Name: "test.Sensor",
	Declare: func() module.Declarations {
		return module.Declarations{
			Interfaces: []module.Interface{powerIface, tempIface},
			ConfigOptions: []module.ConfigOption{
				module.Required("port").WithConstructor(module.AsInt),
				module.Defaulted("gain", 1.0).WithConstructor(module.AsFloat),
			},
			StatusVars: []module.StatusVar{
				{Name: "calibration", Default: 0.0},
			},
		}
	},
	New: func() module.Module { return &sensor{} },
}

type channel struct{ v float64 }

func (c channel) Value() float64 { return c.v }

type dual struct {
	module.Base
}

func (d *dual) OnActivate(context.Context) error   { return nil }
func (d *dual) OnDeactivate(context.Context) error { return nil }

func (d *dual) Overloads() module.Overloads {
	return module.Overloads{
		"ChannelA": channel{v: 1},
		"ChannelB": channel{v: 2},
	}
}

var dualClass = &module.Class{
	Name: "test.Dual",
	Declare: func() module.Declarations {
		return module.Declarations{Interfaces: []module.Interface{chanA, chanB}}
	},
	New: func() module.Module { return &dual{} },
}

type consumer struct {
	module.Base
}

func (c *consumer) OnActivate(context.Context) error   { return nil }
func (c *consumer) OnDeactivate(context.Context) error { return nil }

var consumerClass = &module.Class{
	Name: "test.Consumer",
	Declare: func() module.Declarations {
		return module.Declarations{
			Connectors: []module.Connector{
				{Name: "power", Interface: powerIface},
				{Name: "temperature", Interface: tempIface, Optional: true},
			},
		}
	},
	New: func() module.Module { return &consumer{} },
}

func mustInstantiate(cls *module.Class, name string, opts map[string]any) module.Module {
	m, err := module.Instantiate(cls, module.InstanceConfig{Name: name, Kind: module.KindHardware, Options: opts})
	if err != nil {
		panic(err)
	}
	return m
}
