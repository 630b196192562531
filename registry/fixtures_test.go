package registry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skekre98/modrig/config"
	"github.com/skekre98/modrig/module"
	"github.com/skekre98/modrig/registry"
	"github.com/skekre98/modrig/status"
)

type Instrument interface{ Identify() string }

type Display interface{ Show() string }

var (
	instrumentIface = module.NewInterface[Instrument]("Instrument")
	displayIface    = module.NewInterface[Display]("Display")
)

// probe counts hook calls of every instance of a class.
type probe struct {
	activations   atomic.Int32
	deactivations atomic.Int32
	activateErr   error
	deactivateErr error
	delay         time.Duration
	// when set, deactivation signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

type hardware struct {
	module.Base
	p *probe
}

func (h *hardware) OnActivate(context.Context) error {
	if h.p.delay > 0 {
		time.Sleep(h.p.delay)
	}
	h.p.activations.Add(1)
	if h.p.activateErr != nil {
		return h.p.activateErr
	}
	n, _ := module.StatusAs[int](h, "count")
	return h.SetStatusVar("count", n+1)
}

func (h *hardware) OnDeactivate(context.Context) error {
	if h.p.release != nil {
		h.p.entered <- struct{}{}
		<-h.p.release
	}
	h.p.deactivations.Add(1)
	return h.p.deactivateErr
}

func (h *hardware) Identify() string { return "hw:" + h.Name() }

func hardwareClass(name string, p *probe) *module.Class {
	return &module.Class{
		Name: name,
		Declare: func() module.Declarations {
			return module.Declarations{
				Interfaces: []module.Interface{instrumentIface},
				StatusVars: []module.StatusVar{
					{Name: "count", Default: 0, Constructor: module.AsInt},
				},
				ConfigOptions: []module.ConfigOption{
					module.Defaulted("port", 0).WithConstructor(module.AsInt),
				},
			}
		},
		New: func() module.Module { return &hardware{p: p} },
	}
}

type screen struct{ module.Base }

func (s *screen) OnActivate(context.Context) error   { return nil }
func (s *screen) OnDeactivate(context.Context) error { return nil }
func (s *screen) Show() string                       { return "screen" }

var screenClass = &module.Class{
	Name: "test.Screen",
	Declare: func() module.Declarations {
		return module.Declarations{Interfaces: []module.Interface{displayIface}}
	},
	New: func() module.Module { return &screen{} },
}

type logic struct {
	module.Base
	p *probe
}

func (l *logic) OnActivate(context.Context) error {
	l.p.activations.Add(1)
	return l.p.activateErr
}

func (l *logic) OnDeactivate(context.Context) error {
	l.p.deactivations.Add(1)
	return l.p.deactivateErr
}

func logicClass(name string, p *probe) *module.Class {
	return &module.Class{
		Name: name,
		Declare: func() module.Declarations {
			return module.Declarations{
				Connectors: []module.Connector{
					{Name: "hw", Interface: instrumentIface},
					{Name: "aux", Interface: instrumentIface, Optional: true},
				},
			}
		},
		New: func() module.Module { return &logic{p: p} },
	}
}

type twin struct{ module.Base }

func (t *twin) OnActivate(context.Context) error   { return nil }
func (t *twin) OnDeactivate(context.Context) error { return nil }

var twinClass = &module.Class{
	Name: "test.Twin",
	Declare: func() module.Declarations {
		return module.Declarations{
			Connectors: []module.Connector{
				{Name: "left", Interface: instrumentIface},
				{Name: "right", Interface: instrumentIface},
			},
		}
	},
	New: func() module.Module { return &twin{} },
}

var errHook = errors.New("hook failed")

type fixture struct {
	reg    *registry.Registry
	store  *status.MemoryStore
	hw     *probe
	broken *probe
	lg     *probe
}

func newFixture(t *testing.T, opts ...func(*registry.Options)) *fixture {
	t.Helper()
	f := &fixture{
		store:  status.NewMemoryStore(),
		hw:     &probe{},
		broken: &probe{activateErr: errHook},
		lg:     &probe{},
	}
	cat := module.NewCatalog()
	require.NoError(t, cat.Register(
		hardwareClass("test.HardwareX", f.hw),
		hardwareClass("test.Broken", f.broken),
		logicClass("test.LogicY", f.lg),
		twinClass,
		screenClass,
	))
	o := registry.Options{Store: f.store}
	for _, opt := range opts {
		opt(&o)
	}
	f.reg = registry.New(cat, o)
	return f
}

func (f *fixture) add(t *testing.T, name string, kind module.Kind, class string, connect map[string]string) {
	t.Helper()
	require.NoError(t, f.reg.AddModule(context.Background(), name, kind, config.ModuleConfig{
		Module:  class,
		Connect: connect,
	}))
}

func (f *fixture) state(t *testing.T, name string) registry.State {
	t.Helper()
	s, err := f.reg.GetModuleState(name)
	require.NoError(t, err)
	return s
}

func newModuleConfig(class string, options map[string]any) config.ModuleConfig {
	return config.ModuleConfig{Module: class, Options: options}
}
