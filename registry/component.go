package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/skekre98/modrig/config"
	"github.com/skekre98/modrig/core"
	"github.com/skekre98/modrig/module"
	"github.com/skekre98/modrig/status"
)

const ComponentName = "modules"

// Component builds the registry from the gui, logic and hardware sections
// of the configuration and activates global.startupModules on start. It
// deactivates everything on stop.
func Component(catalog *module.Catalog) core.Component {
	return &component{catalog: catalog}
}

type component struct {
	catalog *module.Catalog
	reg     *Registry
}

func (m *component) Name() string        { return ComponentName }
func (m *component) DependsOn() []string { return nil }

func (m *component) Configure(c core.Container) error {
	cfg := core.Get[config.Root](c)
	l := core.Get[*slog.Logger](c)

	var metrics *Metrics
	if promReg, ok := core.Lookup[*prometheus.Registry](c); ok && cfg.Observability.Metrics.Enabled {
		var err error
		if metrics, err = NewMetrics(promReg); err != nil {
			return fmt.Errorf("module metrics: %w", err)
		}
	}

	m.reg = New(m.catalog, Options{
		Store:   status.NewFileStore(cfg.Global.StatusDir),
		Logger:  l,
		Metrics: metrics,
	})
	if err := LoadConfig(context.Background(), m.reg, &cfg); err != nil {
		return err
	}
	core.Put(c, m.catalog)
	core.Put(c, m.reg)
	return nil
}

// LoadConfig adds every configured module, hardware first, then logic,
// then gui, each section in name order.
func LoadConfig(ctx context.Context, reg *Registry, cfg *config.Root) error {
	var errs error
	for _, kind := range module.Kinds {
		section := cfg.Modules(string(kind))
		names := make([]string, 0, len(section))
		for name := range section {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			errs = multierr.Append(errs, reg.AddModule(ctx, name, kind, section[name]))
		}
	}
	return errs
}

// Start activates the startup modules. A module that fails to come up is
// logged and left in the error state; the app keeps running.
func (m *component) Start(ctx context.Context, c core.Container) error {
	cfg := core.Get[config.Root](c)
	l := core.Get[*slog.Logger](c)
	for _, name := range cfg.Global.StartupModules {
		if err := m.reg.ActivateModule(ctx, name); err != nil {
			l.Error("startup module failed", "module", name, "error", err)
		}
	}
	return nil
}

func (m *component) Stop(ctx context.Context, _ core.Container) error {
	return m.reg.DeactivateAll(ctx)
}
