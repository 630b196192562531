package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skekre98/modrig/config"
	"github.com/skekre98/modrig/core"
	"github.com/skekre98/modrig/registry"
)

const ComponentName = "tasks"

// Component registers specs with a Runner bound to the module registry and
// schedules the ones listed under tasks in the configuration.
func Component(specs ...Spec) core.Component {
	return &component{specs: specs}
}

type component struct {
	specs  []Spec
	runner *Runner
}

func (m *component) Name() string        { return ComponentName }
func (m *component) DependsOn() []string { return []string{registry.ComponentName} }

func (m *component) Configure(c core.Container) error {
	l := core.Get[*slog.Logger](c)
	m.runner = NewRunner(core.Get[*registry.Registry](c), l.With("component", ComponentName))
	for _, s := range m.specs {
		if err := m.runner.Register(s); err != nil {
			return err
		}
	}
	core.Put(c, m.runner)
	return nil
}

func (m *component) Start(_ context.Context, c core.Container) error {
	cfg := core.Get[config.Root](c)
	for name, tc := range cfg.Tasks {
		if _, err := m.runner.Schedule(tc.Schedule, name, tc.Args); err != nil {
			return fmt.Errorf("schedule task %s: %w", name, err)
		}
	}
	return nil
}

func (m *component) Stop(ctx context.Context, _ core.Container) error {
	return m.runner.Close(ctx)
}
