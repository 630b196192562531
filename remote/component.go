package remote

import (
	"context"
	"log/slog"

	"github.com/skekre98/modrig/config"
	"github.com/skekre98/modrig/core"
	"github.com/skekre98/modrig/registry"
	"github.com/skekre98/modrig/web"
)

const Name = "remote"

// Component mounts the remote service on the web engine when
// global.remote.enabled is set.
func Component() core.Component { return &component{} }

type component struct{}

func (m *component) Name() string        { return Name }
func (m *component) DependsOn() []string { return []string{web.Name, registry.ComponentName} }

func (m *component) Configure(c core.Container) error {
	cfg := core.Get[config.Root](c)
	l := core.Get[*slog.Logger](c)
	if !cfg.Global.Remote.Enabled {
		l.Info("remote service disabled")
		return nil
	}
	app, _ := core.Lookup[*core.App](c)
	svc := NewService(core.Get[*registry.Registry](c), Options{
		ByValue:     cfg.Global.ForceRemoteCallsByValue,
		CallTimeout: cfg.Global.Remote.CallTimeout,
		Logger:      l.With("component", Name),
		App: func() AppInfo {
			info := AppInfo{Name: cfg.App.Name, Version: cfg.App.Version}
			if app != nil {
				info.Uptime = app.Uptime()
			}
			return info
		},
	})
	svc.Register(web.Engine(c).Group(cfg.Global.Remote.BasePath))
	core.Put(c, svc)
	return nil
}

func (m *component) Start(context.Context, core.Container) error { return nil }
func (m *component) Stop(context.Context, core.Container) error  { return nil }
