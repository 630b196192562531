package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/skekre98/modrig/actuator"
	"github.com/skekre98/modrig/config"
	"github.com/skekre98/modrig/config/source"
	"github.com/skekre98/modrig/core"
	"github.com/skekre98/modrig/instruments/dummy"
	"github.com/skekre98/modrig/logging"
	"github.com/skekre98/modrig/module"
	"github.com/skekre98/modrig/registry"
	"github.com/skekre98/modrig/remote"
	"github.com/skekre98/modrig/task"
	"github.com/skekre98/modrig/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("modrig", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	dir := flags.String("config-dir", "configs", "directory holding application.yaml")
	profile := flags.String("profile", os.Getenv("MODRIG_PROFILE"), "config profile overlay, e.g. dev")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	// 1) config: file, then env, then --dotted.key=value flags
	var cfg config.Root
	mgr, err := config.NewManager(&cfg, config.Options{
		AutoReload: true,
		Defaults:   func(v any) { config.ApplyDefaults(v.(*config.Root)) },
	},
		&source.FileSource{BasePath: *dir, Profile: *profile},
		&source.EnvSource{},
		&source.CLISource{Args: os.Args[1:]},
	)
	if err != nil {
		return err
	}
	defer mgr.Close()

	// 2) logging
	logger := logging.New(cfg.Logging, os.Stdout).With(
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
	)
	slog.SetDefault(logger)
	watchConfig(mgr, logger)

	// 3) module classes
	catalog := module.NewCatalog()
	if err := dummy.Register(catalog); err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// 4) compose the app
	app := core.NewApp(
		logger,
		web.Component(),
		registry.Component(catalog),
		task.Component(dummy.SampleTask("sample", "monitor")),
		remote.Component(),
		actuator.Component(),
	)
	app.Name, app.Version = cfg.App.Name, cfg.App.Version

	// 5) seed shared objects into the container
	core.Put(app.Container, cfg)
	core.Put(app.Container, logger)
	core.Put(app.Container, promReg)
	core.Put(app.Container, mgr)

	// 6) run
	if err := app.Run(context.Background()); err != nil {
		logger.Error("app error", "error", err)
		return err
	}
	return nil
}

// watchConfig logs configuration reloads. Module configuration is read once
// at startup; changes apply on restart.
func watchConfig(mgr *config.Manager, l *slog.Logger) {
	ch := make(chan config.Event, 4)
	mgr.Subscribe(ch)
	go func() {
		for evt := range ch {
			l.Info("configuration changed; restart to apply module changes", "keys", evt.ChangedKeys)
		}
	}()
}
