package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
)

var ErrAlreadyRunning = errors.New("app already running")

// App is the application context. It owns the container and the
// components, and there is at most one running at a time per App value.
type App struct {
	Name       string
	Version    string
	Components []Component
	Container  Container
	Logger     *slog.Logger
	// ShutdownTimeout bounds Stop; zero means 15s.
	ShutdownTimeout time.Duration

	mu      sync.Mutex
	started time.Time
	order   []Component
}

func NewApp(logger *slog.Logger, comps ...Component) *App {
	a := &App{
		Components: comps,
		Container:  NewContainer(),
		Logger:     logger,
	}
	Put(a.Container, a)
	return a
}

// Run starts the app, waits for ctx to end or a termination signal, and
// stops the components in reverse order.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	select {
	case <-ctx.Done():
	case s := <-sig:
		a.Logger.Info("signal received", "signal", s.String())
	}

	timeout := a.ShutdownTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return a.Stop(shutdownCtx)
}

// Start configures every component and then starts them, dependencies
// first. Components that started before a failure are stopped again.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.order != nil {
		return ErrAlreadyRunning
	}
	order, err := topoSort(a.Components)
	if err != nil {
		return err
	}
	for _, c := range order {
		if err := c.Configure(a.Container); err != nil {
			return fmt.Errorf("configure %s: %w", c.Name(), err)
		}
	}
	for i, c := range order {
		a.Logger.Info("starting component", "component", c.Name())
		if err := c.Start(ctx, a.Container); err != nil {
			err = fmt.Errorf("start %s: %w", c.Name(), err)
			return multierr.Append(err, stopAll(ctx, a.Logger, a.Container, order[:i]))
		}
	}
	a.order = order
	a.started = time.Now()
	return nil
}

// Stop stops the running components in reverse start order and returns
// every error they reported.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	order := a.order
	a.order = nil
	a.mu.Unlock()
	return stopAll(ctx, a.Logger, a.Container, order)
}

func stopAll(ctx context.Context, l *slog.Logger, c Container, order []Component) error {
	var errs error
	for i := len(order) - 1; i >= 0; i-- {
		comp := order[i]
		l.Info("stopping component", "component", comp.Name())
		if err := comp.Stop(ctx, c); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop %s: %w", comp.Name(), err))
		}
	}
	return errs
}

// Uptime is zero while the app is not running.
func (a *App) Uptime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.order == nil {
		return 0
	}
	return time.Since(a.started)
}

func topoSort(comps []Component) ([]Component, error) {
	byName := map[string]Component{}
	for _, c := range comps {
		if _, dup := byName[c.Name()]; dup {
			return nil, errors.New("duplicate component name: " + c.Name())
		}
		byName[c.Name()] = c
	}
	visited := map[string]bool{}
	temp := map[string]bool{}
	var out []Component
	var visit func(string) error

	visit = func(n string) error {
		if temp[n] {
			return errors.New("cycle detected at component " + n)
		}
		if visited[n] {
			return nil
		}
		temp[n] = true
		for _, d := range byName[n].DependsOn() {
			if _, ok := byName[d]; !ok {
				return errors.New("missing dependency: " + n + " depends on " + d)
			}
			if err := visit(d); err != nil {
				return err
			}
		}
		visited[n] = true
		temp[n] = false
		out = append(out, byName[n])
		return nil
	}

	names := make([]string, 0, len(comps))
	for _, c := range comps {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return out, nil
}
