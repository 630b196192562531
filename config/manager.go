package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Manager loads configuration from a chain of sources into a typed struct,
// keeps it current on reload and notifies subscribers of changes. A reload
// that fails to bind or validate leaves the current value untouched.
type Manager struct {
	sources  []ConfigSource
	config   any
	binder   *Binder
	logger   *slog.Logger
	defaults func(cfg any)

	mu   sync.RWMutex
	subs []chan Event

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Options struct {
	// AutoReload watches every source that supports it and reloads on change.
	AutoReload bool
	// Defaults runs on each freshly bound value before it is swapped in.
	Defaults func(cfg any)
	Logger   *slog.Logger
}

// NewManager binds the merged sources into cfg, a pointer to a struct.
// Sources are merged in order, so with [file, env, cli] flags win.
//
//	var cfg config.Root
//	mgr, err := config.NewManager(&cfg, config.Options{AutoReload: true},
//	    &source.FileSource{BasePath: "configs"},
//	    &source.EnvSource{},
//	    &source.CLISource{},
//	)
func NewManager(cfg any, opts Options, sources ...ConfigSource) (*Manager, error) {
	if v := reflect.ValueOf(cfg); v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("config target must be a pointer to a struct, got %T", cfg)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		sources:  sources,
		config:   cfg,
		binder:   NewBinder(),
		logger:   logger,
		defaults: opts.Defaults,
	}

	if err := m.Reload(context.Background()); err != nil {
		return nil, err
	}
	if opts.AutoReload {
		m.startWatchers()
	}
	return m, nil
}

// Reload merges all sources, binds and validates the result into a fresh
// value and then swaps it into the managed struct.
func (m *Manager) Reload(ctx context.Context) error {
	merged := map[string]any{}
	for _, src := range m.sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		vals, err := src.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to load config from %s: %w", src.Name(), err)
		}
		Merge(merged, vals)
	}

	typ := reflect.TypeOf(m.config).Elem()
	next := reflect.New(typ).Interface()
	if err := m.binder.Bind(merged, next); err != nil {
		return fmt.Errorf("failed to bind config: %w", err)
	}
	if m.defaults != nil {
		m.defaults(next)
	}

	m.mu.Lock()
	prev := reflect.New(typ).Interface()
	reflect.ValueOf(prev).Elem().Set(reflect.ValueOf(m.config).Elem())
	reflect.ValueOf(m.config).Elem().Set(reflect.ValueOf(next).Elem())
	m.mu.Unlock()

	if !reflect.DeepEqual(prev, next) {
		evt := diffEvent(prev, next)
		m.logger.Info("configuration reloaded", "changed", evt.ChangedKeys)
		m.notify(evt)
	}
	return nil
}

// Snapshot copies the current configuration into out, which must have the
// managed struct's pointer type.
func (m *Manager) Snapshot(out any) error {
	ov := reflect.ValueOf(out)
	if ov.Type() != reflect.TypeOf(m.config) {
		return fmt.Errorf("snapshot target is %T, want %T", out, m.config)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ov.Elem().Set(reflect.ValueOf(m.config).Elem())
	return nil
}

// Subscribe registers ch for change events. Sends never block: an event is
// dropped for a subscriber whose buffer is full. The Manager never closes ch.
func (m *Manager) Subscribe(ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, ch)
}

func (m *Manager) notify(evt Event) {
	m.mu.RLock()
	subs := append([]chan Event(nil), m.subs...)
	m.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (m *Manager) startWatchers() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	for _, src := range m.sources {
		ch := make(chan Event, 1)
		if err := src.Watch(ctx, ch); err != nil {
			if !errors.Is(err, ErrWatchUnsupported) {
				m.logger.Warn("config watch failed", "source", src.Name(), "error", err)
			}
			continue
		}
		m.wg.Add(1)
		go func(name string) {
			defer m.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ch:
					if err := m.Reload(ctx); err != nil && ctx.Err() == nil {
						m.logger.Error("config reload failed", "source", name, "error", err)
					}
				}
			}
		}(src.Name())
	}
}

// Close stops the source watchers.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
