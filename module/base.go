package module

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skekre98/modrig/config"
	"github.com/skekre98/modrig/logging"
)

// Module is an instrument-control component. Implementations embed Base and
// provide the activation hooks, which always run on the module's worker.
type Module interface {
	ModuleBase() *Base
	OnActivate(ctx context.Context) error
	OnDeactivate(ctx context.Context) error
}

// Base carries the per-instance state the runtime manages: resolved config
// options, status variables, connector bindings and the worker.
type Base struct {
	mu      sync.RWMutex
	name    string
	kind    Kind
	class   *Class
	meta    *Metadata
	options map[string]any
	status  map[string]any
	conns   Connections
	logger  *slog.Logger
	worker  *worker
}

func (b *Base) ModuleBase() *Base { return b }

// InstanceConfig is what the registry knows about an instance before it is
// created.
type InstanceConfig struct {
	Name    string
	Kind    Kind
	Options map[string]any
	Logger  *slog.Logger
}

// Instantiate creates an instance of cls and resolves its config options
// against the class metadata.
func Instantiate(cls *Class, cfg InstanceConfig) (Module, error) {
	if cls.New == nil {
		return nil, fmt.Errorf("%w: %s is abstract", ErrInvalidClass, cls.Name)
	}
	md, err := cls.Metadata()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.ForModule(logger, cfg.Name, string(cfg.Kind))
	opts, err := resolveOptions(md, cfg.Options, logger)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", cfg.Name, err)
	}

	m := cls.New()
	b := m.ModuleBase()
	if b == nil {
		return nil, fmt.Errorf("%w: %s.New returned no module base", ErrInvalidClass, cls.Name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.name = cfg.Name
	b.kind = cfg.Kind
	b.class = cls
	b.meta = md
	b.options = opts
	b.logger = logger
	b.status = make(map[string]any, len(md.statusVars.names))
	for _, sv := range md.StatusVars() {
		b.status[sv.Name] = sv.defaultValue()
	}
	return m, nil
}

func (b *Base) Name() string { return b.name }
func (b *Base) Kind() Kind   { return b.kind }

func (b *Base) ClassName() string {
	if b.class == nil {
		return ""
	}
	return b.class.Name
}

func (b *Base) Metadata() *Metadata { return b.meta }

func (b *Base) Logger() *slog.Logger {
	if b.logger == nil {
		return slog.Default()
	}
	return b.logger
}

// Option returns the resolved value of a config option.
func (b *Base) Option(name string) (any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.options[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOption, name)
	}
	return v, nil
}

// Options returns a copy of all resolved config options.
func (b *Base) Options() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.options))
	for k, v := range b.options {
		out[k] = v
	}
	return out
}

// DecodeOptions binds the resolved options into a struct tagged with
// `config` (and optionally `validate`) tags.
func (b *Base) DecodeOptions(target any) error {
	return config.NewBinder().Bind(b.Options(), target)
}

func OptionAs[T any](m Module, name string) (T, error) {
	var zero T
	v, err := m.ModuleBase().Option(name)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("config option %s is %T, not %T", name, v, zero)
	}
	return t, nil
}

func (b *Base) StatusVar(name string) (any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.status[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStatusVar, name)
	}
	return v, nil
}

func (b *Base) SetStatusVar(name string, v any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.status[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStatusVar, name)
	}
	b.status[name] = v
	return nil
}

func StatusAs[T any](m Module, name string) (T, error) {
	var zero T
	v, err := m.ModuleBase().StatusVar(name)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("status variable %s is %T, not %T", name, v, zero)
	}
	return t, nil
}

// LoadStatus sets every declared status variable from raw persisted values,
// applying constructors. Variables absent from raw get their default.
func (b *Base) LoadStatus(raw map[string]any) error {
	loaded := make(map[string]any, len(b.meta.statusVars.names))
	for _, sv := range b.meta.StatusVars() {
		v, err := sv.load(raw)
		if err != nil {
			return err
		}
		loaded[sv.Name] = v
	}
	b.mu.Lock()
	b.status = loaded
	b.mu.Unlock()
	return nil
}

// DumpStatus returns the persisted representation of all status variables.
func (b *Base) DumpStatus() (map[string]any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]any, len(b.status))
	for _, sv := range b.meta.StatusVars() {
		v, err := sv.dump(b.status[sv.Name])
		if err != nil {
			return nil, err
		}
		out[sv.Name] = v
	}
	return out, nil
}

func (b *Base) connector(name string) (Connector, error) {
	if b.meta == nil {
		return Connector{}, fmt.Errorf("%w: %s", ErrUnknownConnector, name)
	}
	c, ok := b.meta.Connector(name)
	if !ok {
		return Connector{}, fmt.Errorf("%w: %s on %s", ErrUnknownConnector, name, b.meta.Class())
	}
	return c, nil
}

// Connections exposes the connector bindings of the instance.
func (b *Base) Connections() *Connections { return &b.conns }

// Connection returns the proxy bound to the named connector.
func (b *Base) Connection(name string) (*OverloadProxy, error) {
	c, err := b.connector(name)
	if err != nil {
		return nil, err
	}
	return c.Get(&b.conns)
}

// BindConnector binds the named connector to target.
func (b *Base) BindConnector(name string, target Module) error {
	c, err := b.connector(name)
	if err != nil {
		return err
	}
	return c.Bind(&b.conns, target)
}

func (b *Base) UnbindConnectors() { b.conns.UnbindAll() }

// StartWorker starts the goroutine that runs all queued calls for this
// instance. It is a no-op when already running.
func (b *Base) StartWorker() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.worker == nil {
		b.worker = startWorker()
	}
}

// StopWorker stops the worker after the call in progress, if any.
func (b *Base) StopWorker() {
	b.mu.Lock()
	w := b.worker
	b.worker = nil
	b.mu.Unlock()
	if w != nil {
		w.stop()
	}
}

func (b *Base) WorkerRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.worker != nil
}

// Call runs fn on the module's worker and waits for it. A call whose ctx
// descends from a call already running on this worker runs inline, so
// A -> B -> A chains do not deadlock as long as each fn passes on the ctx
// it was given. That ctx must not be used after fn returns.
func (b *Base) Call(ctx context.Context, fn func(context.Context) error) error {
	b.mu.RLock()
	w := b.worker
	b.mu.RUnlock()
	if w == nil {
		return fmt.Errorf("%w: %s", ErrNotActive, b.name)
	}
	if chainFrom(ctx).holds(w) {
		return fn(ctx)
	}
	return w.submit(ctx, fn)
}
