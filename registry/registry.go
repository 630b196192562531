// Package registry owns the configured modules, the dependency graph derived
// from their connectors, and their lifecycle.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/skekre98/modrig/config"
	"github.com/skekre98/modrig/module"
	"github.com/skekre98/modrig/status"
)

// Options configures a Registry. Zero values fall back to an in-memory
// status store, the default logger and no metrics.
type Options struct {
	Store   status.Store
	Logger  *slog.Logger
	Metrics *Metrics
}

// Registry holds one entry per configured module. Table mutations are
// serialised by a registry-wide lock; activation and deactivation of a
// module are serialised by that module's own lock.
type Registry struct {
	catalog *module.Catalog
	store   status.Store
	logger  *slog.Logger
	metrics *Metrics
	events  *eventBus

	mu         sync.RWMutex
	order      []string
	entries    map[string]*entry
	requires   map[string][]string
	dependents map[string][]string
	// holds counts, per module, the bindings taken by holders outside the
	// registry, such as running tasks.
	holds map[string]map[string]int

	flight singleflight.Group
}

func New(catalog *module.Catalog, opts Options) *Registry {
	if opts.Store == nil {
		opts.Store = status.NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		catalog:    catalog,
		store:      opts.Store,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		events:     newEventBus(),
		entries:    make(map[string]*entry),
		requires:   make(map[string][]string),
		dependents: make(map[string][]string),
		holds:      make(map[string]map[string]int),
	}
}

type entry struct {
	name  string
	kind  module.Kind
	class *module.Class
	meta  *module.Metadata
	cfg   config.ModuleConfig

	// lifecycle excludes concurrent activation, deactivation and binding.
	lifecycle sync.Mutex

	mu       sync.RWMutex
	state    State
	instance module.Module
	err      error
}

func (e *entry) snapshot() (State, module.Module) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state, e.instance
}

func (e *entry) State() State {
	s, _ := e.snapshot()
	return s
}

func (e *entry) transition(to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := checkTransition(e.name, e.state, to); err != nil {
		return err
	}
	e.state = to
	return nil
}

func (e *entry) settle(to State, inst module.Module, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cerr := checkTransition(e.name, e.state, to); cerr != nil {
		return cerr
	}
	e.state = to
	e.instance = inst
	e.err = err
	return nil
}

func (e *entry) statusKey() status.Key {
	return status.Key{Name: e.name, Base: e.kind, Class: e.class.Name}
}

// targets lists the configured connector targets in connector declaration
// order, without duplicates.
func (e *entry) targets() []string {
	var out []string
	for _, c := range e.meta.Connectors() {
		if t, ok := e.cfg.Connect[c.Name]; ok && t != "" {
			out = append(out, t)
		}
	}
	return lo.Uniq(out)
}

type addOptions struct {
	allowOverwrite bool
}

// AddOption customises AddModule.
type AddOption func(*addOptions)

// AllowOverwrite replaces an existing module of the same name. The existing
// module is deactivated first and must not have active dependents.
func AllowOverwrite() AddOption {
	return func(o *addOptions) { o.allowOverwrite = true }
}

// AddModule validates cfg against the module class and adds a deactivated
// entry. Unknown connector or option names, unknown classes and dependency
// cycles are rejected without changing the registry.
func (r *Registry) AddModule(ctx context.Context, name string, kind module.Kind, cfg config.ModuleConfig, opts ...AddOption) error {
	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}
	e, err := r.newEntry(name, kind, cfg)
	if err != nil {
		return err
	}

	if r.has(name) {
		if !o.allowOverwrite {
			return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
		}
		if err := r.RemoveModule(ctx, name); err != nil {
			return fmt.Errorf("overwrite %s: %w", name, err)
		}
	}

	r.mu.Lock()
	if _, dup := r.entries[name]; dup {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateModule, name)
	}
	tentative := make(map[string]*entry, len(r.entries)+1)
	for n, x := range r.entries {
		tentative[n] = x
	}
	tentative[name] = e
	if err := detectCycle(append(lo.Without(r.order, name), name), buildRequires(tentative)); err != nil {
		r.mu.Unlock()
		return err
	}
	if err := e.transition(StateDeactivated); err != nil {
		r.mu.Unlock()
		return err
	}
	r.entries[name] = e
	r.order = append(r.order, name)
	r.refreshLocked()
	r.mu.Unlock()

	r.logger.Info("module added", "module", name, "base", string(kind), "class", cfg.Module)
	r.metrics.observeState(name, StateDeactivated)
	r.events.publish(eventModuleAdded, r.describe(e))
	return nil
}

func (r *Registry) newEntry(name string, kind module.Kind, cfg config.ModuleConfig) (*entry, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: module needs a name", ErrInvalidConfig)
	}
	if _, err := module.ParseKind(string(kind)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	if cfg.Module == "" {
		return nil, fmt.Errorf("%w: %s: no module class", ErrInvalidConfig, name)
	}
	cls, err := r.catalog.Lookup(cfg.Module)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	md, err := cls.Metadata()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	for cname, target := range cfg.Connect {
		if _, ok := md.Connector(cname); !ok {
			return nil, fmt.Errorf("%w: %s: %w: %s", ErrInvalidConfig, name, module.ErrUnknownConnector, cname)
		}
		if target == name {
			return nil, fmt.Errorf("%w: %s connects to itself", ErrCircularDependency, name)
		}
	}
	if err := module.CheckOptionNames(md, cfg.Options); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	return &entry{
		name:  name,
		kind:  kind,
		class: cls,
		meta:  md,
		cfg:   cfg,
		state: StateUnconfigured,
	}, nil
}

type removeOptions struct {
	force         bool
	ignoreMissing bool
}

type RemoveOption func(*removeOptions)

// Force deactivates active dependents, deepest first, before removing.
func Force() RemoveOption {
	return func(o *removeOptions) { o.force = true }
}

// IgnoreMissing makes removal of an absent module a no-op.
func IgnoreMissing() RemoveOption {
	return func(o *removeOptions) { o.ignoreMissing = true }
}

// RemoveModule deactivates and discards a module. A module that is still
// required by active dependents is only removed with Force. A module held
// through Acquire is never removed.
func (r *Registry) RemoveModule(ctx context.Context, name string, opts ...RemoveOption) error {
	var o removeOptions
	for _, opt := range opts {
		opt(&o)
	}
	e, err := r.lookup(name)
	if err != nil {
		if o.ignoreMissing {
			return nil
		}
		return err
	}

	if lockers := r.lockers(e); len(lockers) > 0 {
		if !o.force {
			return fmt.Errorf("%w: %s is required by %v", ErrModuleLocked, name, lockers)
		}
		ranked, err := r.RankingActiveDependentModules(name)
		if err != nil {
			return err
		}
		for _, dep := range ranked {
			if err := r.DeactivateModule(ctx, dep); err != nil {
				return fmt.Errorf("remove %s: %w", name, err)
			}
		}
	}
	if e.State() == StateActive {
		if err := r.DeactivateModule(ctx, name); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	switch s := e.State(); s {
	case StateDeactivated, StateUnconfigured, StateError:
	default:
		return fmt.Errorf("%w: cannot remove %s while %s", ErrInvalidTransition, name, s)
	}
	if lockers := r.lockers(e); len(lockers) > 0 {
		return fmt.Errorf("%w: %s is required by %v", ErrModuleLocked, name, lockers)
	}

	r.mu.Lock()
	if r.entries[name] != e {
		r.mu.Unlock()
		return nil
	}
	removed := e.info(r.requires[name], r.dependents[name])
	delete(r.entries, name)
	r.order = lo.Without(r.order, name)
	r.refreshLocked()
	r.mu.Unlock()

	r.logger.Info("module removed", "module", name, "base", string(e.kind))
	r.metrics.forget(name)
	r.events.publish(eventModuleRemoved, removed)
	return nil
}

func (r *Registry) has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// current reports whether e is still the configured entry for its name.
func (r *Registry) current(e *entry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[e.name] == e
}

// describe is ModuleInfo for an entry already looked up.
func (r *Registry) describe(e *entry) Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.info(r.requires[e.name], r.dependents[e.name])
}

func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return e, nil
}

// lockers returns what keeps e from being deactivated: dependents that are
// active or mid-transition, modules holding a binding to e's instance and
// holders registered with Acquire.
func (r *Registry) lockers(e *entry) []string {
	_, inst := e.snapshot()

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, name := range r.order {
		if name == e.name {
			continue
		}
		other := r.entries[name]
		state, oinst := other.snapshot()
		if lo.Contains(r.dependents[e.name], name) {
			switch state {
			case StateActivating, StateActive, StateDeactivating:
				out = append(out, name)
				continue
			}
		}
		if inst != nil && oinst != nil && lo.Contains(lo.Values(oinst.ModuleBase().Connections().Targets()), inst) {
			out = append(out, name)
		}
	}
	holders := lo.Keys(r.holds[e.name])
	slices.Sort(holders)
	return append(out, holders...)
}

// GetModuleInstance returns the live instance of an active module.
func (r *Registry) GetModuleInstance(name string) (module.Module, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	state, inst := e.snapshot()
	if state != StateActive || inst == nil {
		return nil, fmt.Errorf("%w: %s is %s", module.ErrNotActive, name, state)
	}
	return inst, nil
}

func (r *Registry) GetModuleState(name string) (State, error) {
	e, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	return e.State(), nil
}

// AllowRemote reports whether a module may be shared with remote clients.
// Modules are private unless configured with remote: true.
func (r *Registry) AllowRemote(name string) bool {
	e, err := r.lookup(name)
	if err != nil {
		return false
	}
	return e.cfg.Remote
}

// ModuleNames returns all configured module names in insertion order.
func (r *Registry) ModuleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// RemoteModuleNames returns the names of modules shared with remote clients.
func (r *Registry) RemoteModuleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(r.order, func(n string, _ int) bool { return r.entries[n].cfg.Remote })
}

// ModuleHasAppData reports whether persisted status exists for the module.
func (r *Registry) ModuleHasAppData(name string) (bool, error) {
	e, err := r.lookup(name)
	if err != nil {
		return false, err
	}
	return r.store.Exists(e.statusKey()), nil
}

// ClearModuleAppData deletes persisted status of an inactive module.
func (r *Registry) ClearModuleAppData(name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	if s := e.State(); s == StateActive || s == StateActivating || s == StateDeactivating {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, name, s)
	}
	return r.store.Remove(e.statusKey())
}

// Info describes a configured module.
type Info struct {
	Name       string      `json:"name"`
	Base       module.Kind `json:"base"`
	Class      string      `json:"class"`
	State      State       `json:"state"`
	Remote     bool        `json:"remote"`
	Requires   []string    `json:"requires"`
	Dependents []string    `json:"dependents"`
	Error      string      `json:"error,omitempty"`
}

func (e *entry) info(requires, dependents []string) Info {
	e.mu.RLock()
	defer e.mu.RUnlock()
	in := Info{
		Name:       e.name,
		Base:       e.kind,
		Class:      e.class.Name,
		State:      e.state,
		Remote:     e.cfg.Remote,
		Requires:   append([]string{}, requires...),
		Dependents: append([]string{}, dependents...),
	}
	if e.err != nil {
		in.Error = e.err.Error()
	}
	return in
}

func (r *Registry) ModuleInfo(name string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return e.info(r.requires[name], r.dependents[name]), nil
}

// Modules describes every configured module in insertion order.
func (r *Registry) Modules() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.order, func(n string, _ int) Info {
		return r.entries[n].info(r.requires[n], r.dependents[n])
	})
}
