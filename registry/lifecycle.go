package registry

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/multierr"

	"github.com/skekre98/modrig/module"
)

// ActivateModule activates name after activating everything it requires,
// depth first in connector order. Concurrent requests for the same module
// share one attempt. When activation fails the module ends in StateError;
// dependencies it activated along the way stay active.
func (r *Registry) ActivateModule(ctx context.Context, name string) error {
	_, err, _ := r.flight.Do(name, func() (any, error) {
		return nil, r.activate(ctx, name)
	})
	return err
}

func (r *Registry) activate(ctx context.Context, name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}

	e.lifecycle.Lock()
	if !r.current(e) {
		e.lifecycle.Unlock()
		return fmt.Errorf("%w: %s was removed", ErrUnknownModule, name)
	}
	switch s := e.State(); s {
	case StateActive:
		e.lifecycle.Unlock()
		return nil
	case StateError:
		e.lifecycle.Unlock()
		return fmt.Errorf("%w: %s is in error state and must be reset", ErrInvalidTransition, name)
	}
	if err := e.transition(StateActivating); err != nil {
		e.lifecycle.Unlock()
		return err
	}
	r.metrics.observeState(name, StateActivating)
	e.lifecycle.Unlock()

	start := time.Now()
	for _, dep := range e.targets() {
		if err := r.ActivateModule(ctx, dep); err != nil {
			return r.fail(e, fmt.Errorf("%w: %s requires %s: %w", ErrDependencyFailed, name, dep, err))
		}
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	inst, err := r.bringUp(ctx, e)
	if err != nil {
		return r.failLocked(e, err)
	}
	if err := e.settle(StateActive, inst, nil); err != nil {
		return err
	}

	elapsed := time.Since(start)
	r.logger.Info("module activated", "module", name, "base", string(e.kind), "duration", elapsed)
	r.metrics.observeActivation(name, elapsed)
	r.metrics.observeState(name, StateActive)
	r.events.publish(eventModuleState, r.describe(e))
	return nil
}

// bringUp creates the instance, loads its status, binds its connectors and
// runs its activation hook on its worker. Nothing is left bound or running
// when it fails.
func (r *Registry) bringUp(ctx context.Context, e *entry) (module.Module, error) {
	inst, err := module.Instantiate(e.class, module.InstanceConfig{
		Name:    e.name,
		Kind:    e.kind,
		Options: e.cfg.Options,
		Logger:  r.logger,
	})
	if err != nil {
		return nil, err
	}
	b := inst.ModuleBase()

	raw, err := r.store.Load(e.statusKey())
	if err != nil {
		return nil, err
	}
	if err := b.LoadStatus(raw); err != nil {
		return nil, err
	}

	for _, c := range e.meta.Connectors() {
		var target module.Module
		if tname, ok := e.cfg.Connect[c.Name]; ok && tname != "" {
			dep, err := r.lookup(tname)
			if err != nil {
				b.UnbindConnectors()
				return nil, fmt.Errorf("connector %s: %w", c.Name, err)
			}
			state, dinst := dep.snapshot()
			if state != StateActive {
				b.UnbindConnectors()
				return nil, fmt.Errorf("%w: connector %s target %s is %s", ErrDependencyFailed, c.Name, tname, state)
			}
			target = dinst
		}
		if err := b.BindConnector(c.Name, target); err != nil {
			b.UnbindConnectors()
			return nil, err
		}
	}

	b.StartWorker()
	if err := b.Call(ctx, inst.OnActivate); err != nil {
		b.StopWorker()
		b.UnbindConnectors()
		return nil, fmt.Errorf("activate %s: %w", e.name, err)
	}
	return inst, nil
}

func (r *Registry) fail(e *entry, err error) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	return r.failLocked(e, err)
}

func (r *Registry) failLocked(e *entry, err error) error {
	if serr := e.settle(StateError, nil, err); serr != nil {
		return multierr.Append(err, serr)
	}
	r.logger.Error("module failed", "module", e.name, "base", string(e.kind), "error", err)
	r.metrics.observeState(e.name, StateError)
	r.events.publish(eventModuleState, r.describe(e))
	return err
}

// DeactivateModule runs the deactivation hook, unbinds connectors and saves
// status of an active module. It fails with ErrModuleLocked, changing
// nothing, while any dependent is still active or a holder has acquired it. Deactivating an inactive
// module is a no-op.
func (r *Registry) DeactivateModule(ctx context.Context, name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if !r.current(e) {
		return fmt.Errorf("%w: %s was removed", ErrUnknownModule, name)
	}

	state, inst := e.snapshot()
	switch state {
	case StateDeactivated, StateUnconfigured:
		return nil
	case StateActive:
	default:
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, name, state)
	}
	if lockers := r.lockers(e); len(lockers) > 0 {
		return fmt.Errorf("%w: %s is required by %v", ErrModuleLocked, name, lockers)
	}
	if err := e.transition(StateDeactivating); err != nil {
		return err
	}
	r.metrics.observeState(name, StateDeactivating)

	b := inst.ModuleBase()
	hookErr := b.Call(ctx, inst.OnDeactivate)
	b.StopWorker()
	b.UnbindConnectors()

	var saveErr error
	if dumped, err := b.DumpStatus(); err != nil {
		saveErr = err
	} else if err := r.store.Save(e.statusKey(), dumped); err != nil {
		saveErr = fmt.Errorf("save status of %s: %w", name, err)
	}

	if hookErr != nil {
		return r.failLocked(e, multierr.Append(fmt.Errorf("deactivate %s: %w", name, hookErr), saveErr))
	}
	if err := e.settle(StateDeactivated, nil, nil); err != nil {
		return err
	}
	if saveErr != nil {
		r.logger.Error("module status not saved", "module", name, "error", saveErr)
	}
	r.logger.Info("module deactivated", "module", name, "base", string(e.kind))
	r.metrics.observeState(name, StateDeactivated)
	r.events.publish(eventModuleState, r.describe(e))
	return saveErr
}

// ResetModule returns a module in StateError to StateDeactivated.
func (r *Registry) ResetModule(name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if !r.current(e) {
		return fmt.Errorf("%w: %s was removed", ErrUnknownModule, name)
	}
	if s := e.State(); s != StateError {
		return fmt.Errorf("%w: %s is %s, not %s", ErrInvalidTransition, name, s, StateError)
	}
	if err := e.settle(StateDeactivated, nil, nil); err != nil {
		return err
	}
	r.logger.Info("module reset", "module", name)
	r.metrics.observeState(name, StateDeactivated)
	r.events.publish(eventModuleState, r.describe(e))
	return nil
}

// ActivateAll activates every configured module and reports all failures.
func (r *Registry) ActivateAll(ctx context.Context) error {
	r.mu.RLock()
	order := r.activationOrder()
	r.mu.RUnlock()

	var errs error
	for _, name := range order {
		if st, err := r.GetModuleState(name); err != nil || st == StateError {
			continue
		}
		errs = multierr.Append(errs, r.ActivateModule(ctx, name))
	}
	return errs
}

// DeactivateAll deactivates every active module, dependents first, and
// reports all failures.
func (r *Registry) DeactivateAll(ctx context.Context) error {
	r.mu.RLock()
	order := r.activationOrder()
	r.mu.RUnlock()
	slices.Reverse(order)

	var errs error
	for _, name := range order {
		if st, err := r.GetModuleState(name); err != nil || st != StateActive {
			continue
		}
		errs = multierr.Append(errs, r.DeactivateModule(ctx, name))
	}
	return errs
}
