package registry

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/skekre98/modrig/module"
)

// Acquire returns the instance of an active module and records holder as
// bound to it until Release. While held, the module cannot be deactivated
// or removed, not even with Force. Holders are counted, so a holder that
// acquires twice must release twice.
func (r *Registry) Acquire(holder, name string) (module.Module, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if !r.current(e) {
		return nil, fmt.Errorf("%w: %s was removed", ErrUnknownModule, name)
	}
	state, inst := e.snapshot()
	if state != StateActive || inst == nil {
		return nil, fmt.Errorf("%w: %s is %s", module.ErrNotActive, name, state)
	}

	r.mu.Lock()
	held := r.holds[name]
	if held == nil {
		held = make(map[string]int)
		r.holds[name] = held
	}
	held[holder]++
	r.mu.Unlock()

	r.logger.Debug("module acquired", "module", name, "holder", holder)
	return inst, nil
}

// Release drops one hold of holder on name. Releasing something not held
// is a no-op.
func (r *Registry) Release(holder, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	held := r.holds[name]
	switch n := held[holder]; {
	case n > 1:
		held[holder] = n - 1
	case n == 1:
		delete(held, holder)
		if len(held) == 0 {
			delete(r.holds, name)
		}
	default:
		return
	}
	r.logger.Debug("module released", "module", name, "holder", holder)
}

// Holders lists who currently holds name.
func (r *Registry) Holders(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := lo.Keys(r.holds[name])
	slices.Sort(out)
	return out
}
