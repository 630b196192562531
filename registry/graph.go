package registry

import (
	"fmt"

	"github.com/samber/lo"
)

// buildRequires derives the dependency edges from the connector targets of
// each entry. Targets that are not configured are left out.
func buildRequires(entries map[string]*entry) map[string][]string {
	out := make(map[string][]string, len(entries))
	for name, e := range entries {
		out[name] = lo.Filter(e.targets(), func(t string, _ int) bool {
			_, ok := entries[t]
			return ok
		})
	}
	return out
}

// refreshLocked rebuilds both edge directions. The caller holds r.mu.
func (r *Registry) refreshLocked() {
	r.requires = buildRequires(r.entries)
	dependents := make(map[string][]string, len(r.order))
	for _, name := range r.order {
		dependents[name] = []string{}
	}
	for _, name := range r.order {
		for _, dep := range r.requires[name] {
			dependents[dep] = append(dependents[dep], name)
		}
	}
	r.dependents = dependents
}

// RefreshModuleLinks recomputes the dependency edges of every module from
// its connector configuration. Calling it repeatedly without configuration
// changes yields the same edges.
func (r *Registry) RefreshModuleLinks() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshLocked()
}

// Dependencies returns the configured modules name requires.
func (r *Registry) Dependencies(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.entries[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return append([]string{}, r.requires[name]...), nil
}

// Dependents returns the configured modules that require name.
func (r *Registry) Dependents(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.entries[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return append([]string{}, r.dependents[name]...), nil
}

// RankingActiveDependentModules returns the active modules that depend on
// name directly or transitively, ordered so that deactivating them front to
// back never hits a module that still has active dependents.
func (r *Registry) RankingActiveDependentModules(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.entries[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	visited := map[string]bool{name: true}
	var out []string
	var visit func(string)
	visit = func(n string) {
		for _, d := range r.dependents[n] {
			if visited[d] {
				continue
			}
			visited[d] = true
			visit(d)
			if r.entries[d].State() == StateActive {
				out = append(out, d)
			}
		}
	}
	visit(name)
	return out, nil
}

// detectCycle walks requires depth first in the given order and fails on
// the first back edge.
func detectCycle(order []string, requires map[string][]string) error {
	visited := map[string]bool{}
	temp := map[string]bool{}
	var visit func(n string, path []string) error
	visit = func(n string, path []string) error {
		if temp[n] {
			return fmt.Errorf("%w: %v", ErrCircularDependency, append(path[:len(path):len(path)], n))
		}
		if visited[n] {
			return nil
		}
		temp[n] = true
		for _, d := range requires[n] {
			if err := visit(d, append(path[:len(path):len(path)], n)); err != nil {
				return err
			}
		}
		temp[n] = false
		visited[n] = true
		return nil
	}
	for _, n := range order {
		if err := visit(n, nil); err != nil {
			return err
		}
	}
	return nil
}

// activationOrder lists the configured modules dependencies first, ties
// broken by insertion order. The caller holds r.mu.
func (r *Registry) activationOrder() []string {
	visited := map[string]bool{}
	var out []string
	var visit func(string)
	visit = func(n string) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, d := range r.requires[n] {
			visit(d)
		}
		out = append(out, n)
	}
	for _, n := range r.order {
		visit(n)
	}
	return out
}
