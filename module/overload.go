package module

import (
	"fmt"
	"sort"
	"sync"
)

// Overloads maps interface names to the view object a module presents when
// it is accessed through that interface.
type Overloads map[string]any

// Overloader is implemented by modules that behave differently depending
// on the interface they are reached through.
type Overloader interface {
	Overloads() Overloads
}

func viewOf(target Module, iface string) any {
	if o, ok := target.(Overloader); ok {
		if v, ok := o.Overloads()[iface]; ok && v != nil {
			return v
		}
	}
	return target
}

// OverloadProxy binds a consumer to one interface view of a target module.
type OverloadProxy struct {
	target Module
	iface  string
}

// Disconnected is returned when an optional connector has no target.
var Disconnected = &OverloadProxy{}

func NewOverloadProxy(target Module, iface string) *OverloadProxy {
	return &OverloadProxy{target: target, iface: iface}
}

func (p *OverloadProxy) Target() Module    { return p.target }
func (p *OverloadProxy) Interface() string { return p.iface }

func (p *OverloadProxy) Connected() bool {
	return p != nil && p.target != nil
}

// View returns the implementation the target registered for the proxy's
// interface, or the target itself when it has no overload for it.
func (p *OverloadProxy) View() any {
	if !p.Connected() {
		return nil
	}
	return viewOf(p.target, p.iface)
}

// OverloadedAttribute holds one value per interface key. Keys are fixed at
// registration; reading, writing or deleting an unregistered key fails.
type OverloadedAttribute[T any] struct {
	mu     sync.RWMutex
	values map[string]T
}

func NewOverloadedAttribute[T any]() *OverloadedAttribute[T] {
	return &OverloadedAttribute[T]{values: make(map[string]T)}
}

// Register adds or replaces the implementation for key.
func (a *OverloadedAttribute[T]) Register(key string, v T) *OverloadedAttribute[T] {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.values == nil {
		a.values = make(map[string]T)
	}
	a.values[key] = v
	return a
}

func (a *OverloadedAttribute[T]) Get(key string) (T, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.values[key]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %q", ErrUnknownOverloadKey, key)
	}
	return v, nil
}

func (a *OverloadedAttribute[T]) Set(key string, v T) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.values[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOverloadKey, key)
	}
	a.values[key] = v
	return nil
}

func (a *OverloadedAttribute[T]) Delete(key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.values[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOverloadKey, key)
	}
	delete(a.values, key)
	return nil
}

func (a *OverloadedAttribute[T]) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	keys := make([]string, 0, len(a.values))
	for k := range a.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Accessor returns a copy of all implementations keyed by interface name,
// which is what callers outside any interface context get to see.
func (a *OverloadedAttribute[T]) Accessor() map[string]T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]T, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// Attr narrows an overloaded attribute through the proxy's interface.
func Attr[T any](p *OverloadProxy, a *OverloadedAttribute[T]) (T, error) {
	if !p.Connected() {
		var zero T
		return zero, ErrNotConnected
	}
	return a.Get(p.iface)
}

func SetAttr[T any](p *OverloadProxy, a *OverloadedAttribute[T], v T) error {
	if !p.Connected() {
		return ErrNotConnected
	}
	return a.Set(p.iface, v)
}

func DeleteAttr[T any](p *OverloadProxy, a *OverloadedAttribute[T]) error {
	if !p.Connected() {
		return ErrNotConnected
	}
	return a.Delete(p.iface)
}
