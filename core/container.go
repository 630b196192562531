package core

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrMissingDependency is the panic value wrapped by MustGet and Get.
var ErrMissingDependency = errors.New("container: missing dependency")

// Container is the shared object registry components configure against.
type Container interface {
	Set(key any, val any)
	Get(key any) (any, bool)
	MustGet(key any) any
}

type container struct {
	mu      sync.RWMutex
	objects map[any]any
}

func NewContainer() Container {
	return &container{objects: map[any]any{}}
}

func (c *container) Set(key, val any) {
	c.mu.Lock()
	c.objects[key] = val
	c.mu.Unlock()
}

func (c *container) Get(key any) (v any, ok bool) {
	c.mu.RLock()
	v, ok = c.objects[key]
	c.mu.RUnlock()
	return v, ok
}

func (c *container) MustGet(key any) any {
	v, ok := c.Get(key)
	if !ok {
		panic(fmt.Errorf("%w: %v (%T)", ErrMissingDependency, key, key))
	}
	return v
}

// TypeKey keys a value by its static type.
type TypeKey[T any] struct{}

func Put[T any](c Container, v T) { c.Set(TypeKey[T]{}, v) }

// Get returns the value stored for T and panics when there is none.
func Get[T any](c Container) T {
	v, ok := Lookup[T](c)
	if !ok {
		panic(fmt.Errorf("%w: %v", ErrMissingDependency, reflect.TypeFor[T]()))
	}
	return v
}

// Lookup is Get without the panic.
func Lookup[T any](c Container) (T, bool) {
	raw, ok := c.Get(TypeKey[T]{})
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}
