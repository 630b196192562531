package module

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Connector declares that a module needs a live reference to another
// module implementing Interface. The configuration names the target under
// the connector's Name.
type Connector struct {
	Name      string
	Interface Interface
	Optional  bool
}

// Connections holds the proxies bound for the connectors of one consumer.
// The zero value is ready to use.
type Connections struct {
	mu    sync.RWMutex
	bound map[string]*OverloadProxy
}

// Bind wraps target in a proxy fixed to the connector's interface. Nothing
// is stored when Bind fails.
func (c Connector) Bind(conns *Connections, target Module) error {
	conns.mu.Lock()
	defer conns.mu.Unlock()
	if _, ok := conns.bound[c.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, c.Name)
	}
	if isNilModule(target) {
		if c.Optional {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrMissingTarget, c.Name)
	}
	if !Complies(target, c.Interface) {
		return fmt.Errorf("%w: connector %s wants %s, %s does not declare it",
			ErrInterfaceMismatch, c.Name, c.Interface.Name, target.ModuleBase().ClassName())
	}
	if conns.bound == nil {
		conns.bound = make(map[string]*OverloadProxy)
	}
	conns.bound[c.Name] = NewOverloadProxy(target, c.Interface.Name)
	return nil
}

// Unbind drops the proxy for the connector if there is one.
func (c Connector) Unbind(conns *Connections) {
	conns.mu.Lock()
	defer conns.mu.Unlock()
	delete(conns.bound, c.Name)
}

func (c Connector) IsBound(conns *Connections) bool {
	conns.mu.RLock()
	defer conns.mu.RUnlock()
	_, ok := conns.bound[c.Name]
	return ok
}

// Get returns the bound proxy. An unbound optional connector yields
// Disconnected; an unbound mandatory one fails with ErrNotConnected.
func (c Connector) Get(conns *Connections) (*OverloadProxy, error) {
	conns.mu.RLock()
	p, ok := conns.bound[c.Name]
	conns.mu.RUnlock()
	if ok {
		return p, nil
	}
	if c.Optional {
		return Disconnected, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotConnected, c.Name)
}

// Bound returns the names of bound connectors, sorted.
func (conns *Connections) Bound() []string {
	conns.mu.RLock()
	defer conns.mu.RUnlock()
	names := make([]string, 0, len(conns.bound))
	for n := range conns.bound {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Targets returns the bound target modules by connector name.
func (conns *Connections) Targets() map[string]Module {
	conns.mu.RLock()
	defer conns.mu.RUnlock()
	out := make(map[string]Module, len(conns.bound))
	for n, p := range conns.bound {
		out[n] = p.target
	}
	return out
}

func (conns *Connections) UnbindAll() {
	conns.mu.Lock()
	defer conns.mu.Unlock()
	conns.bound = nil
}

// Resolve returns the view of the connector target as T. An unbound
// optional connector yields the zero T and no error.
func Resolve[T any](conns *Connections, c Connector) (T, error) {
	var zero T
	p, err := c.Get(conns)
	if err != nil {
		return zero, err
	}
	if !p.Connected() {
		return zero, nil
	}
	v, ok := p.View().(T)
	if !ok {
		return zero, fmt.Errorf("%w: connector %s (%s) is %T, want %v",
			ErrConnectorType, c.Name, c.Interface.Name, p.View(), reflect.TypeFor[T]())
	}
	return v, nil
}

// Connect resolves a connector declared on m's class by name.
func Connect[T any](m Module, name string) (T, error) {
	b := m.ModuleBase()
	c, err := b.connector(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return Resolve[T](&b.conns, c)
}

func isNilModule(m Module) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
