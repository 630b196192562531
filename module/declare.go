package module

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Declarations is the table a class declares for itself. Inherited entries
// come from the class parents and are merged by Metadata.
type Declarations struct {
	Interfaces    []Interface
	Connectors    []Connector
	StatusVars    []StatusVar
	ConfigOptions []ConfigOption
}

// Class describes a module type. Parents play the role of base classes:
// their declarations are inherited, and a declaration of the same name in
// the class itself replaces the inherited one.
type Class struct {
	Name    string
	Parents []*Class
	Declare func() Declarations
	// New returns a fresh, uninitialised instance. Classes without New are
	// abstract and can only be used as parents.
	New func() Module

	once    sync.Once
	meta    *Metadata
	metaErr error
}

// Metadata returns the merged, immutable declaration tables of the class.
// The tables are computed once.
func (c *Class) Metadata() (*Metadata, error) {
	c.once.Do(func() {
		c.meta, c.metaErr = c.buildMetadata()
	})
	return c.meta, c.metaErr
}

func (c *Class) buildMetadata() (*Metadata, error) {
	md := &Metadata{
		class:      c.Name,
		interfaces: newTable[Interface](),
		connectors: newTable[Connector](),
		statusVars: newTable[StatusVar](),
		options:    newTable[ConfigOption](),
	}
	for _, p := range c.Parents {
		if p == nil {
			return nil, fmt.Errorf("%w: %s has a nil parent", ErrInvalidClass, c.Name)
		}
		pm, err := p.Metadata()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		md.interfaces.inherit(pm.interfaces)
		md.connectors.inherit(pm.connectors)
		md.statusVars.inherit(pm.statusVars)
		md.options.inherit(pm.options)
		for _, a := range pm.ancestry {
			if !containsString(md.ancestry, a) {
				md.ancestry = append(md.ancestry, a)
			}
		}
	}
	md.ancestry = append([]string{c.Name}, md.ancestry...)

	if c.Declare == nil {
		return md, nil
	}
	own := c.Declare()
	seen := map[string]string{}
	claim := func(kind, name string) error {
		if name == "" {
			return fmt.Errorf("%w: %s declares a %s without a name", ErrInvalidClass, c.Name, kind)
		}
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("%w: %s declares %q twice (%s, %s)", ErrInvalidClass, c.Name, name, prev, kind)
		}
		seen[name] = kind
		return nil
	}
	for _, i := range own.Interfaces {
		if i.Name == "" {
			return nil, fmt.Errorf("%w: %s declares an unnamed interface", ErrInvalidClass, c.Name)
		}
		md.interfaces.put(i.Name, i)
	}
	for _, cn := range own.Connectors {
		if err := claim("connector", cn.Name); err != nil {
			return nil, err
		}
		if cn.Interface.Name == "" {
			return nil, fmt.Errorf("%w: %s connector %q has no interface", ErrInvalidClass, c.Name, cn.Name)
		}
		md.connectors.put(cn.Name, cn)
	}
	for _, sv := range own.StatusVars {
		if err := claim("status variable", sv.Name); err != nil {
			return nil, err
		}
		md.statusVars.put(sv.Name, sv)
	}
	for _, opt := range own.ConfigOptions {
		if err := claim("config option", opt.Name); err != nil {
			return nil, err
		}
		md.options.put(opt.Name, opt)
	}
	return md, nil
}

// Metadata is the per-class snapshot of declarations, including everything
// inherited from parents.
type Metadata struct {
	class      string
	ancestry   []string
	interfaces table[Interface]
	connectors table[Connector]
	statusVars table[StatusVar]
	options    table[ConfigOption]
}

func (m *Metadata) Class() string { return m.class }

// Ancestry lists the class followed by its ancestors, nearest first.
func (m *Metadata) Ancestry() []string { return append([]string(nil), m.ancestry...) }

// Implements reports whether an interface of the given name is declared
// anywhere in the hierarchy.
func (m *Metadata) Implements(name string) bool {
	_, ok := m.interfaces.items[name]
	return ok
}

func (m *Metadata) Interfaces() []Interface       { return m.interfaces.list() }
func (m *Metadata) Connectors() []Connector       { return m.connectors.list() }
func (m *Metadata) StatusVars() []StatusVar       { return m.statusVars.list() }
func (m *Metadata) ConfigOptions() []ConfigOption { return m.options.list() }

func (m *Metadata) Connector(name string) (Connector, bool) {
	c, ok := m.connectors.items[name]
	return c, ok
}

func (m *Metadata) StatusVar(name string) (StatusVar, bool) {
	s, ok := m.statusVars.items[name]
	return s, ok
}

func (m *Metadata) ConfigOption(name string) (ConfigOption, bool) {
	o, ok := m.options.items[name]
	return o, ok
}

// table keeps declarations by name in first-declaration order.
type table[T any] struct {
	names []string
	items map[string]T
}

func newTable[T any]() table[T] {
	return table[T]{items: make(map[string]T)}
}

func (t *table[T]) put(name string, v T) {
	if _, ok := t.items[name]; !ok {
		t.names = append(t.names, name)
	}
	t.items[name] = v
}

// inherit copies entries from a parent table without replacing entries an
// earlier parent already provided.
func (t *table[T]) inherit(parent table[T]) {
	for _, name := range parent.names {
		if _, ok := t.items[name]; ok {
			continue
		}
		t.put(name, parent.items[name])
	}
}

func (t table[T]) list() []T {
	out := make([]T, 0, len(t.names))
	for _, n := range t.names {
		out = append(out, t.items[n])
	}
	return out
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Catalog maps qualified class names to classes. Configuration refers to
// classes by these names.
type Catalog struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

func NewCatalog() *Catalog {
	return &Catalog{classes: make(map[string]*Class)}
}

// Register adds classes to the catalog. Each class must be instantiable and
// every declared interface backed by a Go type must be implemented by the
// instance, or by its overload view for that interface.
func (c *Catalog) Register(classes ...*Class) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cls := range classes {
		if err := validateClass(cls); err != nil {
			return err
		}
		if _, dup := c.classes[cls.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateClass, cls.Name)
		}
		c.classes[cls.Name] = cls
	}
	return nil
}

func validateClass(cls *Class) error {
	if cls == nil || cls.Name == "" {
		return fmt.Errorf("%w: class needs a name", ErrInvalidClass)
	}
	if cls.New == nil {
		return fmt.Errorf("%w: %s is abstract", ErrInvalidClass, cls.Name)
	}
	md, err := cls.Metadata()
	if err != nil {
		return err
	}
	probe := cls.New()
	if probe == nil || probe.ModuleBase() == nil {
		return fmt.Errorf("%w: %s.New returned no module base", ErrInvalidClass, cls.Name)
	}
	for _, iface := range md.Interfaces() {
		if iface.goType == nil {
			continue
		}
		view := viewOf(probe, iface.Name)
		if view == nil || !reflect.TypeOf(view).Implements(iface.goType) {
			return fmt.Errorf("%w: %s declares %s but does not implement %s",
				ErrInvalidClass, cls.Name, iface.Name, iface.goType)
		}
	}
	return nil
}

func (c *Catalog) Lookup(name string) (*Class, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cls, ok := c.classes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, name)
	}
	return cls, nil
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.classes))
	for n := range c.classes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
