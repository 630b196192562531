package module

import (
	"reflect"
	"sort"
)

// Interface is a named capability contract. Compliance is nominal: a module
// complies with an Interface only if its class hierarchy declares the name.
type Interface struct {
	Name    string
	Methods []string

	goType reflect.Type
}

// NewInterface declares a contract backed by the Go interface type T. The
// method set of T is recorded and checked when classes declaring the
// interface are registered in a Catalog.
func NewInterface[T any](name string) Interface {
	t := reflect.TypeFor[T]()
	iface := Interface{Name: name}
	if t.Kind() == reflect.Interface {
		iface.goType = t
		for i := 0; i < t.NumMethod(); i++ {
			iface.Methods = append(iface.Methods, t.Method(i).Name)
		}
		sort.Strings(iface.Methods)
	}
	return iface
}

// GoType returns the Go interface type behind the contract, or nil.
func (i Interface) GoType() reflect.Type { return i.goType }

func (i Interface) String() string { return i.Name }

// Complies reports whether target's class hierarchy declares iface.
func Complies(target Module, iface Interface) bool {
	if target == nil {
		return false
	}
	b := target.ModuleBase()
	if b == nil || b.meta == nil {
		return false
	}
	return b.meta.Implements(iface.Name)
}
