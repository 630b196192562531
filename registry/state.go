package registry

import "fmt"

// State is the lifecycle state of a configured module.
type State string

const (
	StateUnconfigured State = "unconfigured"
	StateDeactivated  State = "deactivated"
	StateActivating   State = "activating"
	StateActive       State = "active"
	StateDeactivating State = "deactivating"
	StateError        State = "error"
)

func (s State) String() string { return string(s) }

// transitions lists the legal successor states. Leaving StateError is only
// possible through Registry.ResetModule.
var transitions = map[State][]State{
	StateUnconfigured: {StateDeactivated},
	StateDeactivated:  {StateActivating},
	StateActivating:   {StateActive, StateError},
	StateActive:       {StateDeactivating},
	StateDeactivating: {StateDeactivated, StateError},
	StateError:        {StateDeactivated},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(name string, from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, name, from, to)
	}
	return nil
}
