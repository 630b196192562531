package registry

import "errors"

var (
	ErrDuplicateModule    = errors.New("module already configured")
	ErrUnknownModule      = errors.New("unknown module")
	ErrModuleLocked       = errors.New("module has active dependents")
	ErrInvalidTransition  = errors.New("invalid module state transition")
	ErrCircularDependency = errors.New("circular module dependency")
	ErrInvalidConfig      = errors.New("invalid module configuration")
	ErrDependencyFailed   = errors.New("dependency failed to activate")
	ErrNotRemote          = errors.New("module is not shared remotely")
)
