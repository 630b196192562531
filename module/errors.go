package module

import "errors"

// Connector errors
var (
	ErrAlreadyBound      = errors.New("connector already bound")
	ErrMissingTarget     = errors.New("mandatory connector has no target")
	ErrInterfaceMismatch = errors.New("target does not comply with connector interface")
	ErrNotConnected      = errors.New("mandatory connector is not connected")
	ErrUnknownConnector  = errors.New("unknown connector")
	ErrConnectorType     = errors.New("connected module does not provide requested type")
)

// Overload errors
var (
	ErrUnknownOverloadKey = errors.New("unknown overload key")
)

// Declaration and configuration errors
var (
	ErrMissingOption     = errors.New("missing mandatory config option")
	ErrUnknownOption     = errors.New("unknown config option")
	ErrOptionConstructor = errors.New("config option constructor failed")
	ErrUnknownStatusVar  = errors.New("unknown status variable")
	ErrInvalidKind       = errors.New("invalid module base")
	ErrUnknownClass      = errors.New("unknown module class")
	ErrDuplicateClass    = errors.New("module class already registered")
	ErrInvalidClass      = errors.New("invalid module class")
)

// Worker errors
var (
	ErrNotActive   = errors.New("module worker is not running")
	ErrWorkerPanic = errors.New("panic in module worker")
)
