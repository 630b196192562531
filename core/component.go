package core

import "context"

// Component is a piece of application infrastructure with a lifecycle:
// the web server, the actuator, the module startup sequence.
type Component interface {
	Name() string
	// DependsOn lists components that must be configured and started first.
	DependsOn() []string
	// Configure registers objects into the container.
	Configure(c Container) error
	Start(ctx context.Context, c Container) error
	Stop(ctx context.Context, c Container) error
}
