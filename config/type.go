package config

import (
	"context"
	"errors"
)

// ErrWatchUnsupported is returned by Watch on sources that cannot report
// changes.
var ErrWatchUnsupported = errors.New("config source does not support watching")

// ConfigSource is one layer of configuration data. Later sources override
// earlier ones when a Manager merges them.
type ConfigSource interface {
	// Load returns a fresh copy of the source data as nested maps.
	Load(ctx context.Context) (map[string]any, error)

	// Watch starts reporting changes on ch in the background and returns.
	// Watching stops when ctx is done; ch is never closed. Sources that
	// cannot watch return ErrWatchUnsupported.
	Watch(ctx context.Context, ch chan<- Event) error

	// Name identifies the source in errors and logs.
	Name() string
}

// Event is sent to subscribers after a reload changed the configuration.
type Event struct {
	// ChangedKeys lists the top-level config keys whose values differ.
	ChangedKeys []string
	OldConfig   any
	NewConfig   any
}
