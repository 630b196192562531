// Package task runs named, interruptible units of work that may depend on
// modules from the registry.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skekre98/modrig/module"
)

var (
	ErrUnknownTask    = errors.New("unknown task")
	ErrDuplicateTask  = errors.New("task already registered")
	ErrAlreadyRunning = errors.New("task already running")
	ErrNotRunning     = errors.New("task not running")
	ErrInterrupted    = errors.New("task interrupted")
	ErrTaskPanic      = errors.New("panic in task")
)

// State of a task run.
type State string

const (
	StateNotRunning  State = "not_running"
	StateRunning     State = "running"
	StateFinished    State = "finished"
	StateInterrupted State = "interrupted"
	StateError       State = "error"
)

// Task is one unit of work. Activate prepares, Run does the work and
// Deactivate always runs afterwards, even when an earlier phase failed or
// the run was interrupted. Long phases should poll env.Token.
type Task interface {
	Activate(ctx context.Context, env *Env) error
	Run(ctx context.Context, env *Env, kwargs map[string]any) (any, error)
	Deactivate(ctx context.Context, env *Env) error
}

// Spec describes a registered task.
type Spec struct {
	Name string
	// New returns a fresh Task for each run.
	New func() Task
	// Connectors are resolved through the registry before Activate.
	Connectors []module.Connector
	// Connect maps connector names to module names.
	Connect map[string]string
	// Defaults are merged under the kwargs of every run.
	Defaults map[string]any
}

// Env is handed to every phase of a run.
type Env struct {
	RunID  string
	Token  *Token
	Logger *slog.Logger

	connectors map[string]module.Connector
	conns      module.Connections
	held       []string
}

// Connect returns the module bound to the task's named connector.
func Connect[T any](env *Env, name string) (T, error) {
	c, ok := env.connectors[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", module.ErrUnknownConnector, name)
	}
	return module.Resolve[T](&env.conns, c)
}

// Proxy returns the overload proxy bound to the named connector.
func (env *Env) Proxy(name string) (*module.OverloadProxy, error) {
	c, ok := env.connectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", module.ErrUnknownConnector, name)
	}
	return c.Get(&env.conns)
}

// Token is a cooperative interruption flag. Interrupting is advisory: the
// task decides when it is safe to stop.
type Token struct {
	once sync.Once
	ch   chan struct{}
}

func NewToken() *Token { return &Token{ch: make(chan struct{})} }

func (t *Token) Interrupt() { t.once.Do(func() { close(t.ch) }) }

func (t *Token) Interrupted() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Done is closed once the token is interrupted.
func (t *Token) Done() <-chan struct{} { return t.ch }

// Err returns ErrInterrupted after Interrupt, nil before.
func (t *Token) Err() error {
	if t.Interrupted() {
		return ErrInterrupted
	}
	return nil
}

// Func adapts a plain function into a Task with no setup or teardown.
type Func func(ctx context.Context, env *Env, kwargs map[string]any) (any, error)

func (f Func) Activate(context.Context, *Env) error   { return nil }
func (f Func) Deactivate(context.Context, *Env) error { return nil }
func (f Func) Run(ctx context.Context, env *Env, kwargs map[string]any) (any, error) {
	return f(ctx, env, kwargs)
}
