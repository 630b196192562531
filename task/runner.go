package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"

	"github.com/skekre98/modrig/module"
)

// Modules is what the runner needs from the registry. Modules bound to a
// run are acquired for its whole duration so they cannot be deactivated
// under it.
type Modules interface {
	ActivateModule(ctx context.Context, name string) error
	Acquire(holder, name string) (module.Module, error)
	Release(holder, name string)
}

// Holder is the name a task's run holds its modules under.
func Holder(task string) string { return "task:" + task }

// Info describes the latest run of a task.
type Info struct {
	Name     string    `json:"name"`
	State    State     `json:"state"`
	RunID    string    `json:"runId,omitempty"`
	Started  time.Time `json:"started,omitempty"`
	Finished time.Time `json:"finished,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Runner owns the registered tasks and at most one run of each at a time.
type Runner struct {
	modules Modules
	logger  *slog.Logger
	cron    *cron.Cron

	mu    sync.RWMutex
	tasks map[string]*entry
	wg    sync.WaitGroup
}

type entry struct {
	spec Spec

	mu       sync.Mutex
	state    State
	runID    string
	token    *Token
	done     chan struct{}
	result   any
	err      error
	started  time.Time
	finished time.Time
}

func NewRunner(modules Modules, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		modules: modules,
		logger:  logger,
		cron:    cron.New(),
		tasks:   make(map[string]*entry),
	}
	r.cron.Start()
	return r
}

func (r *Runner) Register(spec Spec) error {
	if spec.Name == "" || spec.New == nil {
		return fmt.Errorf("task spec needs a name and a constructor")
	}
	for name := range spec.Connect {
		found := false
		for _, c := range spec.Connectors {
			found = found || c.Name == name
		}
		if !found {
			return fmt.Errorf("task %s: %w: %s", spec.Name, module.ErrUnknownConnector, name)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tasks[spec.Name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, spec.Name)
	}
	r.tasks[spec.Name] = &entry{spec: spec, state: StateNotRunning}
	return nil
}

func (r *Runner) lookup(name string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return e, nil
}

func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for n := range r.tasks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Start launches a run of the named task and returns its run id. The run
// is not tied to ctx cancellation; use Interrupt to stop it.
func (r *Runner) Start(ctx context.Context, name string, kwargs map[string]any) (string, error) {
	e, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	e.state = StateRunning
	e.runID = uuid.NewString()
	e.token = NewToken()
	e.done = make(chan struct{})
	e.result, e.err = nil, nil
	e.started, e.finished = time.Now(), time.Time{}
	runID, token, done := e.runID, e.token, e.done
	e.mu.Unlock()

	args := maps.Clone(e.spec.Defaults)
	if args == nil {
		args = map[string]any{}
	}
	maps.Copy(args, kwargs)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(done)
		result, err := r.execute(context.WithoutCancel(ctx), e.spec, runID, token, args)
		r.finish(e, result, err, token)
	}()
	return runID, nil
}

func (r *Runner) execute(ctx context.Context, spec Spec, runID string, token *Token, kwargs map[string]any) (result any, err error) {
	env := &Env{
		RunID:      runID,
		Token:      token,
		Logger:     r.logger.With("task", spec.Name, "run", runID),
		connectors: make(map[string]module.Connector, len(spec.Connectors)),
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, rec)
		}
		env.conns.UnbindAll()
		for _, name := range env.held {
			r.modules.Release(Holder(spec.Name), name)
		}
	}()

	if err := r.bind(ctx, spec, env); err != nil {
		return nil, err
	}

	t := spec.New()
	err = t.Activate(ctx, env)
	if err == nil {
		if token.Interrupted() {
			err = ErrInterrupted
		} else {
			result, err = t.Run(ctx, env, kwargs)
		}
	}
	if derr := t.Deactivate(ctx, env); derr != nil {
		err = multierr.Append(err, fmt.Errorf("deactivate: %w", derr))
	}
	return result, err
}

func (r *Runner) bind(ctx context.Context, spec Spec, env *Env) error {
	for _, c := range spec.Connectors {
		env.connectors[c.Name] = c
		var target module.Module
		if name := spec.Connect[c.Name]; name != "" {
			if r.modules == nil {
				return fmt.Errorf("connector %s: no module registry", c.Name)
			}
			if err := r.modules.ActivateModule(ctx, name); err != nil {
				return fmt.Errorf("connector %s: %w", c.Name, err)
			}
			inst, err := r.modules.Acquire(Holder(spec.Name), name)
			if err != nil {
				return fmt.Errorf("connector %s: %w", c.Name, err)
			}
			env.held = append(env.held, name)
			target = inst
		}
		if err := c.Bind(&env.conns, target); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) finish(e *entry, result any, err error, token *Token) {
	state := StateFinished
	switch {
	case token.Interrupted() && (err == nil || errors.Is(err, ErrInterrupted)):
		state = StateInterrupted
	case err != nil:
		state = StateError
	}

	e.mu.Lock()
	e.state = state
	e.result, e.err = result, err
	e.finished = time.Now()
	e.mu.Unlock()

	if state == StateError {
		r.logger.Error("task failed", "task", e.spec.Name, "error", err)
	} else {
		r.logger.Info("task ended", "task", e.spec.Name, "state", string(state))
	}
}

// Interrupt asks a running task to stop at its next safe point.
func (r *Runner) Interrupt(name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	e.token.Interrupt()
	return nil
}

// Wait blocks until the current or last run of the task ends and returns
// its result.
func (r *Runner) Wait(ctx context.Context, name string) (any, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.Result(name)
}

func (r *Runner) State(name string) (State, error) {
	e, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// Result returns the outcome of the last finished run.
func (r *Runner) Result(name string) (any, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	return e.result, e.err
}

func (r *Runner) Info(name string) (Info, error) {
	e, err := r.lookup(name)
	if err != nil {
		return Info{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	in := Info{Name: name, State: e.state, RunID: e.runID, Started: e.started, Finished: e.finished}
	if e.err != nil {
		in.Error = e.err.Error()
	}
	return in, nil
}

// Schedule starts the task on a standard five-field cron spec. Ticks that
// find the task still running are skipped.
func (r *Runner) Schedule(spec, name string, kwargs map[string]any) (cron.EntryID, error) {
	if _, err := r.lookup(name); err != nil {
		return 0, err
	}
	return r.cron.AddFunc(spec, func() {
		if _, err := r.Start(context.Background(), name, kwargs); err != nil {
			r.logger.Warn("scheduled task skipped", "task", name, "error", err)
		}
	})
}

func (r *Runner) Unschedule(id cron.EntryID) { r.cron.Remove(id) }

// Close stops scheduling, interrupts running tasks and waits for them
// until ctx ends.
func (r *Runner) Close(ctx context.Context) error {
	<-r.cron.Stop().Done()
	for _, name := range r.Names() {
		_ = r.Interrupt(name)
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
