package module

import (
	"context"
	"fmt"
	"sync"
)

type workerKey struct{}

// callChain lists the workers blocked in the current chain of calls,
// innermost first.
type callChain struct {
	w      *worker
	parent *callChain
}

func (c *callChain) holds(w *worker) bool {
	for ; c != nil; c = c.parent {
		if c.w == w {
			return true
		}
	}
	return false
}

func chainFrom(ctx context.Context) *callChain {
	c, _ := ctx.Value(workerKey{}).(*callChain)
	return c
}

type job struct {
	ctx context.Context
	fn  func(context.Context) error
	res chan error
}

// worker serialises every call into one module instance.
type worker struct {
	jobs     chan job
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func startWorker() *worker {
	w := &worker{
		jobs: make(chan job),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			return
		case j := <-w.jobs:
			j.res <- w.run(j)
		}
	}
}

func (w *worker) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()
	return j.fn(context.WithValue(j.ctx, workerKey{}, &callChain{w: w, parent: chainFrom(j.ctx)}))
}

func (w *worker) submit(ctx context.Context, fn func(context.Context) error) error {
	j := job{ctx: ctx, fn: fn, res: make(chan error, 1)}
	select {
	case w.jobs <- j:
	case <-w.quit:
		return ErrNotActive
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *worker) stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.done
}
