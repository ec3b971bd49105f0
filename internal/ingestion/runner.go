package ingestion

import (
	"context"
	"sync"
)

// Runner executes upload tasks detached from the submitting request.
type Runner interface {
	Go(task func())
	// Wait blocks until every started task has returned or ctx is done.
	Wait(ctx context.Context) error
}

// GoRunner runs each task on its own goroutine.
type GoRunner struct {
	wg sync.WaitGroup
}

// NewGoRunner creates a GoRunner.
func NewGoRunner() *GoRunner {
	return &GoRunner{}
}

func (r *GoRunner) Go(task func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		task()
	}()
}

func (r *GoRunner) Wait(ctx context.Context) error {
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

// InlineRunner runs tasks synchronously inside Go. The CLI and tests use it
// so a submission has finished by the time Submit returns.
type InlineRunner struct{}

func (InlineRunner) Go(task func()) { task() }

func (InlineRunner) Wait(context.Context) error { return nil }
