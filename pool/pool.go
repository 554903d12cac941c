// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package pool provides a bounded [unchained.Executor] backed by a
// fixed number of worker goroutines.
//
// Work is handed to the workers over an unbuffered queue, so
// [Pool.Execute] blocks until a worker is available. When a Pool is
// installed with [unchained.WithExecutor], this turns an unbounded
// [unchained.Spawner] into one that applies backpressure to its caller.
package pool

import (
	"context"
	"errors"
	"runtime/trace"
	"sync"
	"sync/atomic"

	"vawter.tech/unchained"
	"vawter.tech/unchained/internal/safe"
)

// ErrClosed is returned from [Pool.Execute] once [Pool.Close] has been
// called.
var ErrClosed = errors.New("pool: closed")

// A Pool executes work on a fixed number of goroutines.
type Pool struct {
	busy    atomic.Int32
	closed  chan struct{}
	closeMu sync.Once
	queue   chan func()
	workers sync.WaitGroup
}

var _ unchained.Executor = (*Pool)(nil)

// New starts a Pool with the given number of workers. It panics if the
// number of workers is not positive. Callers must call [Pool.Close] to
// release the workers.
func New(workers int) *Pool {
	if workers <= 0 {
		panic(errors.New("workers must be greater than zero"))
	}
	p := &Pool{
		closed: make(chan struct{}),
		queue:  make(chan func()),
	}
	p.workers.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

// Close prevents new work from being accepted and waits for all
// workers to finish any work that they have already accepted. Close is
// idempotent.
func (p *Pool) Close() {
	p.closeMu.Do(func() { close(p.closed) })
	p.workers.Wait()
}

// Execute implements [unchained.Executor]. It blocks until a worker has
// accepted the work, the Pool is closed, or the context is done.
func (p *Pool) Execute(ctx context.Context, work func()) error {
	// Prefer reporting closure over racing with an idle worker.
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	// Fast-path: A worker is idle.
	select {
	case p.queue <- work:
		return nil
	default:
	}

	defer trace.StartRegion(ctx, "pool wait").End()

	select {
	case p.queue <- work:
		return nil
	case <-p.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of workers that are currently executing work.
func (p *Pool) Len() int { return int(p.busy.Load()) }

func (p *Pool) work() {
	defer p.workers.Done()
	for {
		select {
		case fn := <-p.queue:
			p.busy.Add(1)
			// A panic must not take down the worker.
			_ = safe.Call(func() error {
				fn()
				return nil
			})
			p.busy.Add(-1)
		case <-p.closed:
			return
		}
	}
}
