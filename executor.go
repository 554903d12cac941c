// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package unchained

import "context"

// An Executor schedules a unit of work. Execute must not wait for the
// work to complete, although it may block to impose backpressure on the
// caller of [Spawner.Next]. A non-nil error indicates that the work was
// not scheduled and will never run.
type Executor interface {
	Execute(ctx context.Context, work func()) error
}

// ExecutorFunc adapts a function to the [Executor] interface.
type ExecutorFunc func(ctx context.Context, work func()) error

// Execute implements [Executor].
func (f ExecutorFunc) Execute(ctx context.Context, work func()) error {
	return f(ctx, work)
}

// Goroutines is the default [Executor]. It starts a new goroutine for
// every unit of work and never returns an error. There is no upper
// bound on the number of goroutines it will start; see the pool and
// limit packages for bounded alternatives.
var Goroutines Executor = ExecutorFunc(func(_ context.Context, work func()) error {
	go work()
	return nil
})

// A Middleware decorates the [Executor] used by a [Spawner]. Decorated
// executors run in the goroutine that pulls from the Spawner, so any
// blocking behavior is experienced as backpressure by the puller.
//
// A Middleware that acquires a resource before calling the next
// Executor must release it if the next Executor returns an error.
type Middleware func(next Executor) Executor

// A Task is a unit's per-item function, bound to its item.
type Task func(ctx context.Context) error

// An Invoker wraps the execution of a [Task] within its unit's
// goroutine. Invokers are installed with [WithInvoker].
type Invoker func(ctx context.Context, task Task) error

// InvokerCall is an [Invoker] that simply calls the Task.
func InvokerCall(ctx context.Context, task Task) error { return task(ctx) }

// InvokerErr returns an [Invoker] that does not execute the Task and
// instead returns the error.
func InvokerErr(err error) Invoker {
	return func(context.Context, Task) error { return err }
}

// chainInvokers composes the invokers so that the first element is the
// outermost wrapper.
func chainInvokers(invokers []Invoker) Invoker {
	chain := Invoker(InvokerCall)
	for i := len(invokers) - 1; i >= 0; i-- {
		invoker := invokers[i] // Capture
		nextInChain := chain   // Capture
		chain = func(ctx context.Context, task Task) error {
			return invoker(ctx, func(ctx context.Context) error {
				return nextInChain(ctx, task)
			})
		}
	}
	return chain
}

// chainMiddleware decorates the base Executor so that the first
// element is the outermost decorator.
func chainMiddleware(base Executor, mw []Middleware) Executor {
	ret := base
	for i := len(mw) - 1; i >= 0; i-- {
		ret = mw[i](ret)
	}
	return ret
}
