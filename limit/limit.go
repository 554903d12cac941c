// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package limit provides [unchained.Middleware] to impose limits on the
// spawning of units.
//
// The limits are enforced in the goroutine that pulls from an
// [unchained.Spawner], before any unit is started. A Middleware value
// carries its own state, so the same value may be shared by several
// Spawners to impose a common limit.
package limit

import (
	"context"
	"errors"
	"runtime/trace"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"vawter.tech/unchained"
)

// WithMaxConcurrency limits the total number of units that may be
// executing at once by blocking calls to [unchained.Spawner.Next]. A
// blocked call fails with a spawn error if the Spawner's context is
// done.
func WithMaxConcurrency(limit int) unchained.Middleware {
	if limit <= 0 {
		panic(errors.New("limit must be greater than zero"))
	}
	sem := semaphore.NewWeighted(int64(limit))
	return func(next unchained.Executor) unchained.Executor {
		return unchained.ExecutorFunc(func(ctx context.Context, work func()) error {
			// Fast-path: A concurrency slot is available.
			if !sem.TryAcquire(1) {
				region := trace.StartRegion(ctx, "concurrency wait")
				err := sem.Acquire(ctx, 1)
				region.End()
				if err != nil {
					return err
				}
			}
			if err := next.Execute(ctx, func() {
				defer sem.Release(1)
				work()
			}); err != nil {
				sem.Release(1)
				return err
			}
			return nil
		})
	}
}

// WithMaxRate is a wrapper around a [rate.Limiter] that paces the rate
// at which units are spawned by blocking calls to
// [unchained.Spawner.Next]. A blocked call fails with a spawn error if
// the Spawner's context is done.
func WithMaxRate(r float64, b int) unchained.Middleware {
	if r <= 0 {
		panic(errors.New("rate must be greater than zero"))
	}
	if b <= 0 {
		panic(errors.New("burst must be greater than zero"))
	}
	l := rate.NewLimiter(rate.Limit(r), b)
	return func(next unchained.Executor) unchained.Executor {
		return unchained.ExecutorFunc(func(ctx context.Context, work func()) error {
			// Fast-path: there's capacity.
			if !l.Allow() {
				region := trace.StartRegion(ctx, "rate limit wait")
				err := l.Wait(ctx)
				region.End()
				if err != nil {
					return err
				}
			}
			return next.Execute(ctx, work)
		})
	}
}
