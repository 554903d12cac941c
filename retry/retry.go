// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package retry contains [unchained.Invoker] implementations that retry
// a failed per-item function within its unit.
//
// The generic [Invoker] is a building block for retryable behaviors,
// using a [Classifier] function to drive the retry policy. An
// exponential [Backoff] and a trivial [Loop] policy are provided.
//
// A unit that panics is not retried.
package retry

import (
	"context"
	"errors"
	"runtime/trace"

	"vawter.tech/unchained"
)

// A Classifier is a function that determines if an error is retryable.
// Each unit is associated with a state value, which is initially the
// zero value for the S type. If the per-item function fails, the error
// and the current state are passed to the Classifier. The Classifier
// may return an error to fail the unit if it should not be retried.
//
// If the function should be retried, the Classifier returns a channel
// that emits a value when the next attempt should be made (e.g.:
// [time.After]). Closing the channel without emitting a value will
// abandon the retry, failing with the error most recently passed to the
// Classifier.
//
// If the unit's context is done while waiting for the retry signal, the
// unit will be failed with the previously examined error joined with
// the context's error.
//
// If the returned channel and error are both nil, the error will be
// considered to have been handled by the Classifier and the unit will
// be considered a success.
type Classifier[S, N any] func(ctx context.Context, state *S, err error) (<-chan N, error)

// Invoker constructs an [unchained.Invoker] around a [Classifier]
// function.
func Invoker[S, N any](fn Classifier[S, N]) unchained.Invoker {
	return func(ctx context.Context, task unchained.Task) error {
		var state S
		for {
			err := task(ctx)
			if err == nil {
				return nil
			}
			next, fail := fn(ctx, &state, err)
			switch {
			case fail != nil:
				// Classifier is rejecting the error.
				return fail
			case next == nil:
				// Classifier ate the error condition.
				return nil
			}
			if err := await(ctx, next, err); err != nil {
				return err
			}
		}
	}
}

// await blocks until the next attempt should be made.
func await[N any](ctx context.Context, next <-chan N, err error) error {
	defer trace.StartRegion(ctx, "retry wait").End()
	select {
	case _, ok := <-next:
		if ok {
			return nil
		}
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}
