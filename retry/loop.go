// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"

	"vawter.tech/unchained"
)

// Loop retries the per-item function immediately.
type Loop struct {
	MaxAttempts int              // Defaults to 2 if unset.
	Retryable   func(error) bool // Defaults to retrying all errors.
}

// Invoker returns an [unchained.Invoker] that implements a trivial
// looping behavior.
func (l *Loop) Invoker() unchained.Invoker {
	attempts := l.MaxAttempts
	if attempts == 0 {
		attempts = 2
	}
	retryable := l.Retryable
	if retryable == nil {
		retryable = retryAll
	}
	// A closed channel would abandon the retry.
	return Invoker(func(ctx context.Context, count *int, err error) (<-chan struct{}, error) {
		if !retryable(err) {
			return nil, err
		}
		*count++
		if *count >= attempts {
			return nil, newMaxAttemptsError(ctx, *count, err)
		}
		ch := make(chan struct{}, 1)
		ch <- struct{}{}
		return ch, nil
	})
}
