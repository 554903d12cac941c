// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"vawter.tech/unchained"
)

// Backoff implements an exponential backoff with jitter.
type Backoff struct {
	Jitter      time.Duration    // Delays are adjusted ±50% of this value. Default is 0.
	MaxAttempts int              // Defaults to 4 if unset.
	MaxDelay    time.Duration    // Defaults to 1s if unset.
	MinDelay    time.Duration    // Defaults to 10ms if unset.
	Multiplier  float32          // Defaults to 10.0 if unset.
	Retryable   func(error) bool // Defaults to retrying all errors.
}

// backoffState is tracked per unit.
type backoffState struct {
	attempts int
	delay    time.Duration
}

// Invoker returns an [unchained.Invoker] that applies exponential
// backoff with jitter to retries of the per-item function.
func (b *Backoff) Invoker() unchained.Invoker {
	cfg := b.sanitize()
	return Invoker(func(ctx context.Context, st *backoffState, err error) (<-chan time.Time, error) {
		if !cfg.Retryable(err) {
			return nil, err
		}
		st.attempts++
		if st.attempts >= cfg.MaxAttempts {
			return nil, newMaxAttemptsError(ctx, st.attempts, err)
		}
		return time.After(cfg.nextDelay(st)), nil
	})
}

// nextDelay advances the state and returns the time to wait before
// the next attempt.
func (b *Backoff) nextDelay(st *backoffState) time.Duration {
	grown := time.Duration(float32(st.delay) * b.Multiplier)
	st.delay = min(max(b.MinDelay, grown), b.MaxDelay)
	jitter := time.Duration((rand.Float32() - 0.5) * float32(b.Jitter))
	return st.delay + jitter
}

// sanitize returns a copy with all fields initialized to a reasonable
// default.
func (b *Backoff) sanitize() *Backoff {
	ret := *b
	if ret.MaxAttempts == 0 {
		ret.MaxAttempts = 4
	}
	if ret.MaxDelay == 0 {
		ret.MaxDelay = time.Second
	}
	if ret.MinDelay == 0 {
		ret.MinDelay = 10 * time.Millisecond
	}
	if ret.Multiplier == 0 {
		ret.Multiplier = 10
	}
	if ret.Retryable == nil {
		ret.Retryable = retryAll
	}
	return &ret
}

func retryAll(error) bool { return true }
