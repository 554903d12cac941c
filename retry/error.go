// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"
	"fmt"

	"vawter.tech/unchained"
)

// MaxAttemptsError is returned from a unit whose per-item function
// failed on every permitted attempt. It wraps the error from the final
// attempt.
type MaxAttemptsError struct {
	Attempts int   // The number of times the function was called.
	Err      error // The error from the final attempt.
	Index    int   // The unit's [unchained.Handle.Index], or -1.
}

func newMaxAttemptsError(ctx context.Context, attempts int, err error) *MaxAttemptsError {
	idx := -1
	if h, ok := unchained.HandleFrom(ctx); ok {
		idx = h.Index
	}
	return &MaxAttemptsError{Attempts: attempts, Err: err, Index: idx}
}

func (e *MaxAttemptsError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *MaxAttemptsError) Unwrap() error { return e.Err }
