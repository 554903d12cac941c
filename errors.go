// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package unchained

import (
	"fmt"

	"vawter.tech/unchained/internal/safe"
)

// A RecoveredError will be returned from [Handle.Join] when the
// per-item function panics.
type RecoveredError = safe.RecoveredError

// A SpawnError is reported by [Spawner.Err] when an item was pulled
// from the source sequence but no unit of execution could be scheduled
// for it. The per-item function is never invoked for that item.
type SpawnError struct {
	Index int   // The position of the item in the source sequence.
	Err   error // The error returned by the Executor.
}

// Error implements error.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("could not spawn index %d: %v", e.Index, e.Err)
}

// Unwrap returns the enclosed error.
func (e *SpawnError) Unwrap() error { return e.Err }
