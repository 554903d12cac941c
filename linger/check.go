// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package linger

import (
	"time"

	"vawter.tech/unchained/internal/safe"
)

// A joined unit may still be unwinding its deferred bookkeeping.
const (
	settlePoll = time.Millisecond
	settleTime = 100 * time.Millisecond
)

// CheckClean will record a test error if there are any running units
// being tracked by the Recorder. A snapshot of the stack where the
// units were spawned will be written into the test log.
func CheckClean(t TestingT, r *Recorder) {
	for deadline := time.Now().Add(settleTime); r.Len() > 0 && time.Now().Before(deadline); {
		time.Sleep(settlePoll)
	}

	callers := r.Callers()
	if len(callers) == 0 {
		return
	}

	// Improve error messages if we're being called from a real test.
	if x, ok := t.(interface{ Helper() }); ok {
		x.Helper()
	}

	t.Errorf("lingering units detected")
	for _, stack := range callers {
		t.Errorf("  unit spawned at:")
		for frame := range safe.Frames(stack) {
			t.Errorf("    %s ( %s:%d )", frame.Function, frame.File, frame.Line)
		}
	}
}

// TestingT is the subset of [testing.TB] needed by [CheckClean].
type TestingT interface {
	Errorf(string, ...any)
}
