// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package linger contains a utility for reporting on where lingering
// units were originally spawned.
//
// A unit whose [unchained.Handle] was discarded keeps running until its
// function returns. A [Recorder] makes such units visible to tests.
package linger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"vawter.tech/unchained"
)

// This value is sensitive to the code structure.
const callersOffset = 5

// NewRecorder constructs a [Recorder] that samples the call stack at the
// requested depth. A depth of 1 will record the location at which
// [unchained.Spawner.Next] was called.
func NewRecorder(depth int) *Recorder {
	return &Recorder{depth: depth}
}

// A Recorder records the call stack where each unit was spawned and
// forgets it once the unit has exited. It should be installed as the
// first [unchained.Middleware] so that the sampled stacks begin with
// the caller of [unchained.Spawner.Next].
type Recorder struct {
	counter atomic.Uint64
	data    sync.Map
	depth   int
}

// Callers returns a snapshot of the caller stacks associated with any
// units that are currently running.
func (r *Recorder) Callers() [][]uintptr {
	var ret [][]uintptr
	r.data.Range(func(_, value any) bool {
		ret = append(ret, value.([]uintptr))
		return true
	})
	return ret
}

// Len returns the number of units that are currently running.
func (r *Recorder) Len() int {
	var ret int
	r.data.Range(func(_, _ any) bool {
		ret++
		return true
	})
	return ret
}

// Middleware implements [unchained.Middleware].
func (r *Recorder) Middleware(next unchained.Executor) unchained.Executor {
	return unchained.ExecutorFunc(func(ctx context.Context, work func()) error {
		pc := make([]uintptr, r.depth)
		pc = pc[:runtime.Callers(callersOffset, pc)]

		id := r.counter.Add(1)
		r.data.Store(id, pc)

		if err := next.Execute(ctx, func() {
			defer r.data.Delete(id)
			work()
		}); err != nil {
			r.data.Delete(id)
			return err
		}
		return nil
	})
}
