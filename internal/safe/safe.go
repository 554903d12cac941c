// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package safe confines panics raised by user-provided functions.
package safe

import (
	"errors"
	"fmt"
	"iter"
	"runtime"
	"strings"
)

const captureDepth = 32

// A RecoveredError associates a recovered panic value with the stack of
// the goroutine that panicked.
type RecoveredError struct {
	Err   error
	Stack []uintptr
}

// Error implements error.
func (e *RecoveredError) Error() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "recovered: %v\n", e.Err)
	for frame := range Frames(e.Stack) {
		_, _ = fmt.Fprintf(&sb, "  %s ( %s:%d )\n", frame.Function, frame.File, frame.Line)
	}
	return sb.String()
}

// String is for debugging use only.
func (e *RecoveredError) String() string {
	return e.Error()
}

// Unwrap returns the recovered value.
func (e *RecoveredError) Unwrap() error { return e.Err }

// Call executes the function. A panic is converted into a
// [RecoveredError] that is joined with any value the function returned
// before panicking.
func Call(fn func() error) (err error) {
	defer func() {
		var rErr error
		switch r := recover().(type) {
		case nil:
			return
		case error:
			rErr = r
		default:
			rErr = fmt.Errorf("panic: %v", r)
		}
		stack := make([]uintptr, captureDepth)
		stack = stack[:runtime.Callers(2, stack)]
		err = &RecoveredError{
			Err:   errors.Join(err, rErr),
			Stack: stack,
		}
	}()
	err = fn()
	return
}

// Frames returns the symbolized frames of a stack captured by
// [runtime.Callers].
func Frames(stack []uintptr) iter.Seq[runtime.Frame] {
	return func(yield func(runtime.Frame) bool) {
		if len(stack) == 0 {
			return
		}
		frames := runtime.CallersFrames(stack)
		for {
			frame, more := frames.Next()
			if !yield(frame) || !more {
				return
			}
		}
	}
}
