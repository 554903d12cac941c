// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package unchained

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

// JoinAll collects every element of the sequence and then waits for
// each unit to terminate, in the order in which the handles were
// produced. When the sequence is a [Spawner], this means that every
// remaining unit is spawned before any waiting begins.
//
// Failures of individual units are discarded. Nil handles are ignored.
func JoinAll(handles iter.Seq[*Handle]) {
	for _, h := range slices.Collect(handles) {
		if h != nil {
			_ = h.Join()
		}
	}
}

// JoinAllErrors is a version of [JoinAll] that returns the errors from
// all failed units, each annotated with the index of the failed unit.
// The returned error may be a wrapper over multiple errors.
func JoinAllErrors(handles iter.Seq[*Handle]) error {
	var errs []error
	for _, h := range slices.Collect(handles) {
		if h == nil {
			continue
		}
		if err := h.Join(); err != nil {
			errs = append(errs, fmt.Errorf("index %d: %w", h.Index, err))
		}
	}
	return errors.Join(errs...)
}
