// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package unchained

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJoinAllSwallowsFailures(t *testing.T) {
	r := require.New(t)

	s := ForEach(slices.Values([]int{0, 1, 2, 3}), func(v int) error {
		switch v {
		case 1:
			return errors.New("failed")
		case 2:
			panic("panicked")
		}
		return nil
	})

	// JoinAll has no failure mode.
	JoinAll(s.Handles())

	_, ok := s.Next()
	r.False(ok)
}

func TestJoinAllErrors(t *testing.T) {
	r := require.New(t)

	errOne := errors.New("one")
	errThree := errors.New("three")
	err := JoinAllErrors(ForEach(slices.Values([]int{0, 1, 2, 3}), func(v int) error {
		switch v {
		case 1:
			return errOne
		case 3:
			return errThree
		}
		return nil
	}).Handles())

	r.ErrorIs(err, errOne)
	r.ErrorIs(err, errThree)
	r.Equal("index 1: one\nindex 3: three", err.Error())

	r.NoError(JoinAllErrors(slices.Values([]*Handle{})))
}

func TestJoinAllIgnoresNil(t *testing.T) {
	r := require.New(t)

	h := newHandle("x", 1)
	h.finish(errors.New("boom"))

	JoinAll(slices.Values([]*Handle{nil, h, nil}))
	r.EqualError(JoinAllErrors(slices.Values([]*Handle{nil, h})), "index 1: boom")
}

// Units run concurrently, so the total time of a join is the maximum
// of the durations rather than the sum.
func TestJoinAllTiming(t *testing.T) {
	r := require.New(t)

	delays := []time.Duration{100 * time.Millisecond, time.Millisecond}
	start := time.Now()
	JoinAll(ForEach(slices.Values(delays), time.Sleep).Handles())
	elapsed := time.Since(start)

	r.GreaterOrEqual(elapsed, 100*time.Millisecond)
	r.Less(elapsed, time.Second)
}

// The handles are collected before any waiting begins, so that a slow
// unit does not delay the spawning of later items.
func TestJoinAllCollectsFirst(t *testing.T) {
	r := require.New(t)

	release := make(chan struct{})
	var spawned []int
	items := func(yield func(int) bool) {
		for i := range 3 {
			spawned = append(spawned, i)
			if !yield(i) {
				return
			}
		}
		// All items were pulled while unit 0 was still blocked.
		close(release)
	}

	JoinAll(ForEach(items, func(v int) {
		if v == 0 {
			<-release
		}
	}).Handles())
	r.Equal([]int{0, 1, 2}, spawned)
}
