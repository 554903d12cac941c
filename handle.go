// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package unchained

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

type handleKey struct{}

// State describes the lifecycle of a unit.
type State int

// The states reported by [Handle.State].
const (
	StateRunning State = iota
	StateSuccess
	StateFailed
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// A Handle represents one unit of execution spawned by a [Spawner]. It
// is owned by whoever received it from the Spawner.
//
// A Handle may be discarded without calling [Handle.Join]. The unit
// will run to completion regardless, but its result will be lost.
type Handle struct {
	Index   int       // The position of the item in the source sequence.
	Name    string    // The value passed to [WithName].
	Started time.Time // When the item was pulled, before waiting on the executor.

	done chan struct{}
	err  atomic.Pointer[error] // Acts as a tri-state value.
}

func newHandle(name string, idx int) *Handle {
	return &Handle{
		Index:   idx,
		Name:    name,
		Started: time.Now(),
		done:    make(chan struct{}),
	}
}

// HandleFrom returns the [Handle] of the unit executing with the given
// context, or false if the context is not associated with a unit.
func HandleFrom(ctx context.Context) (*Handle, bool) {
	found, ok := ctx.Value(handleKey{}).(*Handle)
	return found, ok
}

// Done returns a channel that is closed when the unit has terminated.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Join blocks until the unit has terminated and returns the error from
// the per-item function. If the function panicked, the error will be a
// [RecoveredError].
func (h *Handle) Join() error {
	<-h.done
	return *h.err.Load()
}

// JoinCtx is an interruptable version of [Handle.Join]. If the
// argument's Done() channel is closed, the argument's Err() value will
// be returned. Interrupting the wait has no effect on the unit.
func (h *Handle) JoinCtx(ctx context.Context) error {
	select {
	case <-h.done:
		return *h.err.Load()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the current state of the unit without blocking.
func (h *Handle) State() State {
	if ptr := h.err.Load(); ptr == nil {
		return StateRunning
	} else if *ptr == nil {
		return StateSuccess
	}
	return StateFailed
}

// MarshalJSON summarizes the Handle.
func (h *Handle) MarshalJSON() ([]byte, error) {
	p := struct {
		Error   string    `json:"error,omitzero"`
		Index   int       `json:"index"`
		Name    string    `json:"name,omitzero"`
		Started time.Time `json:"started,omitzero"`
		State   string    `json:"state"`
	}{
		Index:   h.Index,
		Name:    h.Name,
		Started: h.Started,
		State:   h.State().String(),
	}
	if ptr := h.err.Load(); ptr != nil && *ptr != nil {
		p.Error = (*ptr).Error()
	}
	return json.Marshal(p)
}

// String is for debugging use only.
func (h *Handle) String() string {
	state := "(" + h.State().String() + ")"
	if ptr := h.err.Load(); ptr != nil && *ptr != nil {
		state = fmt.Sprintf("(failed %v)", *ptr)
	}
	return fmt.Sprintf("%s[%d] (started %s) %s",
		h.Name, h.Index, h.Started, state)
}

// finish records the outcome of the unit. It must be called exactly
// once.
func (h *Handle) finish(err error) {
	h.err.Store(&err)
	close(h.done)
}
