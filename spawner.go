// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package unchained

import (
	"context"
	"errors"
	"iter"
	"runtime/trace"
	"sync"

	"vawter.tech/unchained/internal/safe"
)

// A Spawner is a lazy sequence of [Handle] values. Each element pulled
// from the Spawner schedules one unit of execution that applies the
// per-item function to the next item of the source sequence.
//
// Pulling from a Spawner is not referentially transparent: a pull and
// a spawn are the same event. A Spawner holds no handles until they are
// pulled and cannot be rewound.
//
// All methods on a Spawner are safe for concurrent use.
type Spawner[T any] struct {
	cfg   *config
	fn    Func[T]
	items iter.Seq[T]

	// spawnCtx is passed to the executor. It is canceled by Stop so that
	// a pull blocked in the executor will return.
	spawnCtx context.Context
	cancel   context.CancelFunc

	// pullMu serializes pulls from the source and hand-offs to the
	// executor. It is acquired before mu, and mu is never held while
	// pulling or blocked in the executor.
	pullMu sync.Mutex
	idx    int // Guarded by pullMu.

	mu struct {
		sync.Mutex
		done    bool
		err     error
		next    func() (T, bool) // Initialized by the first pull.
		pulling bool             // A pull is in progress.
		stop    func()
	}
}

// ForEach returns a [Spawner] that will apply the function to every
// element in the sequence, using one unit of execution per element. No
// work is performed until elements are pulled from the Spawner.
//
// Each unit receives its own copy of the function value. State that is
// captured by the function and shared between units must be
// synchronized by the caller.
//
// ForEach panics if the function is nil.
func ForEach[T any, A Adaptable[T]](items iter.Seq[T], fn A, opts ...Option) *Spawner[T] {
	f := Fn[T](fn)
	if f == nil {
		panic(errors.New("unchained: nil function"))
	}
	cfg := newConfig(opts)
	spawnCtx, cancel := context.WithCancel(cfg.ctx)
	return &Spawner[T]{
		cfg:      cfg,
		fn:       f,
		items:    items,
		spawnCtx: spawnCtx,
		cancel:   cancel,
	}
}

// A Pair holds the elements of an [iter.Seq2].
type Pair[K, V any] struct {
	Key   K
	Value V
}

// ForEach2 is a pairwise version of [ForEach].
func ForEach2[K, V any](
	items iter.Seq2[K, V],
	fn func(ctx context.Context, key K, value V) error,
	opts ...Option,
) *Spawner[Pair[K, V]] {
	if fn == nil {
		panic(errors.New("unchained: nil function"))
	}
	var pairs iter.Seq[Pair[K, V]] = func(yield func(Pair[K, V]) bool) {
		for k, v := range items {
			if !yield(Pair[K, V]{k, v}) {
				return
			}
		}
	}
	return ForEach(pairs, func(ctx context.Context, p Pair[K, V]) error {
		return fn(ctx, p.Key, p.Value)
	}, opts...)
}

// Err returns the spawn failure that terminated the sequence, if any.
// The returned error will be a [SpawnError]. Failures of the per-item
// function are never reported here; see [Handle.Join].
func (s *Spawner[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.err
}

// Handles returns a sequence that pulls from the Spawner. Breaking out
// of the loop leaves the remaining items in the Spawner, so that a
// subsequent call to Handles or Next will resume where the loop left
// off.
func (s *Spawner[T]) Handles() iter.Seq[*Handle] {
	return func(yield func(*Handle) bool) {
		for {
			h, ok := s.Next()
			if !ok || !yield(h) {
				return
			}
		}
	}
}

// Next pulls the next item from the source sequence, schedules a unit
// of execution for it, and returns the unit's handle. Next does not
// wait for the unit to start or to finish, but it may block while an
// [Executor] or [Middleware] applies backpressure.
//
// Next returns false once the source sequence has been exhausted, the
// Spawner has been stopped, or the executor has failed to schedule a
// unit. Once Next has returned false, it will always return false.
func (s *Spawner[T]) Next() (*Handle, bool) {
	s.pullMu.Lock()
	defer s.pullMu.Unlock()

	s.mu.Lock()
	if s.mu.done {
		s.mu.Unlock()
		return nil, false
	}
	if s.mu.next == nil {
		s.mu.next, s.mu.stop = iter.Pull(s.items)
	}
	next := s.mu.next
	s.mu.pulling = true
	s.mu.Unlock()

	item, ok := next()

	s.mu.Lock()
	if s.mu.done || !ok {
		// Stopped during the pull, or exhausted.
		s.finishLocked(nil)
		s.mu.Unlock()
		return nil, false
	}
	s.mu.Unlock()

	idx := s.idx
	s.idx++
	h, err := s.spawn(idx, item)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.mu.pulling = false
		if s.mu.done {
			// Stopped while the unit was being scheduled.
			s.finishLocked(nil)
		}
		return h, true
	case s.mu.done:
		// The executor was interrupted by Stop.
		s.finishLocked(nil)
	default:
		s.finishLocked(&SpawnError{Index: idx, Err: err})
	}
	return nil, false
}

// Stop releases the source sequence. Units that have already been
// spawned are unaffected. A call to [Spawner.Next] that is blocked in
// the executor will return false without reporting an error. If a pull
// is in progress, the source is released when the pull completes.
//
// Stop does not block and is idempotent. It may be called from within
// a unit. It must be called if the Spawner is abandoned before it has
// been exhausted.
func (s *Spawner[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mu.done {
		return
	}
	s.mu.done = true
	s.cancel()
	if !s.mu.pulling {
		s.finishLocked(nil)
	}
}

// Wait pulls all remaining elements from the Spawner and then blocks
// until every unit that it spawned has terminated. Failures of the
// per-item function are discarded; see [Spawner.WaitErrors] for a
// reporting variant. Wait returns the value of [Spawner.Err].
//
// Handles that were pulled before calling Wait are not joined.
func (s *Spawner[T]) Wait() error {
	JoinAll(s.Handles())
	return s.Err()
}

// WaitErrors is a version of [Spawner.Wait] that also returns the
// errors from any failed units, as described by [JoinAllErrors].
func (s *Spawner[T]) WaitErrors() error {
	err := JoinAllErrors(s.Handles())
	return errors.Join(s.Err(), err)
}

// finishLocked transitions the Spawner into its terminal state and
// releases the source. It must not be called while another goroutine
// is pulling from the source.
func (s *Spawner[T]) finishLocked(err error) {
	if err != nil && s.mu.err == nil {
		s.mu.err = err
	}
	s.mu.done = true
	s.mu.pulling = false
	if s.mu.stop != nil {
		s.mu.stop()
	}
	s.mu.next = nil
	s.mu.stop = nil
	s.cancel()
}

// spawn hands a unit of work to the executor. It must not block on
// anything other than the executor.
func (s *Spawner[T]) spawn(idx int, item T) (*Handle, error) {
	cfg := s.cfg
	fn := s.fn
	h := newHandle(cfg.name, idx)

	work := func() {
		ctx, task := trace.NewTask(cfg.ctx, cfg.name)
		defer task.End()
		ctx = context.WithValue(ctx, handleKey{}, h)

		h.finish(safe.Call(func() error {
			return cfg.invoke(ctx, func(ctx context.Context) error {
				return fn(ctx, item)
			})
		}))
	}

	if err := cfg.sched.Execute(s.spawnCtx, work); err != nil {
		return nil, err
	}
	return h, nil
}
