// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package unchained

import (
	"context"
	"errors"
	"iter"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// yieldN returns an iter.Seq that yields n items with their index as
// the value, counting how many items have been pulled.
func yieldN(n int, pulled *atomic.Int32) iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := range n {
			if pulled != nil {
				pulled.Add(1)
			}
			if !yield(i) {
				return
			}
		}
	}
}

func TestForEachIsLazy(t *testing.T) {
	r := require.New(t)

	var pulled, called atomic.Int32
	s := ForEach(yieldN(3, &pulled), func(int) { called.Add(1) })
	defer s.Stop()

	// Construction performs no work.
	time.Sleep(10 * time.Millisecond)
	r.Zero(pulled.Load())
	r.Zero(called.Load())

	// A pull and a spawn are the same event.
	h, ok := s.Next()
	r.True(ok)
	r.Equal(int32(1), pulled.Load())
	r.NoError(h.Join())
	r.Equal(int32(1), called.Load())
}

func TestForEachExhaustionIsSticky(t *testing.T) {
	r := require.New(t)

	const n = 4
	s := ForEach(yieldN(n, nil), func(int) {})

	var handles []*Handle
	for range n {
		h, ok := s.Next()
		r.True(ok)
		r.NotNil(h)
		handles = append(handles, h)
	}
	for range 3 {
		h, ok := s.Next()
		r.False(ok)
		r.Nil(h)
	}
	r.NoError(s.Err())

	for idx, h := range handles {
		r.Equal(idx, h.Index)
		r.NoError(h.Join())
	}
}

func TestForEachEmpty(t *testing.T) {
	r := require.New(t)

	s := ForEach(slices.Values([]int{}), func(int) {
		t.Error("should not be called")
	})

	start := time.Now()
	r.NoError(s.Wait())
	r.Less(time.Since(start), time.Second)

	_, ok := s.Next()
	r.False(ok)
}

func TestForEachDoubles(t *testing.T) {
	r := require.New(t)

	var mu sync.Mutex
	collected := make(map[int]struct{})
	JoinAll(ForEach(slices.Values([]int{1, 2, 3, 4}), func(v int) {
		mu.Lock()
		defer mu.Unlock()
		collected[v*2] = struct{}{}
	}).Handles())

	r.ElementsMatch([]int{2, 4, 6, 8}, slices.Collect(maps.Keys(collected)))
}

func TestForEachCalledOncePerItem(t *testing.T) {
	r := require.New(t)

	const n = 100
	counts := make([]atomic.Int32, n)
	s := ForEach(yieldN(n, nil), func(v int) {
		counts[v].Add(1)
	})
	r.NoError(s.Wait())

	// Pulling after the drain must not invoke the function again.
	_, ok := s.Next()
	r.False(ok)
	for idx := range counts {
		r.Equal(int32(1), counts[idx].Load(), "index %d", idx)
	}
}

func TestForEachItemsAreValues(t *testing.T) {
	r := require.New(t)

	type item struct{ n int }
	items := []item{{1}, {2}, {3}}

	var mu sync.Mutex
	var seen []int
	r.NoError(ForEach(slices.Values(items), func(it item) {
		it.n *= 10 // Mutating the copy must not affect the source.
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, it.n)
	}).Wait())

	r.ElementsMatch([]int{10, 20, 30}, seen)
	r.Equal([]item{{1}, {2}, {3}}, items)
}

func TestForEachDoesNotWaitForUnits(t *testing.T) {
	r := require.New(t)

	hold := make(chan struct{})
	s := ForEach(yieldN(5, nil), func(int) { <-hold })

	// Every pull returns while all previous units are still blocked.
	var handles []*Handle
	for h := range s.Handles() {
		r.Equal(StateRunning, h.State())
		handles = append(handles, h)
	}
	r.Len(handles, 5)

	close(hold)
	JoinAll(slices.Values(handles))
	for _, h := range handles {
		r.Equal(StateSuccess, h.State())
	}
}

func TestForEachUnitsRunConcurrently(t *testing.T) {
	r := require.New(t)

	// Every unit waits for all others to start, which can only succeed
	// if there is no bound on concurrency.
	const n = 50
	var started sync.WaitGroup
	started.Add(n)
	s := ForEach(yieldN(n, nil), func(int) {
		started.Done()
		started.Wait()
	})

	done := make(chan error, 1)
	go func() { done <- s.Wait() }()
	select {
	case err := <-done:
		r.NoError(err)
	case <-time.After(10 * time.Second):
		r.Fail("units did not run concurrently")
	}
}

func TestForEachFailureIsConfined(t *testing.T) {
	r := require.New(t)

	boom := errors.New("boom")
	var completed atomic.Int32
	s := ForEach(yieldN(5, nil), func(v int) error {
		switch v {
		case 1:
			return boom
		case 3:
			panic("kaboom")
		}
		completed.Add(1)
		return nil
	})

	var handles []*Handle
	for {
		h, ok := s.Next()
		if !ok {
			break
		}
		handles = append(handles, h)
	}
	r.NoError(s.Err())

	JoinAll(slices.Values(handles))
	r.Equal(int32(3), completed.Load())

	r.ErrorIs(handles[1].Join(), boom)
	r.Equal(StateFailed, handles[1].State())

	var recovered *RecoveredError
	r.ErrorAs(handles[3].Join(), &recovered)
	r.ErrorContains(recovered, "kaboom")
	r.NotEmpty(recovered.Stack)
}

func TestForEachNilFunction(t *testing.T) {
	require.Panics(t, func() {
		var fn func(int)
		ForEach(slices.Values([]int{1}), fn)
	})
	require.Panics(t, func() {
		ForEach2(maps.All(map[int]int{}), nil)
	})
}

func TestForEachConcurrentPulls(t *testing.T) {
	r := require.New(t)

	const n = 200
	var called atomic.Int32
	s := ForEach(yieldN(n, nil), func(int) { called.Add(1) })

	var mu sync.Mutex
	indexes := make(map[int]struct{})
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for h := range s.Handles() {
				if err := h.Join(); err != nil {
					t.Error(err)
				}
				mu.Lock()
				indexes[h.Index] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	r.Len(indexes, n)
	r.Equal(int32(n), called.Load())
}

func TestForEachHandlesResume(t *testing.T) {
	r := require.New(t)

	s := ForEach(yieldN(4, nil), func(int) {})
	var first []*Handle
	for h := range s.Handles() {
		first = append(first, h)
		if len(first) == 2 {
			break
		}
	}

	rest := slices.Collect(s.Handles())
	r.Len(first, 2)
	r.Len(rest, 2)
	r.Equal(2, rest[0].Index)
	r.Equal(3, rest[1].Index)
	JoinAll(slices.Values(append(first, rest...)))
}

func TestForEachStop(t *testing.T) {
	r := require.New(t)

	var pulled, called atomic.Int32
	released := make(chan struct{})
	source := func(yield func(int) bool) {
		defer close(released)
		for i := range 100 {
			pulled.Add(1)
			if !yield(i) {
				return
			}
		}
	}
	s := ForEach(source, func(int) { called.Add(1) })

	h, ok := s.Next()
	r.True(ok)
	s.Stop()
	s.Stop() // Idempotent.

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		r.Fail("source was not released")
	}

	_, ok = s.Next()
	r.False(ok)
	r.NoError(s.Err())
	r.NoError(h.Join())
	r.Equal(int32(1), pulled.Load())
	r.Equal(int32(1), called.Load())
}

func TestForEachSpawnFailure(t *testing.T) {
	r := require.New(t)

	errFull := errors.New("full")
	var accepted atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, work func()) error {
		if accepted.Load() == 2 {
			return errFull
		}
		accepted.Add(1)
		return Goroutines.Execute(ctx, work)
	})

	var called atomic.Int32
	s := ForEach(yieldN(5, nil), func(int) { called.Add(1) }, WithExecutor(exec))

	handles := slices.Collect(s.Handles())
	r.Len(handles, 2)

	var spawnErr *SpawnError
	r.ErrorAs(s.Err(), &spawnErr)
	r.Equal(2, spawnErr.Index)
	r.ErrorIs(s.Err(), errFull)
	r.EqualError(spawnErr, "could not spawn index 2: full")

	// The failure is sticky.
	_, ok := s.Next()
	r.False(ok)
	r.ErrorIs(s.Err(), errFull)

	JoinAll(slices.Values(handles))
	r.Equal(int32(2), called.Load())

	// Wait reports only the spawn failure.
	r.ErrorIs(s.Wait(), errFull)
}

func TestForEachContextAndHandleFrom(t *testing.T) {
	r := require.New(t)

	type key struct{}
	ctx := context.WithValue(t.Context(), key{}, "value")

	var mu sync.Mutex
	seen := make(map[int]string)
	s := ForEach(yieldN(3, nil), func(ctx context.Context, v int) error {
		h, ok := HandleFrom(ctx)
		if !ok {
			return errors.New("no handle")
		}
		if h.Index != v {
			return errors.New("index mismatch")
		}
		mu.Lock()
		defer mu.Unlock()
		seen[v] = ctx.Value(key{}).(string) + ":" + h.Name
		return nil
	}, WithContext(ctx), WithName("test"))

	r.NoError(s.WaitErrors())
	r.Equal(map[int]string{0: "value:test", 1: "value:test", 2: "value:test"}, seen)

	_, ok := HandleFrom(t.Context())
	r.False(ok)
}

func TestForEachCanceledContextDoesNotStopUnits(t *testing.T) {
	r := require.New(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var canceled atomic.Int32
	s := ForEach(yieldN(3, nil), func(ctx context.Context, _ int) {
		if ctx.Err() != nil {
			canceled.Add(1)
		}
	}, WithContext(ctx))

	// The default executor ignores the context.
	r.NoError(s.WaitErrors())
	r.Equal(int32(3), canceled.Load())
}

func TestForEachInvokerOrder(t *testing.T) {
	r := require.New(t)

	var mu sync.Mutex
	var order []string
	record := func(name string) Invoker {
		return func(ctx context.Context, task Task) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return task(ctx)
		}
	}

	s := ForEach(yieldN(1, nil), func(int) {
		mu.Lock()
		order = append(order, "task")
		mu.Unlock()
	}, WithInvoker(record("outer")), WithInvoker(record("inner")))
	r.NoError(s.Wait())
	r.Equal([]string{"outer", "inner", "task"}, order)
}

func TestForEachInvokerErr(t *testing.T) {
	r := require.New(t)

	boom := errors.New("boom")
	s := ForEach(yieldN(2, nil), func(int) {
		t.Error("should not be called")
	}, WithInvoker(InvokerErr(boom)))

	err := s.WaitErrors()
	r.ErrorIs(err, boom)
	r.ErrorContains(err, "index 0: boom")
	r.ErrorContains(err, "index 1: boom")
}

func TestForEachMiddlewareOrder(t *testing.T) {
	r := require.New(t)

	var order []string
	record := func(name string) Middleware {
		return func(next Executor) Executor {
			return ExecutorFunc(func(ctx context.Context, work func()) error {
				order = append(order, name)
				return next.Execute(ctx, work)
			})
		}
	}

	s := ForEach(yieldN(1, nil), func(int) {},
		WithMiddleware(record("first"), record("second")))
	r.NoError(s.Wait())
	r.Equal([]string{"first", "second"}, order)
}

func TestForEach2(t *testing.T) {
	r := require.New(t)

	m := map[string]int{"a": 1, "b": 2, "c": 3}

	var mu sync.Mutex
	collected := make(map[string]int)
	s := ForEach2(maps.All(m), func(_ context.Context, k string, v int) error {
		mu.Lock()
		defer mu.Unlock()
		collected[k] = v
		return nil
	})
	r.NoError(s.WaitErrors())
	r.Equal(m, collected)
}

func TestForEach2Error(t *testing.T) {
	r := require.New(t)

	errX := errors.New("error x")
	s := ForEach2(slices.All([]string{"a", "b", "c"}), func(_ context.Context, idx int, _ string) error {
		if idx == 1 {
			return errX
		}
		return nil
	})
	err := s.WaitErrors()
	r.ErrorIs(err, errX)
	r.ErrorContains(err, "index 1: error x")
}

// blockingExecutor runs the first unit and then blocks every later
// hand-off until the context is done.
func blockingExecutor(entered chan<- struct{}) Executor {
	var calls atomic.Int32
	return ExecutorFunc(func(ctx context.Context, work func()) error {
		if calls.Add(1) == 1 {
			go work()
			return nil
		}
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	})
}

func TestForEachStopInterruptsExecutor(t *testing.T) {
	r := require.New(t)

	entered := make(chan struct{})
	var called atomic.Int32
	s := ForEach(yieldN(5, nil), func(int) { called.Add(1) },
		WithExecutor(blockingExecutor(entered)))

	first, ok := s.Next()
	r.True(ok)
	r.NoError(first.Join())

	type result struct {
		h  *Handle
		ok bool
	}
	pulled := make(chan result, 1)
	go func() {
		h, ok := s.Next()
		pulled <- result{h, ok}
	}()
	<-entered

	// Neither Err nor Stop waits for the blocked pull.
	r.NoError(s.Err())
	s.Stop()

	select {
	case res := <-pulled:
		r.False(res.ok)
		r.Nil(res.h)
	case <-time.After(5 * time.Second):
		r.Fail("Next was not interrupted by Stop")
	}

	// An interrupted hand-off is a clean stop.
	r.NoError(s.Err())
	_, ok = s.Next()
	r.False(ok)
	r.Equal(int32(1), called.Load())
}

func TestForEachCanceledExecutorIsSpawnError(t *testing.T) {
	r := require.New(t)

	ctx, cancel := context.WithCancel(t.Context())
	entered := make(chan struct{})
	s := ForEach(yieldN(5, nil), func(int) {},
		WithContext(ctx), WithExecutor(blockingExecutor(entered)))

	_, ok := s.Next()
	r.True(ok)

	go func() {
		<-entered
		cancel()
	}()
	_, ok = s.Next()
	r.False(ok)

	var spawnErr *SpawnError
	r.ErrorAs(s.Err(), &spawnErr)
	r.Equal(1, spawnErr.Index)
	r.ErrorIs(s.Err(), context.Canceled)
}

func TestForEachStopFromUnit(t *testing.T) {
	r := require.New(t)

	var s *Spawner[int]
	var called atomic.Int32
	s = ForEach(yieldN(1000, nil), func(v int) {
		called.Add(1)
		if v == 2 {
			s.Stop()
			if err := s.Err(); err != nil {
				t.Error(err)
			}
		}
	})

	done := make(chan error, 1)
	go func() { done <- s.Wait() }()
	select {
	case err := <-done:
		r.NoError(err)
	case <-time.After(5 * time.Second):
		r.Fail("Wait did not return")
	}
	_, ok := s.Next()
	r.False(ok)
}

func TestForEachStartedIsPullTime(t *testing.T) {
	r := require.New(t)

	var entered time.Time
	exec := ExecutorFunc(func(ctx context.Context, work func()) error {
		time.Sleep(10 * time.Millisecond)
		entered = time.Now()
		return Goroutines.Execute(ctx, work)
	})
	s := ForEach(yieldN(1, nil), func(int) {}, WithExecutor(exec))
	defer s.Stop()

	h, ok := s.Next()
	r.True(ok)
	r.NoError(h.Join())
	// Time spent waiting on the executor is included.
	r.True(h.Started.Before(entered))
}
