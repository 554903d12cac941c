// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package unchained runs a function over every element of a sequence,
// using one independent unit of execution per element.
//
// # Spawning
//
// [ForEach] wraps an [iter.Seq] and a per-item function into a lazy
// [Spawner]. Nothing happens until an element is pulled from the
// Spawner. Each pull takes the next item from the source sequence,
// starts a goroutine that applies the function to the item, and returns
// a [Handle] for that goroutine without waiting for it.
//
//	s := unchained.ForEach(slices.Values(hosts), func(host string) {
//	    ping(host)
//	})
//	for h := range s.Handles() {
//	    // A goroutine for h has already been started.
//	}
//
// The per-item function may have any of the signatures listed in
// [Adaptable]. [ForEach2] accepts an [iter.Seq2].
//
// # Joining
//
// [JoinAll] collects a sequence of handles and then waits for each of
// them in the order in which they were produced. When applied to a
// Spawner, every remaining item is spawned before any waiting begins.
// Failures of individual units are discarded, so JoinAll never fails.
// [JoinAllErrors] reports the failures instead. [Spawner.Wait] and
// [Spawner.WaitErrors] are shorthands for the common case:
//
//	if err := unchained.ForEach(items, fn).WaitErrors(); err != nil {
//	    log.Print(err)
//	}
//
// A panic in the per-item function is confined to its unit and is
// reported by [Handle.Join] as a [RecoveredError].
//
// # Abandoned handles
//
// A unit cannot be canceled. Discarding its Handle only forgoes the
// ability to observe its completion. A Spawner that is abandoned before
// it has been exhausted should be released with [Spawner.Stop].
//
// # Bounded execution
//
// By default, there is no bound on the number of goroutines that a
// Spawner will start. An alternate [Executor] may be provided with
// [WithExecutor]; the pool sub-package provides a fixed-size worker pool
// with a blocking work queue. The limit sub-package provides
// [Middleware] that bound concurrency or the spawn rate. In both cases,
// the caller of [Spawner.Next] will block until the unit can be
// scheduled. If a unit cannot be scheduled at all, the Spawner ends and
// reports a [SpawnError] from [Spawner.Err].
//
// The seq sub-package builds an ordered parallel map on top of a
// Spawner, with a bounded number of outstanding units.
//
// # Retries
//
// [Invoker] wrappers run inside each unit. The retry sub-package
// provides Invokers for exponential backoff and simple loops.
//
// # Tracing
//
// Every unit runs inside its own [runtime/trace.Task], named with
// [WithName]. Blocking waits in the bundled Executor and Middleware
// implementations are annotated with [runtime/trace.StartRegion].
//
// # Testing
//
// The linger sub-package records where still-running units were
// spawned, so that tests can detect units that outlive them.
package unchained
