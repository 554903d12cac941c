// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package seq

import (
	"context"
	"iter"

	"vawter.tech/unchained"
)

// cell carries an item into its unit and the result back out.
type cell[T, R any] struct {
	item T
	out  R
}

// Map applies the function to every element of the sequence, using one
// unit of execution per element, and yields the results in input order.
//
// At most window units will be outstanding at any time; the next item is
// not pulled until the oldest result has been yielded. A window of zero
// or less is treated as one.
//
// If the loop is broken early, no further items are pulled. Units that
// have already been spawned will run to completion, but their results
// are discarded. If an executor refuses to schedule a unit, the error
// is yielded as a final element.
func Map[T, R any](
	items iter.Seq[T],
	window int,
	fn func(ctx context.Context, item T) (R, error),
	opts ...unchained.Option,
) iter.Seq2[R, error] {
	window = max(window, 1)
	return func(yield func(R, error) bool) {
		// The source runs synchronously within Spawner.Next, so last
		// always refers to the item for the most recent handle.
		var last *cell[T, R]
		var cells iter.Seq[*cell[T, R]] = func(yield func(*cell[T, R]) bool) {
			for item := range items {
				last = &cell[T, R]{item: item}
				if !yield(last) {
					return
				}
			}
		}

		s := unchained.ForEach(cells, func(ctx context.Context, c *cell[T, R]) error {
			var err error
			c.out, err = fn(ctx, c.item)
			return err
		}, opts...)
		defer s.Stop()

		type slot struct {
			c *cell[T, R]
			h *unchained.Handle
		}
		pending := make([]slot, 0, window)

		emit := func() bool {
			head := pending[0]
			pending = pending[1:]
			err := head.h.Join()
			return yield(head.c.out, err)
		}

		for {
			h, ok := s.Next()
			if !ok {
				break
			}
			pending = append(pending, slot{last, h})
			if len(pending) == window && !emit() {
				return
			}
		}
		for len(pending) > 0 {
			if !emit() {
				return
			}
		}
		if err := s.Err(); err != nil {
			var zero R
			yield(zero, err)
		}
	}
}

// Map2 is a pairwise version of [Map].
func Map2[K, V, R any](
	items iter.Seq2[K, V],
	window int,
	fn func(ctx context.Context, key K, value V) (R, error),
	opts ...unchained.Option,
) iter.Seq2[R, error] {
	var pairs iter.Seq[unchained.Pair[K, V]] = func(yield func(unchained.Pair[K, V]) bool) {
		for k, v := range items {
			if !yield(unchained.Pair[K, V]{Key: k, Value: v}) {
				return
			}
		}
	}
	return Map(pairs, window, func(ctx context.Context, p unchained.Pair[K, V]) (R, error) {
		return fn(ctx, p.Key, p.Value)
	}, opts...)
}
