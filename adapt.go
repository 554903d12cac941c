// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package unchained

import "context"

// Func is the canonical per-item function signature. See [Fn] to convert
// other function signatures to a Func.
type Func[T any] func(ctx context.Context, item T) error

// Adaptable is the set of per-item function signatures accepted by [Fn]
// and [ForEach].
type Adaptable[T any] interface {
	func(T) | func(T) error |
		func(context.Context, T) | func(context.Context, T) error |
		Func[T]
}

// Fn adapts various per-item function signatures to a [Func]. A nil
// function adapts to a nil Func.
func Fn[T any, A Adaptable[T]](fn A) Func[T] {
	switch t := any(fn).(type) {
	case func(T):
		if t == nil {
			return nil
		}
		return func(_ context.Context, item T) error {
			t(item)
			return nil
		}
	case func(T) error:
		if t == nil {
			return nil
		}
		return func(_ context.Context, item T) error {
			return t(item)
		}
	case func(context.Context, T):
		if t == nil {
			return nil
		}
		return func(ctx context.Context, item T) error {
			t(ctx, item)
			return nil
		}
	case func(context.Context, T) error:
		return t
	}
	return any(fn).(Func[T])
}
