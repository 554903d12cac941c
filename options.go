// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

package unchained

import "context"

const defaultName = "unchained"

// An Option configures a [Spawner].
type Option func(cfg *config)

type config struct {
	ctx        context.Context
	executor   Executor
	invokers   []Invoker
	middleware []Middleware
	name       string

	// Computed by sanitize.
	invoke Invoker
	sched  Executor
}

func newConfig(opts []Option) *config {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.sanitize()
	return cfg
}

func (c *config) sanitize() {
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	if c.executor == nil {
		c.executor = Goroutines
	}
	if c.name == "" {
		c.name = defaultName
	}
	c.invoke = chainInvokers(c.invokers)
	c.sched = chainMiddleware(c.executor, c.middleware)
}

// WithContext sets the context that will be passed to the per-item
// function. Canceling the context does not interrupt any running unit;
// it will only cause a blocking [Executor] or [Middleware] to refuse to
// schedule new units. Defaults to [context.Background].
func WithContext(ctx context.Context) Option {
	return func(cfg *config) {
		cfg.ctx = ctx
	}
}

// WithExecutor replaces the default [Goroutines] executor.
func WithExecutor(e Executor) Option {
	return func(cfg *config) {
		cfg.executor = e
	}
}

// WithInvoker appends [Invoker] wrappers that run inside each unit.
// Invokers are applied in declaration order, so the first Invoker is
// the outermost.
func WithInvoker(inv ...Invoker) Option {
	return func(cfg *config) {
		cfg.invokers = append(cfg.invokers, inv...)
	}
}

// WithMiddleware appends [Middleware] that decorate the executor.
// The first Middleware will be the first to see a unit of work.
func WithMiddleware(mw ...Middleware) Option {
	return func(cfg *config) {
		cfg.middleware = append(cfg.middleware, mw...)
	}
}

// WithName sets the name used for [runtime/trace] tasks and recorded in
// each [Handle].
func WithName(name string) Option {
	return func(cfg *config) {
		cfg.name = name
	}
}
