// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Command unchained runs a command once for every line of its input,
// with each execution in its own unit.
//
//	cat hosts.txt | unchained --workers 8 --prefix ping -c 1 {}
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"vawter.tech/unchained"
	"vawter.tech/unchained/internal/command"
	"vawter.tech/unchained/internal/config"
	"vawter.tech/unchained/internal/logging"
	"vawter.tech/unchained/limit"
	"vawter.tech/unchained/pool"
	"vawter.tech/unchained/retry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// run executes the tool. Errors are logged before being returned.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.Load(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	log := logging.New(stderr, cfg.LogLevel, cfg.LogFormat).
		With().Str("run_id", uuid.NewString()).Logger()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	in, err := cfg.Open(stdin)
	if err != nil {
		log.Error().Err(err).Msg("could not open input")
		return err
	}
	defer func() { _ = in.Close() }()
	// Unblock a pending read once the run is canceled.
	stopClose := context.AfterFunc(ctx, func() { _ = in.Close() })
	defer stopClose()
	items, itemsErr := command.Items(ctx, in)

	runner := &command.Runner{
		Command: cfg.Command,
		Log:     log,
		Out:     stdout,
		Prefix:  cfg.Prefix,
	}

	opts := []unchained.Option{
		unchained.WithContext(ctx),
		unchained.WithName("unchained"),
	}
	if cfg.Workers > 0 {
		p := pool.New(cfg.Workers)
		defer p.Close()
		opts = append(opts, unchained.WithExecutor(p))
	}
	if cfg.Rate > 0 {
		opts = append(opts, unchained.WithMiddleware(limit.WithMaxRate(cfg.Rate, cfg.Burst)))
	}
	if cfg.Retries > 0 {
		backoff := &retry.Backoff{
			MaxAttempts: cfg.Retries + 1,
			Retryable: func(err error) bool {
				return !errors.Is(err, command.ErrEmptyCommand) && ctx.Err() == nil
			},
		}
		opts = append(opts, unchained.WithInvoker(backoff.Invoker()))
	}

	s := unchained.ForEach(items, runner.Run, opts...)
	var handles []*unchained.Handle
	for h := range s.Handles() {
		handles = append(handles, h)
	}
	log.Debug().Int("count", len(handles)).Msg("all items spawned")

	joinErr := unchained.JoinAllErrors(slices.Values(handles))

	failed := 0
	for _, h := range handles {
		if h.State() == unchained.StateFailed {
			failed++
		}
	}
	log.Info().Int("count", len(handles)).Int("failed", failed).Msg("complete")

	if err := s.Err(); err != nil {
		log.Error().Err(err).Msg("stopped spawning")
		joinErr = errors.Join(err, joinErr)
	}
	if err := itemsErr(); err != nil {
		if ctx.Err() != nil {
			log.Warn().Err(err).Msg("canceled before all input was read")
		} else {
			log.Error().Err(err).Msg("could not read input")
		}
		joinErr = errors.Join(err, joinErr)
	}
	if failed > 0 {
		return errors.Join(fmt.Errorf("%d of %d commands failed", failed, len(handles)), joinErr)
	}
	return joinErr
}
