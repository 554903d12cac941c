// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package command runs an external program once per item.
package command

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"vawter.tech/unchained"
)

// Placeholder is replaced by the item in each argument.
const Placeholder = "{}"

// ErrEmptyCommand is returned by [Runner.Run] if there is no program to
// execute.
var ErrEmptyCommand = errors.New("command: empty command")

// A Runner executes a command template for individual items. The
// output of each execution is buffered and written to Out as a single
// block. A Runner is safe for concurrent use.
type Runner struct {
	Command []string       // The program and its arguments.
	Log     zerolog.Logger // Receives per-execution diagnostics.
	Out     io.Writer      // Receives the combined output.
	Prefix  bool           // Prefix each line of output with the item.

	mu sync.Mutex // Serializes writes to Out.
}

// Args returns the command line for the item. Every occurrence of
// [Placeholder] is replaced with the item. If no argument contains the
// placeholder, the item is appended as a final argument.
func (r *Runner) Args(item string) []string {
	ret := make([]string, 0, len(r.Command)+1)
	found := false
	for _, arg := range r.Command {
		if strings.Contains(arg, Placeholder) {
			found = true
			arg = strings.ReplaceAll(arg, Placeholder, item)
		}
		ret = append(ret, arg)
	}
	if !found {
		ret = append(ret, item)
	}
	return ret
}

// Run executes the command for the item and waits for it to exit. The
// process is killed if the context is canceled.
func (r *Runner) Run(ctx context.Context, item string) error {
	if len(r.Command) == 0 {
		return ErrEmptyCommand
	}
	args := r.Args(item)

	log := r.Log.With().Str("item", item).Logger()
	if h, ok := unchained.HandleFrom(ctx); ok {
		log = log.With().Int("index", h.Index).Logger()
	}

	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	log.Debug().Strs("args", args).Msg("starting")
	runErr := cmd.Run()
	if err := r.write(item, buf.Bytes()); err != nil {
		return errors.Join(runErr, err)
	}
	if runErr != nil {
		log.Warn().Err(runErr).Msg("command failed")
		return fmt.Errorf("%s: %w", item, runErr)
	}
	log.Debug().Msg("finished")
	return nil
}

func (r *Runner) write(item string, data []byte) error {
	if len(data) == 0 || r.Out == nil {
		return nil
	}
	if r.Prefix {
		var buf bytes.Buffer
		for line := range bytes.Lines(data) {
			buf.WriteString(item)
			buf.WriteString(": ")
			buf.Write(line)
		}
		if !bytes.HasSuffix(data, []byte("\n")) {
			buf.WriteByte('\n')
		}
		data = buf.Bytes()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.Out.Write(data)
	return err
}

// Items returns a sequence of the non-blank lines in the reader, with
// surrounding whitespace removed. The sequence ends early once the
// context is done. The returned function reports any read error, or the
// context's error, once the sequence has been exhausted.
//
// Cancellation cannot interrupt a blocked read. Callers should close the
// reader when the context is done.
func Items(ctx context.Context, rd io.Reader) (iter.Seq[string], func() error) {
	var err error
	seq := func(yield func(string) bool) {
		scanner := bufio.NewScanner(rd)
		for scanner.Scan() {
			if err = ctx.Err(); err != nil {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !yield(line) {
				return
			}
		}
		if err = ctx.Err(); err == nil {
			err = scanner.Err()
		}
	}
	return seq, func() error { return err }
}
