// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package logging constructs the command-line tool's logger.
package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Supported output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a logger that writes to w. Unknown levels fall back to
// info. Any format other than [FormatJSON] produces human-readable
// output.
func New(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var zl zerolog.Logger
	if strings.ToLower(format) == FormatJSON {
		zl = zerolog.New(w)
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    true,
			TimeFormat: "15:04:05",
		})
	}
	return zl.Level(lvl).With().Timestamp().Logger()
}
