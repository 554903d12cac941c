// Copyright 2026 Bob Vawter (bob@vawter.org)
// SPDX-License-Identifier: Apache-2.0

// Package config loads the command-line tool's configuration.
//
// Values are resolved in the following order, from highest to lowest
// precedence: command-line flags, UNCHAINED_* environment variables,
// UNCHAINED_* entries in a .env file, a YAML or JSON configuration file,
// and finally the built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to the environment variable for each setting.
const EnvPrefix = "UNCHAINED"

// Configuration keys, which are also the flag names.
const (
	keyBurst     = "burst"
	keyCommand   = "command"
	keyConfig    = "config"
	keyEnvFile   = "env-file"
	keyInput     = "input"
	keyLogFormat = "log-format"
	keyLogLevel  = "log-level"
	keyPrefix    = "prefix"
	keyRate      = "rate"
	keyRetries   = "retries"
	keyWorkers   = "workers"
)

// ErrNoCommand is returned from [Config.Validate] if no command was
// given.
var ErrNoCommand = errors.New("a command to run must be specified")

// Config holds the settings for one run of the tool.
type Config struct {
	Burst     int      // Burst size for Rate.
	Command   []string // The program and its arguments.
	Input     string   // A file of items, or "-" for stdin.
	LogFormat string   // Either "console" or "json".
	LogLevel  string   // A zerolog level name.
	Prefix    bool     // Prefix each line of output with its item.
	Rate      float64  // Maximum spawns per second, or zero.
	Retries   int      // Additional attempts for a failed command.
	Workers   int      // Maximum concurrent commands, or zero.
}

// Load parses the arguments and merges them with the other
// configuration sources. Usage information is written to out. If the
// arguments request help, Load returns [pflag.ErrHelp].
func Load(args []string, out io.Writer) (*Config, error) {
	flags := pflag.NewFlagSet("unchained", pflag.ContinueOnError)
	flags.SetOutput(out)
	flags.SetInterspersed(false)
	flags.Usage = func() {
		_, _ = fmt.Fprintln(out, "Usage: unchained [flags] command [args...]")
		_, _ = fmt.Fprintln(out, "Runs the command once per input line. The token {} is replaced by the line.")
		flags.PrintDefaults()
	}

	flags.Int(keyBurst, 1, "the number of commands that may start at once when --rate is set")
	flags.String(keyConfig, "", "a YAML or JSON configuration file")
	flags.String(keyEnvFile, ".env", "a dotenv file to read, if it exists")
	flags.StringP(keyInput, "i", "-", "a file containing one item per line, or - for stdin")
	flags.String(keyLogFormat, "console", "the log format: console or json")
	flags.String(keyLogLevel, "info", "the log level")
	flags.BoolP(keyPrefix, "p", false, "prefix each line of output with its item")
	flags.Float64(keyRate, 0, "the maximum number of commands to start per second; 0 is unlimited")
	flags.Int(keyRetries, 0, "the number of times to retry a failed command")
	flags.IntP(keyWorkers, "w", 0, "the maximum number of concurrent commands; 0 is unlimited")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("could not bind flags: %w", err)
	}

	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read configuration file %s: %w", path, err)
		}
	}

	if path := v.GetString(keyEnvFile); path != "" {
		dotenv, err := readEnvFile(path)
		if err != nil {
			return nil, err
		}
		if err := v.MergeConfigMap(dotenv); err != nil {
			return nil, fmt.Errorf("could not merge %s: %w", path, err)
		}
	}

	cfg := &Config{
		Burst:     v.GetInt(keyBurst),
		Command:   flags.Args(),
		Input:     v.GetString(keyInput),
		LogFormat: v.GetString(keyLogFormat),
		LogLevel:  v.GetString(keyLogLevel),
		Prefix:    v.GetBool(keyPrefix),
		Rate:      v.GetFloat64(keyRate),
		Retries:   v.GetInt(keyRetries),
		Workers:   v.GetInt(keyWorkers),
	}
	if len(cfg.Command) == 0 {
		cfg.Command = v.GetStringSlice(keyCommand)
	}
	return cfg, nil
}

// readEnvFile returns the UNCHAINED_* entries of a dotenv file as
// configuration keys. A missing file is not an error.
func readEnvFile(path string) (map[string]any, error) {
	entries, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}

	ret := make(map[string]any, len(entries))
	for k, val := range entries {
		name, ok := strings.CutPrefix(k, EnvPrefix+"_")
		if !ok {
			continue
		}
		ret[strings.ReplaceAll(strings.ToLower(name), "_", "-")] = val
	}
	return ret, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Command) == 0 {
		errs = append(errs, ErrNoCommand)
	}
	if c.Burst < 1 && c.Rate > 0 {
		errs = append(errs, fmt.Errorf("--%s must be at least 1 when --%s is set", keyBurst, keyRate))
	}
	if c.Rate < 0 {
		errs = append(errs, fmt.Errorf("--%s must not be negative", keyRate))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("--%s must not be negative", keyRetries))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("--%s must not be negative", keyWorkers))
	}
	return errors.Join(errs...)
}

// Open returns a reader for the configured input. An empty input is
// treated as stdin. If stdin is an [io.ReadCloser], closing the returned
// reader closes stdin, which interrupts a blocked read.
func (c *Config) Open(stdin io.Reader) (io.ReadCloser, error) {
	if c.Input == "" || c.Input == "-" {
		if rc, ok := stdin.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(c.Input)
	if err != nil {
		return nil, fmt.Errorf("could not open input: %w", err)
	}
	return f, nil
}
