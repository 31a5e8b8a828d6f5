// Copyright 2025 Certen Protocol
//
// Package obslog provides structured logging for the Speculator and
// Chain: a thin wrapper over log/slog configurable for text/json
// output, in the style of the teacher's lite-client logging package
// (its HTTP request-logging middleware is dropped — this module has no
// HTTP surface).
package obslog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with a few ledger-specific helpers.
type Logger struct {
	*slog.Logger
	config *Config
}

// Config configures a Logger's output.
type Config struct {
	Level     slog.Level
	Format    string // "json" or "text"
	Output    string // "stdout", "stderr", or a file path
	AddSource bool
}

// Field is a structured logging key/value pair.
type Field struct {
	Key   string
	Value any
}

// DefaultConfig returns a text logger at info level writing to stdout.
func DefaultConfig() *Config {
	return &Config{Level: slog.LevelInfo, Format: "text", Output: "stdout"}
}

// New creates a Logger from config, defaulting when config is nil.
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var output io.Writer
	switch config.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("obslog: open log file: %w", err)
		}
		output = file
	}

	opts := &slog.HandlerOptions{Level: config.Level, AddSource: config.AddSource}
	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler), config: config}, nil
}

// WithComponent tags every subsequent log line with a component name,
// e.g. "speculator" or "chain".
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With("component", component), config: l.config}
}

// WithFields returns a Logger carrying additional structured fields.
func (l *Logger) WithFields(fields ...Field) *Logger {
	if len(fields) == 0 {
		return l
	}
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return &Logger{Logger: l.Logger.With(args...), config: l.config}
}

// LogRejection records a transaction rejected during speculation, with
// enough context (id and root cause) to diagnose consensus divergences
// (spec.md §7's logging requirement).
func (l *Logger) LogRejection(txID string, cause error) {
	l.Logger.Warn("transaction rejected during speculation",
		"tx_id", txID,
		"cause", cause.Error(),
	)
}

// LogGuardViolation records a Chain add_next guard failure.
func (l *Logger) LogGuardViolation(height uint32, violations []string) {
	l.Logger.Error("block rejected by guard check",
		"height", height,
		"violations", strings.Join(violations, "; "),
	)
}

var global *Logger

// SetGlobal installs the package-level default logger.
func SetGlobal(l *Logger) { global = l }

// Global returns the package-level default logger, lazily creating one
// at info/text/stdout if none has been installed.
func Global() *Logger {
	if global == nil {
		l, _ := New(DefaultConfig())
		global = l
	}
	return global
}

// ParseLevel parses a textual log level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("obslog: unknown log level %q", level)
	}
}
