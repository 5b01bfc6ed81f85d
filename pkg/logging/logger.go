// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging builds the slog loggers used by scmactivity.
//
// A Logger writes human-readable text (or JSON) to stderr and, when a log
// directory is configured, JSON to a dated file in that directory. Every
// record carries a "service" attribute.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    Dir:     "~/.scmactivity/logs",
//	    Service: "scmactivity",
//	})
//	if err != nil { ... }
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
//
// Components take a *slog.Logger, never a *Logger.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ErrUnknownLevel is returned by ParseLevel.
var ErrUnknownLevel = errors.New("unknown log level")

// ParseLevel accepts debug, info, warn (or warning) and error, in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// Config configures New.
type Config struct {
	Level Level

	// Dir enables file logging to {Dir}/{Service}_{date}.log. A leading
	// "~" is expanded.
	Dir string

	// Service is attached to every record.
	Service string

	// JSON switches the console output to JSON. File output is always JSON.
	JSON bool

	// Quiet disables console output.
	Quiet bool

	// Output replaces stderr as the console destination.
	Output io.Writer
}

// Logger owns the handlers and the optional log file.
//
// # Thread Safety
//
// Safe for concurrent use.
type Logger struct {
	slog *slog.Logger
	file *os.File
	path string
	mu   sync.Mutex
}

// New builds a Logger.
//
// # Outputs
//
//   - *Logger: Ready to use. Call Close to release the log file.
//   - error: Non-nil if the log directory or file cannot be created.
func New(cfg Config) (*Logger, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}
	l := &Logger{}

	var handlers []slog.Handler
	if !cfg.Quiet {
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	if cfg.Dir != "" {
		dir := expandHome(cfg.Dir)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
		service := cfg.Service
		if service == "" {
			service = "scmactivity"
		}
		l.path = filepath.Join(dir, fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02")))
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
	}

	var h slog.Handler
	switch len(handlers) {
	case 0:
		h = slog.NewTextHandler(io.Discard, opts)
	case 1:
		h = handlers[0]
	default:
		h = &fanout{handlers: handlers}
	}
	if cfg.Service != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}
	l.slog = slog.New(h)
	return l, nil
}

// Slog returns the underlying *slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Path returns the log file path, or "" without file logging.
func (l *Logger) Path() string {
	return l.path
}

// Close syncs and closes the log file. Safe to call more than once.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	syncErr := l.file.Sync()
	closeErr := l.file.Close()
	l.file = nil
	if syncErr != nil {
		return fmt.Errorf("sync log file: %w", syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close log file: %w", closeErr)
	}
	return nil
}

// fanout sends each record to every handler enabled for its level.
type fanout struct {
	handlers []slog.Handler
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &fanout{handlers: out}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithGroup(name)
	}
	return &fanout{handlers: out}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
