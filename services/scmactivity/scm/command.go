// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultMaxOutputBytes caps a single backend command's stdout.
const DefaultMaxOutputBytes = 64 << 20

// ErrOutputTooLarge is returned when a command writes more than its cap.
// A truncated blame would silently misattribute lines, so it is an error.
var ErrOutputTooLarge = errors.New("command output exceeds limit")

// ExitError is returned when the backend binary ran and exited non-zero.
type ExitError struct {
	Name     string
	Args     []string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	sub := ""
	if len(e.Args) > 0 {
		sub = " " + e.Args[0]
	}
	return fmt.Sprintf("%s%s: exit status %d: %s", e.Name, sub, e.ExitCode, strings.TrimSpace(e.Stderr))
}

// Command describes one backend invocation.
//
// # Security
//
// Arguments are passed to exec directly, never through a shell. Secrets
// belong in Stdin, not Args: argv is visible to every local user.
type Command struct {
	Name           string
	Args           []string
	Dir            string
	Timeout        time.Duration
	MaxOutputBytes int
	Env            []string

	// Stdin, if non-nil, is fed to the process. Otherwise stdin is
	// /dev/null.
	Stdin []byte
}

// Run executes c and returns its stdout.
//
// # Description
//
// Applies c.Timeout (if positive) on top of ctx and caps stdout at
// c.MaxOutputBytes (DefaultMaxOutputBytes when zero).
//
// # Outputs
//
//   - []byte: Captured stdout.
//   - error: *ExitError on non-zero exit, ErrOutputTooLarge on overflow,
//     a wrapped context error on timeout or cancellation, or the exec error
//     when the binary could not be started.
func Run(ctx context.Context, c Command) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	limit := c.MaxOutputBytes
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if c.Stdin != nil {
		cmd.Stdin = bytes.NewReader(c.Stdin)
	}
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	lw := &limitedWriter{w: &stdout, limit: limit}
	cmd.Stdout = lw
	cmd.Stderr = &limitedWriter{w: &stderr, limit: 64 << 10}

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s %s: %w", c.Name, firstArg(c.Args), ctxErr)
	}
	if lw.overflow {
		return nil, fmt.Errorf("%s %s: %w (%d bytes)", c.Name, firstArg(c.Args), ErrOutputTooLarge, limit)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{
				Name:     c.Name,
				Args:     c.Args,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		return nil, fmt.Errorf("%s %s: %w", c.Name, firstArg(c.Args), err)
	}
	return stdout.Bytes(), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// limitedWriter stops buffering after limit bytes and records the overflow.
type limitedWriter struct {
	w        *bytes.Buffer
	limit    int
	written  int
	overflow bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		lw.overflow = lw.overflow || n > 0
		return n, nil
	}
	if len(p) > remaining {
		p = p[:remaining]
		lw.overflow = true
	}
	written, err := lw.w.Write(p)
	lw.written += written
	if err != nil {
		return written, err
	}
	return n, nil
}
