// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package git implements the scm.Provider contract on top of the git
// command line.
//
// # Description
//
// Every operation runs a fresh git process with explicit arguments (no
// shell). Status parses `git status --porcelain`; Blame parses
// `git blame --porcelain`.
//
// # Thread Safety
//
// Client is safe for concurrent use: it holds no mutable state.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

// DefaultStatusTimeout bounds a status query when none is configured.
const DefaultStatusTimeout = 30 * time.Second

// Client runs git commands inside one working copy.
type Client struct {
	workDir       string
	binary        string
	statusTimeout time.Duration
	maxOutput     int
}

var _ scm.Provider = (*Client)(nil)

// New is the scm.Factory for git URLs.
//
// # Description
//
// The working copy is opts.WorkDir, falling back to the URL location when
// it names a local directory (which is what scm.GuessURL produces).
//
// # Outputs
//
//   - scm.Provider: The git client.
//   - error: Non-nil if no usable working directory is known.
func New(u scm.URL, opts scm.OpenOptions) (scm.Provider, error) {
	dir := opts.WorkDir
	if dir == "" {
		if info, err := os.Stat(u.Location); err == nil && info.IsDir() {
			dir = u.Location
		}
	}
	return NewClient(dir, opts)
}

// NewClient creates a git client for workDir.
//
// # Inputs
//
//   - workDir: Working copy root. Must be non-empty.
//   - opts: CommandTimeout and MaxOutputBytes are honoured; credentials
//     are ignored (git delegates authentication to its credential helpers,
//     and blame/status never reach the network).
//
// # Outputs
//
//   - *Client: Ready-to-use client.
//   - error: Non-nil if workDir is empty.
func NewClient(workDir string, opts scm.OpenOptions) (*Client, error) {
	if workDir == "" {
		return nil, errors.New("git working directory is required")
	}
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve git working directory: %w", err)
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultStatusTimeout
	}
	return &Client{
		workDir:       abs,
		binary:        "git",
		statusTimeout: timeout,
		maxOutput:     opts.MaxOutputBytes,
	}, nil
}

// Kind returns "git".
func (c *Client) Kind() string {
	return scm.KindGit
}

// WorkDir returns the absolute working copy root.
func (c *Client) WorkDir() string {
	return c.workDir
}

// Status lists tracked files with uncommitted changes under dir.
//
// # Description
//
// Runs `git status --porcelain --untracked-files=no -- <dir>`. Untracked
// files are not local modifications of committed content, so they are not
// reported. A non-zero git exit yields a report with Success=false and
// git's stderr as the provider message.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - dir: Directory to inspect, absolute or relative to the working copy.
//
// # Outputs
//
//   - *scm.LocalChangeReport: Status outcome.
//   - error: Non-nil if git could not be run (missing binary, timeout).
func (c *Client) Status(ctx context.Context, dir string) (*scm.LocalChangeReport, error) {
	out, err := scm.Run(ctx, scm.Command{
		Name:           c.binary,
		Args:           []string{"status", "--porcelain", "--untracked-files=no", "--", dir},
		Dir:            c.workDir,
		Timeout:        c.statusTimeout,
		MaxOutputBytes: c.maxOutput,
	})
	if err != nil {
		var exitErr *scm.ExitError
		if errors.As(err, &exitErr) {
			return &scm.LocalChangeReport{
				Success:         false,
				ProviderMessage: strings.TrimSpace(exitErr.Stderr),
			}, nil
		}
		return nil, err
	}
	return &scm.LocalChangeReport{
		Success:      true,
		ChangedFiles: ParseStatusPorcelain(string(out)),
	}, nil
}

// Blame returns per-line attribution for path.
//
// # Description
//
// Runs `git blame --porcelain -- <path>`. No timeout is applied here; the
// caller bounds the call through ctx when it wants one.
//
// # Outputs
//
//   - []scm.BlameLine: One entry per line, ordered by line number.
//   - error: Non-nil if git fails (untracked file, binary file, etc.).
func (c *Client) Blame(ctx context.Context, path string) ([]scm.BlameLine, error) {
	out, err := scm.Run(ctx, scm.Command{
		Name:           c.binary,
		Args:           []string{"blame", "--porcelain", "--", path},
		Dir:            c.workDir,
		MaxOutputBytes: c.maxOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("blame %s: %w", path, err)
	}
	lines, err := ParseBlamePorcelain(out)
	if err != nil {
		return nil, fmt.Errorf("blame %s: %w", path, err)
	}
	return lines, nil
}

// ParseStatusPorcelain extracts paths from `git status --porcelain` output.
//
// Format: XY <path>, or XY <orig> -> <path> for renames and copies.
func ParseStatusPorcelain(output string) []string {
	var files []string
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if idx := strings.Index(path, " -> "); idx >= 0 {
			path = path[idx+4:]
		}
		path = unquotePath(path)
		if path != "" {
			files = append(files, path)
		}
	}
	return files
}

// unquotePath undoes git's C-style quoting of paths with spaces, quotes or
// non-ASCII bytes (core.quotePath), e.g. "caf\303\251.java".
func unquotePath(path string) string {
	if len(path) < 2 || path[0] != '"' || path[len(path)-1] != '"' {
		return path
	}
	if unquoted, err := strconv.Unquote(path); err == nil {
		return unquoted
	}
	return path[1 : len(path)-1]
}
