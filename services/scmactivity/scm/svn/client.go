// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package svn implements the scm.Provider contract on top of the svn
// command line, using its --xml output modes.
package svn

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/awnumar/memguard"

	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

// DefaultStatusTimeout bounds a status query when none is configured.
const DefaultStatusTimeout = 60 * time.Second

// Client runs svn commands inside one working copy.
//
// # Thread Safety
//
// Safe for concurrent use.
type Client struct {
	workDir       string
	binary        string
	creds         *scm.Credentials
	statusTimeout time.Duration
	maxOutput     int
}

var _ scm.Provider = (*Client)(nil)

// New is the scm.Factory for svn URLs.
func New(u scm.URL, opts scm.OpenOptions) (scm.Provider, error) {
	dir := opts.WorkDir
	if dir == "" {
		if info, err := os.Stat(u.Location); err == nil && info.IsDir() {
			dir = u.Location
		}
	}
	return NewClient(dir, opts)
}

// NewClient creates an svn client for workDir.
//
// # Inputs
//
//   - workDir: Working copy root. Must be non-empty.
//   - opts: Credentials are forwarded to every svn invocation.
//
// # Outputs
//
//   - *Client: Ready-to-use client.
//   - error: Non-nil if workDir is empty.
func NewClient(workDir string, opts scm.OpenOptions) (*Client, error) {
	if workDir == "" {
		return nil, errors.New("svn working directory is required")
	}
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve svn working directory: %w", err)
	}
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultStatusTimeout
	}
	return &Client{
		workDir:       abs,
		binary:        "svn",
		creds:         opts.Credentials,
		statusTimeout: timeout,
		maxOutput:     opts.MaxOutputBytes,
	}, nil
}

// Kind returns "svn".
func (c *Client) Kind() string {
	return scm.KindSvn
}

// Status lists versioned items with local modifications under dir.
//
// Runs `svn status --xml --quiet <dir>`; --quiet drops unversioned items.
// A non-zero exit yields Success=false with svn's stderr as the message.
func (c *Client) Status(ctx context.Context, dir string) (*scm.LocalChangeReport, error) {
	var out []byte
	err := c.run(ctx, c.statusTimeout, []string{"status", "--xml", "--quiet", dir}, func(o []byte) {
		out = o
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
	files, err := ParseStatusXML(out)
	if err != nil {
		return nil, err
	}
	return &scm.LocalChangeReport{Success: true, ChangedFiles: files}, nil
}

// Blame returns per-line attribution for path via `svn blame --xml`.
func (c *Client) Blame(ctx context.Context, path string) ([]scm.BlameLine, error) {
	var out []byte
	err := c.run(ctx, 0, []string{"blame", "--xml", path}, func(o []byte) {
		out = o
	})
	if err != nil {
		return nil, fmt.Errorf("blame %s: %w", path, err)
	}
	lines, err := ParseBlameXML(out)
	if err != nil {
		return nil, fmt.Errorf("blame %s: %w", path, err)
	}
	return lines, nil
}

// run executes svn with credential flags appended. The password goes to
// svn on stdin and the copy is wiped when the process exits.
func (c *Client) run(ctx context.Context, timeout time.Duration, args []string, onOutput func([]byte)) error {
	return c.creds.WithPassword(func(password []byte) error {
		full := append([]string{}, args...)
		full = append(full, "--non-interactive")
		if user := c.creds.User(); user != "" {
			full = append(full, "--username", user)
		}
		var stdin []byte
		if password != nil {
			full = append(full, "--password-from-stdin", "--no-auth-cache")
			stdin = make([]byte, 0, len(password)+1)
			stdin = append(stdin, password...)
			stdin = append(stdin, '\n')
			defer memguard.WipeBytes(stdin)
		}
		out, err := scm.Run(ctx, scm.Command{
			Name:           c.binary,
			Args:           full,
			Dir:            c.workDir,
			Timeout:        timeout,
			MaxOutputBytes: c.maxOutput,
			Stdin:          stdin,
		})
		if err != nil {
			return err
		}
		onOutput(out)
		return nil
	})
}
