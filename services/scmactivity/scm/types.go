// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scm defines the version-control provider contract used by the
// SCM activity sensor.
//
// # Description
//
// The sensor only needs two operations from a version-control system:
// a working-copy status query (to refuse running on uncommitted changes)
// and a per-file blame. Concrete backends live in sub-packages (git, svn)
// and are selected through a Registry keyed by the provider kind of an
// SCM URL ("scm:git:...", "scm:svn:...").
//
// # Thread Safety
//
// Provider implementations must be safe for concurrent use. The blame
// pool invokes Blame from several goroutines without external locking.
package scm

import (
	"context"
	"time"
)

// BlameLine attributes one line of a file to the revision that last
// touched it.
type BlameLine struct {
	// Line is the 1-based line number in the current file.
	Line int `json:"line"`

	// Revision is the commit id (git sha, svn revision number).
	Revision string `json:"revision"`

	// Author is the author identity as reported by the backend
	// (email for git, login for svn).
	Author string `json:"author"`

	// Date is the commit (author) date of Revision.
	Date time.Time `json:"date"`
}

// LocalChangeReport is the outcome of a working-copy status query.
//
// # Fields
//
//   - Success: False when the backend ran but reported a failure.
//   - ChangedFiles: Paths with uncommitted changes, as reported by the backend.
//   - ProviderMessage: Backend diagnostic, set when Success is false.
type LocalChangeReport struct {
	Success         bool
	ChangedFiles    []string
	ProviderMessage string
}

// HasChanges reports whether any changed file was reported.
func (r *LocalChangeReport) HasChanges() bool {
	return r != nil && len(r.ChangedFiles) > 0
}

// Provider is the capability every SCM backend exposes to the sensor.
type Provider interface {
	// Kind returns the provider kind ("git", "svn").
	Kind() string

	// Status lists uncommitted changes under dir.
	//
	// An error means the query could not be performed at all; a report
	// with Success=false means the backend ran and refused.
	Status(ctx context.Context, dir string) (*LocalChangeReport, error)

	// Blame returns per-line attribution for path, ordered by line.
	Blame(ctx context.Context, path string) ([]BlameLine, error)
}

// OpenOptions carries what a backend factory needs to build a Provider.
type OpenOptions struct {
	// WorkDir is the working copy root. Relative paths passed to Status
	// and Blame are resolved against it.
	WorkDir string

	// Credentials are optional; backends that do not authenticate ignore them.
	Credentials *Credentials

	// CommandTimeout bounds status queries. Zero means the backend default.
	CommandTimeout time.Duration

	// MaxOutputBytes caps the output read from a single backend command.
	// Zero means the backend default.
	MaxOutputBytes int
}
