// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/AleutianAI/scmactivity/services/scmactivity/fingerprint"
	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

// Metric keys written by the measure pipeline.
const (
	MetricSCMHash        = "scm_hash"
	MetricLastCommitDate = "last_commit_date"
	MetricLastCommitter  = "last_committer"
	MetricBlameByLine    = "blame_by_line"
)

// GeneratedMetrics lists every metric a run can write, in write order.
var GeneratedMetrics = []string{
	MetricSCMHash,
	MetricLastCommitDate,
	MetricLastCommitter,
	MetricBlameByLine,
}

// Resource qualifiers.
const (
	QualifierFile     = "FIL"
	QualifierUnitTest = "UTS"
)

// Resource identifies a file in the measurement store.
type Resource struct {
	// Key is the project-relative, slash separated path.
	Key string `json:"key"`

	// Qualifier is QualifierFile for main code, QualifierUnitTest for tests.
	Qualifier string `json:"qualifier"`
}

func (r Resource) String() string {
	return r.Qualifier + ":" + r.Key
}

// FileType distinguishes main from test files.
type FileType int

const (
	FileTypeMain FileType = iota
	FileTypeTest
)

func (t FileType) String() string {
	if t == FileTypeTest {
		return "test"
	}
	return "main"
}

// InputFile is a file enumerated by the host project.
type InputFile struct {
	// Path is relative to the project base dir, slash separated.
	Path string

	// AbsPath is the absolute on-disk location.
	AbsPath string

	Type FileType
}

// AnalyzedFile is a file taking part in one run.
//
// # Thread Safety
//
// Immutable once built; safe to share across blame workers.
type AnalyzedFile struct {
	Path        string
	AbsPath     string
	Fingerprint fingerprint.Fingerprint
	Resource    Resource
}

// Classification is the outcome of comparing a file against its baseline.
type Classification int

const (
	// Unchanged means the content fingerprint equals the baseline.
	Unchanged Classification = iota

	// Changed means a baseline exists and differs.
	Changed

	// New means no baseline exists.
	New

	// Unknown means the baseline could not be read. Treated like New.
	Unknown
)

func (c Classification) String() string {
	switch c {
	case Unchanged:
		return "UNCHANGED"
	case Changed:
		return "CHANGED"
	case New:
		return "NEW"
	case Unknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("Classification(%d)", int(c))
	}
}

// Detection is the change detector's verdict for one file.
type Detection struct {
	Classification Classification
	NeedsBlame     bool
}

// BlameResult is the outcome of blaming one file: Lines on success, Err on
// failure. Exactly one of the two is meaningful.
type BlameResult struct {
	Path  string
	Lines []scm.BlameLine
	Err   error
}

// OK reports whether the blame succeeded.
func (r BlameResult) OK() bool {
	return r.Err == nil
}

// Measure is one metric value for a resource.
type Measure struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

// RunReport summarises one Analyse run.
type RunReport struct {
	RunID      string    `json:"run_id"`
	Provider   string    `json:"provider"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Files     int `json:"files"`
	Skipped   int `json:"skipped"`
	Unchanged int `json:"unchanged"`
	Changed   int `json:"changed"`
	New       int `json:"new"`
	Unknown   int `json:"unknown"`

	Blamed      int `json:"blamed"`
	BlameFailed int `json:"blame_failed"`

	UpdatesApplied int `json:"updates_applied"`
	UpdatesFailed  int `json:"updates_failed"`
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunReport) count(c Classification) {
	switch c {
	case Unchanged:
		r.Unchanged++
	case Changed:
		r.Changed++
	case New:
		r.New++
	case Unknown:
		r.Unknown++
	}
}

// BaselineStore returns the fingerprint a previous run recorded for a
// resource.
type BaselineStore interface {
	// FingerprintOf returns (fp, true, nil) when a baseline exists and
	// ("", false, nil) when it does not. An error means the lookup failed.
	FingerprintOf(ctx context.Context, res Resource) (fingerprint.Fingerprint, bool, error)
}

// MeasureSink persists measures for a resource.
type MeasureSink interface {
	SaveMeasures(ctx context.Context, res Resource, measures []Measure) error
}

// ResourceResolver maps an input file to its store resource. ok=false
// means the host does not know the file and it must be skipped.
type ResourceResolver interface {
	ToResource(f InputFile) (Resource, bool)
}

// FileSystem enumerates the project being analysed.
type FileSystem interface {
	// SourceDirs and TestDirs return absolute directories.
	SourceDirs() []string
	TestDirs() []string

	// InputFiles returns main files followed by test files.
	InputFiles(ctx context.Context) ([]InputFile, error)
}

type runIDKey struct{}

// WithRunID attaches a run id to ctx so sinks can stamp their writes.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run id set by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
