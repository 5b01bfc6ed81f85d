// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package activity computes SCM activity measures for a project.
//
// # Description
//
// One run (Sensor.Analyse) checks the repository URL, refuses to run on a
// dirty working copy, classifies every project file against the
// fingerprint a previous run stored, blames only the files that changed
// or are new, and writes the resulting measures.
//
// Files flow through the stages as values: AnalyzedFile into the
// ChangeDetector, into the BlameRetriever pool, and out as BlameResult.
// Measures are written serially on the calling goroutine after every
// blame finished.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/scmactivity/services/scmactivity/fingerprint"
	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

// Hasher computes the content fingerprint of a file on disk.
type Hasher interface {
	Fingerprint(path string) (fingerprint.Fingerprint, error)
}

// RunRecorder persists run reports.
type RunRecorder interface {
	SaveRun(ctx context.Context, report *RunReport) error
}

// SensorConfig holds the run settings.
type SensorConfig struct {
	Enabled bool

	// URL is the resolved "scm:<kind>:<location>" repository URL.
	URL string

	IgnoreLocalModifications bool

	Threads            int
	BlameTimeout       time.Duration
	MaxBlamesPerSecond float64

	// Open is passed to the provider factory.
	Open scm.OpenOptions
}

// SensorDeps are the collaborators of a Sensor. Registry, FileSystem,
// Resolver, Baseline and Sink are required.
type SensorDeps struct {
	Registry   *scm.Registry
	FileSystem FileSystem
	Resolver   ResourceResolver
	Baseline   BaselineStore
	Sink       MeasureSink

	// Runs, if set, receives the report of every completed run.
	Runs RunRecorder

	// Hasher defaults to fingerprint.NewHasher().
	Hasher Hasher

	// OnBlameResult is forwarded to the retriever for progress reporting.
	OnBlameResult func(BlameResult)

	Logger   *slog.Logger
	NewRunID func() string
	Now      func() time.Time
}

// Sensor runs SCM activity analysis for one project.
//
// # Thread Safety
//
// Analyse may be called from several goroutines; only one run executes at
// a time and overlapping calls get ErrRunInProgress.
type Sensor struct {
	cfg      SensorConfig
	deps     SensorDeps
	detector ChangeDetector
	logger   *slog.Logger
	running  atomic.Bool
}

// NewSensor validates deps and builds a Sensor.
func NewSensor(cfg SensorConfig, deps SensorDeps) (*Sensor, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.New("sensor: registry is required")
	case deps.FileSystem == nil:
		return nil, errors.New("sensor: file system is required")
	case deps.Resolver == nil:
		return nil, errors.New("sensor: resource resolver is required")
	case deps.Baseline == nil:
		return nil, errors.New("sensor: baseline store is required")
	case deps.Sink == nil:
		return nil, errors.New("sensor: measure sink is required")
	}
	if deps.Hasher == nil {
		deps.Hasher = fingerprint.NewHasher()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Sensor{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With(slog.String("component", "scm_activity_sensor")),
	}, nil
}

// ShouldExecute reports whether the sensor is enabled and has a URL.
func (s *Sensor) ShouldExecute() bool {
	return s.cfg.Enabled && s.cfg.URL != ""
}

// GeneratedMetrics returns the metrics a run writes.
func (s *Sensor) GeneratedMetrics() []string {
	return append([]string(nil), GeneratedMetrics...)
}

func (s *Sensor) String() string {
	return "ScmActivitySensor"
}

// URL returns the configured repository URL.
func (s *Sensor) URL() string {
	return s.cfg.URL
}

// Analyse performs one run.
//
// # Description
//
// Fatal, in order: the sensor is disabled, the URL is invalid or
// unsupported, the provider cannot be opened, the working copy has local
// modifications (or cannot be checked), the project cannot be
// enumerated. Nothing is blamed or written when any of these fail.
//
// Per-file problems are not fatal: unresolvable files and fingerprint
// errors skip the file, baseline read errors classify it Unknown, failed
// blames and sink errors are logged and counted.
//
// # Outputs
//
//   - *RunReport: Counts for the run. Nil on a fatal error.
//   - error: ErrDisabled, ErrRunInProgress, a wrapped scm URL error,
//     ErrLocalModifications, ErrLocalModificationCheck, or an
//     enumeration error.
func (s *Sensor) Analyse(ctx context.Context) (*RunReport, error) {
	if !s.ShouldExecute() {
		runsTotal.WithLabelValues("disabled").Inc()
		return nil, ErrDisabled
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	report := &RunReport{RunID: s.deps.NewRunID(), StartedAt: s.deps.Now()}
	ctx = WithRunID(ctx, report.RunID)
	logger := s.logger.With(slog.String("run_id", report.RunID))

	ctx, span := tracer.Start(ctx, "activity.Sensor.Analyse")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", report.RunID))

	err := s.analyse(ctx, report, logger)
	report.FinishedAt = s.deps.Now()
	runDuration.Observe(report.Duration().Seconds())
	if err != nil {
		runsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("scm activity run failed", slog.String("error", err.Error()))
		return nil, err
	}
	runsTotal.WithLabelValues("success").Inc()

	span.SetAttributes(
		attribute.Int("run.files", report.Files),
		attribute.Int("run.blamed", report.Blamed),
		attribute.Int("run.blame_failed", report.BlameFailed),
	)
	logger.Info("scm activity run complete",
		slog.String("provider", report.Provider),
		slog.Int("files", report.Files),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("changed", report.Changed),
		slog.Int("new", report.New),
		slog.Int("blamed", report.Blamed),
		slog.Int("blame_failed", report.BlameFailed),
		slog.Int("updates", report.UpdatesApplied),
		slog.Duration("duration", report.Duration()))

	if s.deps.Runs != nil {
		if err := s.deps.Runs.SaveRun(ctx, report); err != nil {
			logger.Warn("failed to record run report", slog.String("error", err.Error()))
		}
	}
	return report, nil
}

// classified pairs a file with its detection.
type classified struct {
	file      AnalyzedFile
	detection Detection
}

func (s *Sensor) analyse(ctx context.Context, report *RunReport, logger *slog.Logger) error {
	u, err := scm.CheckURL(s.cfg.URL, s.deps.Registry)
	if err != nil {
		return err
	}
	provider, err := s.deps.Registry.Open(u, s.cfg.Open)
	if err != nil {
		return err
	}
	report.Provider = provider.Kind()

	guard := NewLocalModificationGuard(provider, s.deps.FileSystem, s.cfg.IgnoreLocalModifications, logger)
	if err := guard.Check(ctx); err != nil {
		return err
	}

	inputs, err := s.deps.FileSystem.InputFiles(ctx)
	if err != nil {
		return fmt.Errorf("enumerate project files: %w", err)
	}
	report.Files = len(inputs)

	files := s.classify(ctx, inputs, report, logger)

	var toBlame []AnalyzedFile
	for _, c := range files {
		if c.detection.NeedsBlame {
			toBlame = append(toBlame, c.file)
		}
	}

	retriever := NewBlameRetriever(provider, RetrieverOptions{
		Threads:            s.threads(),
		BlameTimeout:       s.cfg.BlameTimeout,
		MaxBlamesPerSecond: s.cfg.MaxBlamesPerSecond,
		OnResult:           s.deps.OnBlameResult,
		Logger:             logger,
	})
	logger.Debug("blaming files",
		slog.Int("count", len(toBlame)),
		slog.Int("threads", retriever.Threads()))
	results := retriever.RetrieveAll(ctx, toBlame)

	s.applyUpdates(ctx, files, results, report, logger)
	return nil
}

func (s *Sensor) threads() int {
	if s.cfg.Threads == 0 {
		return DefaultThreads
	}
	return s.cfg.Threads
}

// classify fingerprints each file and compares it with its baseline.
// The result is sorted by path.
func (s *Sensor) classify(ctx context.Context, inputs []InputFile, report *RunReport, logger *slog.Logger) []classified {
	out := make([]classified, 0, len(inputs))
	for _, in := range inputs {
		res, ok := s.deps.Resolver.ToResource(in)
		if !ok {
			logger.Debug("skipping file without resource", slog.String("path", in.Path))
			filesSkipped.WithLabelValues("unresolved").Inc()
			report.Skipped++
			continue
		}
		fp, err := s.deps.Hasher.Fingerprint(in.AbsPath)
		if err != nil {
			logger.Warn("failed to fingerprint file",
				slog.String("path", in.Path),
				slog.String("error", err.Error()))
			filesSkipped.WithLabelValues("fingerprint").Inc()
			report.Skipped++
			continue
		}
		file := AnalyzedFile{Path: in.Path, AbsPath: in.AbsPath, Fingerprint: fp, Resource: res}

		var d Detection
		baseline, found, err := s.deps.Baseline.FingerprintOf(ctx, res)
		if err != nil {
			logger.Warn("failed to read baseline, re-blaming file",
				slog.String("path", in.Path),
				slog.String("error", err.Error()))
			d = unknownDetection()
		} else {
			d = s.detector.Detect(file, baseline, found)
		}
		filesClassified.WithLabelValues(d.Classification.String()).Inc()
		report.count(d.Classification)
		out = append(out, classified{file: file, detection: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].file.Path < out[j].file.Path })
	return out
}

// applyUpdates writes measures serially, in path order.
func (s *Sensor) applyUpdates(ctx context.Context, files []classified, results map[string]BlameResult, report *RunReport, logger *slog.Logger) {
	for _, c := range files {
		if !c.detection.NeedsBlame {
			continue
		}
		result, ok := results[c.file.Path]
		if !ok {
			continue
		}
		if !result.OK() {
			report.BlameFailed++
			logger.Warn("failed to retrieve blame, skipping file",
				slog.String("path", c.file.Path),
				slog.String("error", result.Err.Error()))
			continue
		}
		report.Blamed++

		update, ok := BuildUpdate(c.file, c.detection, &result)
		if !ok {
			continue
		}
		if err := update.Apply(ctx, s.deps.Sink); err != nil {
			report.UpdatesFailed++
			measureUpdates.WithLabelValues("failed").Inc()
			logger.Warn("failed to save measures",
				slog.String("path", c.file.Path),
				slog.String("error", err.Error()))
			continue
		}
		report.UpdatesApplied++
		measureUpdates.WithLabelValues("applied").Inc()
	}
}
