// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/scmactivity/pkg/logging"
	"github.com/AleutianAI/scmactivity/services/scmactivity/activity"
	"github.com/AleutianAI/scmactivity/services/scmactivity/config"
	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
	"github.com/AleutianAI/scmactivity/services/scmactivity/scm/git"
	"github.com/AleutianAI/scmactivity/services/scmactivity/scm/svn"
	"github.com/AleutianAI/scmactivity/services/scmactivity/store"
	"github.com/AleutianAI/scmactivity/services/scmactivity/telemetry"
	"github.com/AleutianAI/scmactivity/services/scmactivity/workspace"
)

// loadConfig reads the config file, then the environment, then any flag
// the user actually set, and validates the result.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadFile(flags.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)

	if flags.baseDir != "" {
		cfg.Project.BaseDir = flags.baseDir
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.jsonLogs {
		cfg.Logging.JSON = true
	}
	f := cmd.Flags()
	if f.Changed("threads") {
		cfg.ThreadCount, _ = f.GetInt("threads")
	}
	if f.Changed("ignore-local-modifications") {
		cfg.IgnoreLocalModifications, _ = f.GetBool("ignore-local-modifications")
	}
	if f.Changed("addr") {
		cfg.Server.Addr, _ = f.GetString("addr")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app holds everything a command needs. Close releases it in reverse
// order of construction.
type app struct {
	cfg     *config.Config
	logs    *logging.Logger
	logger  *slog.Logger
	store   *store.Store
	project *workspace.Project
	sensor  *activity.Sensor

	shutdownTelemetry func(context.Context) error
}

// newLogger builds the process logger. JSON is chosen whenever stderr is
// not a terminal.
func newLogger(cfg *config.Config, stderr io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		Dir:     cfg.Logging.Dir,
		Service: cfg.Telemetry.ServiceName,
		JSON:    cfg.Logging.JSON || !isTerminal(stderr),
		Output:  stderr,
	})
}

// newApp is the composition root.
//
// # Description
//
// Builds logging, telemetry, the measure store, the project file system,
// the provider registry and the sensor. withSensor=false stops after the
// store, which is all read-only commands need.
//
// # Outputs
//
//   - *app: Call Close when done.
//   - error: Non-nil if any component cannot be built. Components built
//     before the failure are released.
func newApp(ctx context.Context, cfg *config.Config, stderr io.Writer, withSensor bool) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	if a.logs, err = newLogger(cfg, stderr); err != nil {
		return a, fmt.Errorf("init logging: %w", err)
	}
	a.logger = a.logs.Slog()
	slog.SetDefault(a.logger)

	a.shutdownTelemetry, err = telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		TraceExporter:  cfg.Telemetry.TraceExporter,
		MetricExporter: cfg.Telemetry.MetricExporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   true,
		Output:         stderr,
	})
	if err != nil {
		return a, err
	}

	opts := store.DefaultOptions(cfg.Store.Path)
	if cfg.Store.InMemory {
		opts = store.InMemoryOptions()
	}
	opts.Logger = a.logger.With("component", "store")
	if a.store, err = store.Open(opts); err != nil {
		return a, err
	}

	if a.project, err = workspace.New(workspace.Settings{
		BaseDir:    cfg.Project.BaseDir,
		SourceDirs: cfg.Project.SourceDirs,
		TestDirs:   cfg.Project.TestDirs,
		Language:   cfg.Project.Language,
		Exclusions: cfg.Project.Exclusions,
	}); err != nil {
		return a, err
	}
	if !withSensor {
		return a, nil
	}

	url := cfg.ResolvedURL()
	creds := cfg.Credentials()
	a.logger.Debug("configuration loaded",
		"url", url,
		"base_dir", a.project.BaseDir(),
		"threads", cfg.ThreadCount,
		"user", creds.User(),
		"password_set", creds.HasPassword())

	a.sensor, err = activity.NewSensor(activity.SensorConfig{
		Enabled:                  cfg.Enabled,
		URL:                      url,
		IgnoreLocalModifications: cfg.IgnoreLocalModifications,
		Threads:                  cfg.ThreadCount,
		BlameTimeout:             cfg.BlameTimeout,
		MaxBlamesPerSecond:       cfg.MaxBlamesPerSecond,
		Open: scm.OpenOptions{
			WorkDir:        a.project.BaseDir(),
			Credentials:    creds,
			CommandTimeout: cfg.CommandTimeout,
		},
	}, activity.SensorDeps{
		Registry:   newRegistry(),
		FileSystem: a.project,
		Resolver:   a.project,
		Baseline:   a.store,
		Sink:       a.store,
		Runs:       a.store,
		Logger:     a.logger,
		NewRunID:   uuid.NewString,
		Now:        time.Now,
	})
	return a, err
}

// newRegistry registers every SCM backend this binary ships.
func newRegistry() *scm.Registry {
	r := scm.NewRegistry()
	r.Register(scm.KindGit, git.New)
	r.Register(scm.KindSvn, svn.New)
	return r
}

// Close releases the store, telemetry and log file.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.shutdownTelemetry(ctx))
		cancel()
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
