// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists SCM activity measures and run reports in BadgerDB.
//
// The store doubles as the baseline for change detection: the scm_hash
// measure written by one run is the fingerprint the next run compares
// against.
//
// Key layout:
//
//	m/<resource key>\x00<metric>  → measureRecord (JSON)
//	r/<run id>                     → activity.RunReport (JSON)
//	r/latest                       → run id of the most recent report
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Options configures the underlying database.
type Options struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Used by tests and dry runs.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the garbage ratio that triggers a rewrite.
	GCDiscardRatio float64

	// Logger receives badger's internal logs. Nil silences them.
	Logger *slog.Logger
}

// DefaultOptions returns durable settings for a database at path.
func DefaultOptions(path string) Options {
	return Options{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryOptions returns settings for a throwaway database.
func InMemoryOptions() Options {
	return Options{InMemory: true}
}

// slogAdapter routes badger's logger interface to slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func openBadger(opts Options) (*badger.DB, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("store path is required for a persistent database")
	}

	var bo badger.Options
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", opts.Path, err)
		}
		bo = badger.DefaultOptions(opts.Path)
	}
	bo = bo.WithSyncWrites(opts.SyncWrites).WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bo = bo.WithLogger(&slogAdapter{logger: opts.Logger})
	} else {
		bo = bo.WithLogger(nil)
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// gcLoop runs value log GC on a ticker until stopped.
type gcLoop struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func startGC(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcLoop {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	g := &gcLoop{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go g.run()
	return g
}

func (g *gcLoop) run() {
	defer close(g.doneCh)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			err := g.db.RunValueLogGC(g.ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				g.logger.Warn("store value log GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (g *gcLoop) stop() {
	close(g.stopCh)
	<-g.doneCh
}
