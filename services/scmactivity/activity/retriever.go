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
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
)

// DefaultThreads is the blame parallelism when none is configured.
const DefaultThreads = 4

// maxBurst caps the limiter bucket. Above it the limiter is effectively
// unbounded anyway, and larger float rates must not overflow int.
const maxBurst = 1000

// RetrieverOptions configures a BlameRetriever.
type RetrieverOptions struct {
	// Threads bounds concurrent blame calls. Values < 1 mean 1.
	Threads int

	// BlameTimeout bounds each blame call. Zero means no timeout.
	BlameTimeout time.Duration

	// MaxBlamesPerSecond throttles calls to the backend. Zero means
	// unlimited.
	MaxBlamesPerSecond float64

	// OnResult, if set, is called from worker goroutines as each result
	// completes. It must be safe for concurrent use.
	OnResult func(BlameResult)

	Logger *slog.Logger
}

// BlameRetriever fans blame calls out over a bounded worker pool.
//
// # Description
//
// A failing or panicking blame becomes a failed BlameResult for that file
// only; siblings always run to completion. RetrieveAll returns after every
// task finished.
//
// # Thread Safety
//
// Safe for concurrent use; each RetrieveAll call has its own pool.
type BlameRetriever struct {
	provider scm.Provider
	threads  int
	timeout  time.Duration
	limiter  *rate.Limiter
	onResult func(BlameResult)
	logger   *slog.Logger
}

// NewBlameRetriever creates a retriever for provider.
func NewBlameRetriever(provider scm.Provider, opts RetrieverOptions) *BlameRetriever {
	threads := opts.Threads
	if threads < 1 {
		threads = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &BlameRetriever{
		provider: provider,
		threads:  threads,
		timeout:  opts.BlameTimeout,
		onResult: opts.OnResult,
		logger:   logger,
	}
	if opts.MaxBlamesPerSecond > 0 {
		burst := maxBurst
		if opts.MaxBlamesPerSecond < maxBurst {
			burst = max(int(opts.MaxBlamesPerSecond), 1)
		}
		r.limiter = rate.NewLimiter(rate.Limit(opts.MaxBlamesPerSecond), burst)
	}
	return r
}

// Threads returns the effective pool size.
func (r *BlameRetriever) Threads() int {
	return r.threads
}

// RetrieveAll blames every file and waits for all of them.
//
// # Inputs
//
//   - ctx: Cancellation turns pending and running calls into failed
//     results; it never drops an entry.
//   - files: Files to blame. Duplicate paths are blamed once.
//
// # Outputs
//
//   - map[string]BlameResult: Exactly one entry per distinct file path.
func (r *BlameRetriever) RetrieveAll(ctx context.Context, files []AnalyzedFile) map[string]BlameResult {
	ctx, span := tracer.Start(ctx, "activity.BlameRetriever.RetrieveAll")
	defer span.End()

	results := make(map[string]BlameResult, len(files))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(r.threads)

	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, dup := seen[f.Path]; dup {
			continue
		}
		seen[f.Path] = struct{}{}

		file := f
		g.Go(func() error {
			res := r.blameOne(ctx, file)
			mu.Lock()
			results[file.Path] = res
			mu.Unlock()
			r.notify(res)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, res := range results {
		if !res.OK() {
			failed++
		}
	}
	span.SetAttributes(
		attribute.Int("blame.files", len(results)),
		attribute.Int("blame.failed", failed),
		attribute.Int("blame.threads", r.threads),
	)
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d blame calls failed", failed))
	}
	return results
}

// notify hands res to the OnResult hook. A panicking hook is logged and
// never takes the pool down.
func (r *BlameRetriever) notify(res BlameResult) {
	if r.onResult == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("blame result hook panicked",
				slog.String("path", res.Path),
				slog.Any("panic", p))
		}
	}()
	r.onResult(res)
}

func (r *BlameRetriever) blameOne(ctx context.Context, file AnalyzedFile) (res BlameResult) {
	res.Path = file.Path
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res = BlameResult{Path: file.Path, Err: fmt.Errorf("blame %s panicked: %v", file.Path, p)}
		}
		blameDuration.Observe(time.Since(start).Seconds())
		if res.OK() {
			blameTotal.WithLabelValues("success").Inc()
		} else {
			blameTotal.WithLabelValues("failure").Inc()
			r.logger.Debug("blame failed",
				slog.String("path", file.Path),
				slog.String("error", res.Err.Error()))
		}
	}()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			res.Err = fmt.Errorf("blame %s: %w", file.Path, err)
			return res
		}
	}
	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("blame %s: %w", file.Path, err)
		return res
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	callCtx, span := tracer.Start(callCtx, "activity.BlameRetriever.blame",
		trace.WithAttributes(attribute.String("file.path", file.Path)))
	defer span.End()

	target := file.AbsPath
	if target == "" {
		target = file.Path
	}
	lines, err := r.provider.Blame(callCtx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.Err = err
		return res
	}
	span.SetAttributes(attribute.Int("blame.lines", len(lines)))
	res.Lines = lines
	return res
}
