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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("scmactivity.activity")

var (
	// filesClassified counts files by change classification.
	filesClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scmactivity_files_classified_total",
		Help: "Files classified against their baseline, by classification",
	}, []string{"classification"})

	// filesSkipped counts files dropped before classification.
	filesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scmactivity_files_skipped_total",
		Help: "Files skipped before classification, by reason",
	}, []string{"reason"})

	// blameTotal counts blame calls by result.
	blameTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scmactivity_blame_total",
		Help: "Blame calls by result",
	}, []string{"result"})

	// blameDuration tracks per-file blame latency.
	blameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scmactivity_blame_duration_seconds",
		Help:    "Per-file blame duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	})

	// measureUpdates counts measure writes by result.
	measureUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scmactivity_measure_updates_total",
		Help: "Measure updates by result",
	}, []string{"result"})

	// runsTotal counts Analyse runs by outcome.
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scmactivity_runs_total",
		Help: "Analysis runs by outcome",
	}, []string{"outcome"})

	// runDuration tracks whole-run latency.
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scmactivity_run_duration_seconds",
		Help:    "Analysis run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
