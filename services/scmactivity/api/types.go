// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"time"

	"github.com/AleutianAI/scmactivity/services/scmactivity/activity"
	"github.com/AleutianAI/scmactivity/services/scmactivity/store"
)

// Analyzer runs one analysis.
type Analyzer interface {
	Analyse(ctx context.Context) (*activity.RunReport, error)
}

// MeasureReader reads stored measures and run reports.
type MeasureReader interface {
	Measures(ctx context.Context, resource string) ([]store.Record, error)
	Resources(ctx context.Context) ([]string, error)
	LatestRun(ctx context.Context) (*activity.RunReport, error)
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /v1/scm/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MeasuresResponse is returned by GET /v1/scm/measures.
type MeasuresResponse struct {
	Resource string         `json:"resource"`
	Measures []store.Record `json:"measures"`
}

// ResourcesResponse is returned by GET /v1/scm/resources.
type ResourcesResponse struct {
	Resources []string `json:"resources"`
	Count     int      `json:"count"`
}
