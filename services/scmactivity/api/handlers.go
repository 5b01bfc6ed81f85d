// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes stored SCM activity over HTTP with gin.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/scmactivity/pkg/validation"
	"github.com/AleutianAI/scmactivity/services/scmactivity/activity"
	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
	"github.com/AleutianAI/scmactivity/services/scmactivity/store"
)

const requestIDHeader = "X-Request-ID"

// Handlers serves the /v1/scm endpoints.
//
// # Thread Safety
//
// Safe for concurrent use if the analyzer and reader are.
type Handlers struct {
	analyzer Analyzer
	reader   MeasureReader
	version  string
	url      string
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandlers creates handlers. analyzer may be nil, in which case
// POST /v1/scm/analyze answers 503.
func NewHandlers(analyzer Analyzer, reader MeasureReader, version, url string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		analyzer: analyzer,
		reader:   reader,
		version:  version,
		url:      url,
		logger:   logger,
		now:      time.Now,
	}
}

func requestID(c *gin.Context) string {
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Header(requestIDHeader, id)
	return id
}

// HandleHealth handles GET /v1/scm/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		URL:       h.url,
		Timestamp: h.now().UTC(),
	})
}

// HandleMeasures handles GET /v1/scm/measures?resource=<key>.
//
// Response:
//
//	200 OK: MeasuresResponse
//	400 Bad Request: missing resource
//	404 Not Found: no measures stored for the resource
func (h *Handlers) HandleMeasures(c *gin.Context) {
	logger := h.logger.With("request_id", requestID(c), "handler", "HandleMeasures")

	if c.Query("resource") == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "resource query parameter is required", Code: "INVALID_REQUEST"})
		return
	}
	resource, err := validation.SanitizeResourceKey(c.Query("resource"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	records, err := h.reader.Measures(c.Request.Context(), resource)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no measures for " + resource, Code: "NOT_FOUND"})
			return
		}
		logger.Error("failed to read measures", "resource", resource, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "STORE_ERROR"})
		return
	}
	c.JSON(http.StatusOK, MeasuresResponse{Resource: resource, Measures: records})
}

// HandleResources handles GET /v1/scm/resources.
func (h *Handlers) HandleResources(c *gin.Context) {
	keys, err := h.reader.Resources(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list resources", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "STORE_ERROR"})
		return
	}
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, ResourcesResponse{Resources: keys, Count: len(keys)})
}

// HandleLatestRun handles GET /v1/scm/runs/latest.
func (h *Handlers) HandleLatestRun(c *gin.Context) {
	report, err := h.reader.LatestRun(c.Request.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "no run recorded yet", Code: "NOT_FOUND"})
			return
		}
		h.logger.Error("failed to read latest run", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "STORE_ERROR"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleAnalyze handles POST /v1/scm/analyze.
//
// The run is detached from the request's cancellation so a client
// disconnect does not turn every pending blame into a failure.
//
// Response:
//
//	200 OK: activity.RunReport
//	400 Bad Request: invalid or unsupported repository URL
//	409 Conflict: run in progress, or local modifications
//	412 Precondition Failed: analysis disabled
//	500 Internal Server Error: anything else
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	logger := h.logger.With("request_id", requestID(c), "handler", "HandleAnalyze")
	if h.analyzer == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "analysis is not available", Code: "UNAVAILABLE"})
		return
	}

	report, err := h.analyzer.Analyse(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		status, code := analyzeErrorStatus(err)
		logger.Warn("analysis failed", "error", err, "code", code)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}
	logger.Info("analysis complete", "run_id", report.RunID, "blamed", report.Blamed)
	c.JSON(http.StatusOK, report)
}

func analyzeErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, activity.ErrRunInProgress):
		return http.StatusConflict, "RUN_IN_PROGRESS"
	case errors.Is(err, activity.ErrLocalModifications):
		return http.StatusConflict, "LOCAL_MODIFICATIONS"
	case errors.Is(err, activity.ErrDisabled):
		return http.StatusPreconditionFailed, "DISABLED"
	case errors.Is(err, scm.ErrBlankURL), errors.Is(err, scm.ErrInvalidURL), errors.Is(err, scm.ErrUnsupportedProvider):
		return http.StatusBadRequest, "INVALID_URL"
	case errors.Is(err, activity.ErrLocalModificationCheck):
		return http.StatusInternalServerError, "STATUS_CHECK_FAILED"
	default:
		return http.StatusInternalServerError, "ANALYSIS_FAILED"
	}
}
