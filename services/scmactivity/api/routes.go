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
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the /v1/scm endpoints on rg (typically /v1).
//
// Endpoints:
//
//	GET  /v1/scm/health
//	GET  /v1/scm/measures?resource=<key>
//	GET  /v1/scm/resources
//	GET  /v1/scm/runs/latest
//	POST /v1/scm/analyze
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	scm := rg.Group("/scm")
	{
		scm.GET("/health", h.HandleHealth)
		scm.GET("/measures", h.HandleMeasures)
		scm.GET("/resources", h.HandleResources)
		scm.GET("/runs/latest", h.HandleLatestRun)
		scm.POST("/analyze", h.HandleAnalyze)
	}
}

// NewRouter builds the gin engine with tracing, recovery, the /v1 routes
// and, when metrics is non-nil, GET /metrics.
func NewRouter(serviceName string, h *Handlers, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	RegisterRoutes(router.Group("/v1"), h)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return router
}
