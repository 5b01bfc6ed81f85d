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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/scmactivity/services/scmactivity/activity"
	"github.com/AleutianAI/scmactivity/services/scmactivity/scm"
	"github.com/AleutianAI/scmactivity/services/scmactivity/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAnalyzer struct {
	report *activity.RunReport
	err    error
	calls  int
	ctxErr error
}

func (a *stubAnalyzer) Analyse(ctx context.Context) (*activity.RunReport, error) {
	a.calls++
	a.ctxErr = ctx.Err()
	return a.report, a.err
}

func setup(t *testing.T, analyzer Analyzer) (*gin.Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(store.InMemoryOptions())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	h := NewHandlers(analyzer, s, "1.2.3", "scm:git:/repo", nil)
	return NewRouter("scmactivity-test", h, nil), s
}

func do(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandleHealth(t *testing.T) {
	router, _ := setup(t, nil)
	rec := do(router, http.MethodGet, "/v1/scm/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "scm:git:/repo", resp.URL)
}

func TestHandleMeasures(t *testing.T) {
	router, s := setup(t, nil)
	ctx := activity.WithRunID(context.Background(), "r1")
	require.NoError(t, s.SaveMeasures(ctx, activity.Resource{Key: "src/A.java", Qualifier: activity.QualifierFile},
		[]activity.Measure{{Metric: activity.MetricLastCommitter, Value: "alice"}}))

	t.Run("found", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/v1/scm/measures?resource=src/A.java")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

		var resp MeasuresResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Measures, 1)
		assert.Equal(t, "alice", resp.Measures[0].Value)
		assert.Equal(t, "r1", resp.Measures[0].RunID)
	})

	t.Run("missing parameter", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/v1/scm/measures")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("normalised key", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/v1/scm/measures?resource=./src//A.java")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("path traversal", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/v1/scm/measures?resource=../etc/passwd")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown resource", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/v1/scm/measures?resource=nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleResources(t *testing.T) {
	router, s := setup(t, nil)

	rec := do(router, http.MethodGet, "/v1/scm/resources")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"resources":[],"count":0}`, rec.Body.String())

	require.NoError(t, s.SaveMeasures(context.Background(), activity.Resource{Key: "b.go"}, []activity.Measure{{Metric: "m", Value: "v"}}))
	rec = do(router, http.MethodGet, "/v1/scm/resources")
	assert.JSONEq(t, `{"resources":["b.go"],"count":1}`, rec.Body.String())
}

func TestHandleLatestRun(t *testing.T) {
	router, s := setup(t, nil)

	rec := do(router, http.MethodGet, "/v1/scm/runs/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, s.SaveRun(context.Background(), &activity.RunReport{RunID: "abc", Blamed: 3}))
	rec = do(router, http.MethodGet, "/v1/scm/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var report activity.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "abc", report.RunID)
	assert.Equal(t, 3, report.Blamed)
}

func TestHandleAnalyze(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		a := &stubAnalyzer{report: &activity.RunReport{RunID: "run-1", Blamed: 2}}
		router, _ := setup(t, a)
		rec := do(router, http.MethodPost, "/v1/scm/analyze")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, a.calls)
		assert.NoError(t, a.ctxErr)
		assert.Contains(t, rec.Body.String(), "run-1")
	})

	t.Run("no analyzer", func(t *testing.T) {
		router, _ := setup(t, nil)
		rec := do(router, http.MethodPost, "/v1/scm/analyze")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	tests := []struct {
		err    error
		status int
		code   string
	}{
		{activity.ErrRunInProgress, http.StatusConflict, "RUN_IN_PROGRESS"},
		{fmt.Errorf("%w: src/A.java", activity.ErrLocalModifications), http.StatusConflict, "LOCAL_MODIFICATIONS"},
		{activity.ErrDisabled, http.StatusPreconditionFailed, "DISABLED"},
		{fmt.Errorf("%w: [cvs]", scm.ErrUnsupportedProvider), http.StatusBadRequest, "INVALID_URL"},
		{fmt.Errorf("%w: BUG", activity.ErrLocalModificationCheck), http.StatusInternalServerError, "STATUS_CHECK_FAILED"},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError, "ANALYSIS_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			router, _ := setup(t, &stubAnalyzer{err: tt.err})
			rec := do(router, http.MethodPost, "/v1/scm/analyze")
			assert.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestNewRouter_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("scmactivity_runs_total 1\n"))
	})
	h := NewHandlers(nil, nil, "v", "", nil)

	rec := do(NewRouter("svc", h, metrics), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scmactivity_runs_total")

	rec = do(NewRouter("svc", h, nil), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
