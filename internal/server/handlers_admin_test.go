package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bobmcallan/curio/internal/interfaces"
	"github.com/bobmcallan/curio/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRoutes_NoToken(t *testing.T) {
	engine := &mockEngine{}
	_, handler := newTestServer(t, engine)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/admin/jobs"},
		{http.MethodGet, "/api/admin/jobs/stats"},
		{http.MethodPost, "/api/admin/jobs/reap"},
		{http.MethodPost, "/api/admin/jobs/cleanup"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestAdminRoutes_WrongToken(t *testing.T) {
	engine := &mockEngine{}
	_, handler := newTestServer(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/jobs/stats", nil)
	req.Header.Set("X-Curio-Admin-Token", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeAuthRequired, decodeErrorResponse(t, rec.Body).Code)
}

func TestAdminRoutes_Unconfigured(t *testing.T) {
	engine := &mockEngine{}
	s, _ := newTestServer(t, engine)
	s.config.Auth.AdminTokenHash = ""
	handler := s.buildHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/jobs/stats", nil)
	req.Header.Set("X-Curio-Admin-Token", testAdminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHandleAdminJobs(t *testing.T) {
	engine := &mockEngine{
		listAllFn: func(_ context.Context, filter models.JobFilter) ([]*models.Job, error) {
			assert.Equal(t, models.JobTypeTreeGeneration, filter.Type)
			return []*models.Job{
				sampleJob("job-1", "user-1", models.JobStatusPending),
				sampleJob("job-2", "user-2", models.JobStatusCompleted),
			}, nil
		},
	}
	_, handler := newTestServer(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/jobs?type=tree_generation", nil)
	req.Header.Set("X-Curio-Admin-Token", testAdminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Jobs  []*models.Job `json:"jobs"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestHandleAdminJobStats(t *testing.T) {
	oldest := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	engine := &mockEngine{
		statsFn: func(context.Context) (*models.JobStats, error) {
			return &models.JobStats{Pending: 3, Processing: 1, Completed: 40, Failed: 2, OldestCompletedAt: &oldest}, nil
		},
	}
	_, handler := newTestServer(t, engine)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/jobs/stats", nil)
	req.Header.Set("X-Curio-Admin-Token", testAdminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stats models.JobStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 40, stats.Completed)
	require.NotNil(t, stats.OldestCompletedAt)
	assert.True(t, stats.OldestCompletedAt.Equal(oldest))
}

func TestHandleAdminReap(t *testing.T) {
	engine := &mockEngine{
		reapFn: func(context.Context) (int, error) { return 4, nil },
	}
	_, handler := newTestServer(t, engine)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/jobs/reap", nil)
	req.Header.Set("X-Curio-Admin-Token", testAdminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp["reset"])
}

func TestHandleAdminCleanup_Defaults(t *testing.T) {
	engine := &mockEngine{
		cleanupFn: func(_ context.Context, opts interfaces.CleanupOptions) (*interfaces.CleanupResult, error) {
			// Empty body passes zero-value options through; the engine fills
			// in its configured defaults.
			assert.Zero(t, opts.CompletedMaxAge)
			assert.False(t, opts.DryRun)
			return &interfaces.CleanupResult{CompletedDeleted: 10, FailedDeleted: 2, WindowsDeleted: 5}, nil
		},
	}
	_, handler := newTestServer(t, engine)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/jobs/cleanup", nil)
	req.Header.Set("X-Curio-Admin-Token", testAdminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result interfaces.CleanupResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 10, result.CompletedDeleted)
	assert.Equal(t, 5, result.WindowsDeleted)
}

func TestHandleAdminCleanup_Options(t *testing.T) {
	engine := &mockEngine{
		cleanupFn: func(_ context.Context, opts interfaces.CleanupOptions) (*interfaces.CleanupResult, error) {
			assert.Equal(t, 48*time.Hour, opts.CompletedMaxAge)
			assert.Equal(t, 500, opts.BatchSize)
			assert.True(t, opts.DryRun)
			return &interfaces.CleanupResult{DryRun: true}, nil
		},
	}
	_, handler := newTestServer(t, engine)

	body := jsonBody(t, map[string]interface{}{
		"completed_max_age": "48h",
		"batch_size":        500,
		"dry_run":           true,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/jobs/cleanup", body)
	req.Header.Set("X-Curio-Admin-Token", testAdminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHandleAdminCleanup_BadDuration(t *testing.T) {
	engine := &mockEngine{}
	_, handler := newTestServer(t, engine)

	body := jsonBody(t, map[string]interface{}{"completed_max_age": "yesterday"})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/jobs/cleanup", body)
	req.Header.Set("X-Curio-Admin-Token", testAdminToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidationError, decodeErrorResponse(t, rec.Body).Code)
}
