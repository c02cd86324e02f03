// Package api holds end-to-end tests that run the full HTTP stack against a
// real SurrealDB instance. They are skipped unless CURIO_TEST_DOCKER=true.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/curio/internal/app"
	"github.com/bobmcallan/curio/internal/common"
	"github.com/bobmcallan/curio/internal/models"
	"github.com/bobmcallan/curio/internal/server"
	"github.com/bobmcallan/curio/internal/services/jobengine"
	"github.com/bobmcallan/curio/internal/services/ratelimit"
	surrealstore "github.com/bobmcallan/curio/internal/storage/surrealdb"
	testcommon "github.com/bobmcallan/curio/tests/common"
)

const testJWTSecret = "e2e-test-secret"

// stack is a full in-process deployment: SurrealDB-backed storage, rate
// limiter, job engine, and the HTTP handler. Each test gets its own
// database inside the shared container.
type stack struct {
	t       *testing.T
	handler http.Handler
	engine  *jobengine.Engine
}

func newStack(t *testing.T, mutate func(*common.Config)) *stack {
	t.Helper()

	container := testcommon.StartSurrealDB(t)

	config := common.NewDefaultConfig()
	config.Storage.Address = container.Address()
	config.Storage.Database = databaseName(t)
	config.Auth.JWTSecret = testJWTSecret
	if mutate != nil {
		mutate(config)
	}

	logger := common.NewSilentLogger()
	storage, err := surrealstore.NewManager(logger, config)
	require.NoError(t, err, "connect to SurrealDB")
	t.Cleanup(func() { storage.Close() })

	limiter := ratelimit.NewService(storage.RateWindowStore(), logger, config.Jobs.RateMax, config.Jobs.GetWindowSize())
	registry := jobengine.NewRegistry(config.Jobs.DefaultMaxAttempts)
	engine := jobengine.NewEngine(storage, limiter, registry, logger, jobengine.Config{
		LeaseTimeout:       config.Jobs.GetLeaseTimeout(),
		DefaultMaxAttempts: config.Jobs.DefaultMaxAttempts,
		BackoffBase:        config.Jobs.GetBackoffBase(),
		BackoffMax:         config.Jobs.GetBackoffMax(),
		CompletedRetention: config.Jobs.GetCompletedRetention(),
		FailedRetention:    config.Jobs.GetFailedRetention(),
		WindowRetention:    config.Jobs.GetWindowRetention(),
		GCBatchSize:        config.Jobs.GCBatchSize,
	})
	// Intake only admits types with a registered handler. Tests that care
	// about handler behavior re-register over these no-ops.
	noop := func(ctx context.Context, payload json.RawMessage, job *models.Job) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	}
	for _, jobType := range []string{
		models.JobTypeFlashcardGeneration,
		models.JobTypeDistractorGeneration,
		models.JobTypeTreeGeneration,
	} {
		registry.Register(jobType, noop)
	}

	engine.Start()
	t.Cleanup(engine.Stop)

	a := &app.App{
		Config:      config,
		Logger:      logger,
		Storage:     storage,
		Engine:      engine,
		StartupTime: time.Now(),
	}
	srv := server.NewServer(a)

	return &stack{t: t, handler: srv.Handler(), engine: engine}
}

// databaseName derives a SurrealDB database name from the test name so
// parallel tests in the shared container stay isolated.
func databaseName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, name)
	return "test_" + name
}

func authToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func buildRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// do issues a request against the in-process handler. A non-empty token is
// sent as a bearer credential.
func (s *stack) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()

	req := buildRequest(s.t, method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) *models.Job {
	t.Helper()
	var job models.Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
	return &job
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) server.ErrorResponse {
	t.Helper()
	var resp server.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// awaitStatus polls GET /api/jobs/{id} until the job reaches the wanted
// status. Polling is what drives dispatch, so this doubles as the worker.
func (s *stack) awaitStatus(token, id, want string, deadline time.Duration) *models.Job {
	s.t.Helper()

	timeout := time.After(deadline)
	for {
		rec := s.do(http.MethodGet, "/api/jobs/"+id, token, nil)
		require.Equal(s.t, http.StatusOK, rec.Code, "status poll failed: %s", rec.Body.String())
		job := decodeJob(s.t, rec)
		if job.Status == want {
			return job
		}
		select {
		case <-timeout:
			s.t.Fatalf("job %s stuck in %q waiting for %q", id, job.Status, want)
			return nil
		case <-time.After(50 * time.Millisecond):
		}
	}
}
