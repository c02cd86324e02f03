package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/bobmcallan/curio/internal/common"
	"github.com/bobmcallan/curio/internal/interfaces"
	"github.com/bobmcallan/curio/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testJWTSecret  = "test-jwt-secret"
	testAdminToken = "test-admin-token"
)

// mockEngine is a programmable interfaces.JobEngine for handler tests.
type mockEngine struct {
	enqueueFn func(ctx context.Context, principalID, jobType string, payload json.RawMessage, priority *int) (*models.Job, error)
	statusFn  func(ctx context.Context, principalID, id string) (*models.Job, error)
	retryFn   func(ctx context.Context, principalID, id string) (*models.Job, error)
	listFn    func(ctx context.Context, principalID string, filter models.JobFilter) ([]*models.Job, error)
	listAllFn func(ctx context.Context, filter models.JobFilter) ([]*models.Job, error)
	statsFn   func(ctx context.Context) (*models.JobStats, error)
	reapFn    func(ctx context.Context) (int, error)
	cleanupFn func(ctx context.Context, opts interfaces.CleanupOptions) (*interfaces.CleanupResult, error)
}

func (m *mockEngine) Enqueue(ctx context.Context, principalID, jobType string, payload json.RawMessage, priority *int) (*models.Job, error) {
	return m.enqueueFn(ctx, principalID, jobType, payload, priority)
}

func (m *mockEngine) Status(ctx context.Context, principalID, id string) (*models.Job, error) {
	return m.statusFn(ctx, principalID, id)
}

func (m *mockEngine) Retry(ctx context.Context, principalID, id string) (*models.Job, error) {
	return m.retryFn(ctx, principalID, id)
}

func (m *mockEngine) List(ctx context.Context, principalID string, filter models.JobFilter) ([]*models.Job, error) {
	return m.listFn(ctx, principalID, filter)
}

func (m *mockEngine) ListAll(ctx context.Context, filter models.JobFilter) ([]*models.Job, error) {
	return m.listAllFn(ctx, filter)
}

func (m *mockEngine) Stats(ctx context.Context) (*models.JobStats, error) {
	return m.statsFn(ctx)
}

func (m *mockEngine) Reap(ctx context.Context) (int, error) {
	return m.reapFn(ctx)
}

func (m *mockEngine) Cleanup(ctx context.Context, opts interfaces.CleanupOptions) (*interfaces.CleanupResult, error) {
	return m.cleanupFn(ctx, opts)
}

// newTestServer builds a Server over a mock engine with the full middleware
// stack, bearer auth, and a configured admin token.
func newTestServer(t *testing.T, engine *mockEngine) (*Server, http.Handler) {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Auth.JWTSecret = testJWTSecret

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminToken), bcrypt.MinCost)
	require.NoError(t, err)
	config.Auth.AdminTokenHash = string(hash)

	s := &Server{
		config:  config,
		logger:  common.NewSilentLogger(),
		engine:  engine,
		started: time.Now(),
	}
	return s, s.buildHandler()
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(data)
}

// signToken mints an HS256 bearer token for the given subject.
func signToken(t *testing.T, secret, sub string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(expiresIn).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func decodeErrorResponse(t *testing.T, body *bytes.Buffer) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(body.Bytes(), &resp))
	return resp
}

func sampleJob(id, principalID, status string) *models.Job {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	return &models.Job{
		ID:          id,
		Type:        models.JobTypeFlashcardGeneration,
		Payload:     json.RawMessage(`{"topic":"go"}`),
		Status:      status,
		Priority:    models.PriorityFlashcardGeneration,
		MaxAttempts: 3,
		PrincipalID: principalID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
