package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bobmcallan/curio/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// principalEcho records the principal resolved for the request.
func principalEcho(captured **common.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = common.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func newMiddlewareStack(captured **common.Principal) http.Handler {
	config := common.NewDefaultConfig()
	config.Auth.JWTSecret = testJWTSecret
	return applyMiddleware(principalEcho(captured), common.NewSilentLogger(), config)
}

func TestPrincipalMiddleware_BearerToken(t *testing.T) {
	var captured *common.Principal
	handler := newMiddlewareStack(&captured)

	token := signToken(t, testJWTSecret, "user-42", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "user-42", captured.ID)
	assert.Equal(t, "bearer", captured.Source)
}

func TestPrincipalMiddleware_ExpiredToken(t *testing.T) {
	var captured *common.Principal
	handler := newMiddlewareStack(&captured)

	token := signToken(t, testJWTSecret, "user-42", -time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeAuthRequired, decodeErrorResponse(t, rec.Body).Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Nil(t, captured)
}

func TestPrincipalMiddleware_WrongSecret(t *testing.T) {
	var captured *common.Principal
	handler := newMiddlewareStack(&captured)

	token := signToken(t, "some-other-secret", "user-42", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, captured)
}

func TestPrincipalMiddleware_GatewayHeader(t *testing.T) {
	var captured *common.Principal
	handler := newMiddlewareStack(&captured)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("X-Curio-User-ID", "gateway-user")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "gateway-user", captured.ID)
	assert.Equal(t, "header", captured.Source)
}

func TestPrincipalMiddleware_BearerWinsOverHeader(t *testing.T) {
	var captured *common.Principal
	handler := newMiddlewareStack(&captured)

	token := signToken(t, testJWTSecret, "token-user", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Curio-User-ID", "header-user")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "token-user", captured.ID)
}

func TestPrincipalMiddleware_Anonymous(t *testing.T) {
	var captured *common.Principal
	handler := newMiddlewareStack(&captured)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// No identity passes through; handlers decide whether to reject.
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, captured)
}

func TestCORSPreflight(t *testing.T) {
	var captured *common.Principal
	handler := newMiddlewareStack(&captured)

	req := httptest.NewRequest(http.MethodOptions, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Curio-Admin-Token")
}

func TestCorrelationID(t *testing.T) {
	var captured *common.Principal
	handler := newMiddlewareStack(&captured)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Correlation-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	config := common.NewDefaultConfig()
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	})
	handler := applyMiddleware(panicking, common.NewSilentLogger(), config)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeInternalError, decodeErrorResponse(t, rec.Body).Code)
}
