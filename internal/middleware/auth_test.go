package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/channel-session-go/internal/auth"
)

const testSecret = "test-secret-at-least-32-characters-long"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	jwtService := auth.NewJWTService(testSecret)
	validToken, err := jwtService.SignToken("operator-1", time.Hour)
	require.NoError(t, err)

	t.Run("allows request with valid bearer token", func(t *testing.T) {
		var seen *auth.Claims
		handler := NewAuthMiddleware(jwtService).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetOperator(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
		req.Header.Set("Authorization", "Bearer "+validToken)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "operator-1", seen.Subject)
	})

	t.Run("accepts token query parameter", func(t *testing.T) {
		handler := NewAuthMiddleware(jwtService).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/v1/channels/c1/events?token="+validToken, nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("returns 401 without token", func(t *testing.T) {
		handler := NewAuthMiddleware(jwtService).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("returns 401 for token signed with another secret", func(t *testing.T) {
		other, err := auth.NewJWTService("another-secret-at-least-32-characters").SignToken("x", time.Hour)
		require.NoError(t, err)
		handler := NewAuthMiddleware(jwtService).Handler(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
		req.Header.Set("Authorization", "Bearer "+other)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "INVALID_TOKEN")
	})
}

func TestGetOperator_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, GetOperator(req.Context()))
}
