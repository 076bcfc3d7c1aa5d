package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeLink bool

func (f fakeLink) IsConnected() bool { return bool(f) }

func TestHealthHandler(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(ok, ok, fakeLink(true)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "ok", body["status"])
		checks := body["checks"].(map[string]any)
		assert.Equal(t, "connected", checks["agent"])
		assert.Equal(t, "ok", checks["redis"])
	})

	t.Run("database down is unavailable", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(down, nil, fakeLink(false)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "degraded", body["status"])
		checks := body["checks"].(map[string]any)
		assert.Equal(t, "idle", checks["agent"])
		assert.NotContains(t, checks, "redis")
	})
}
