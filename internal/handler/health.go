package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/openclaw/channel-session-go/internal/config"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// AgentLink reports the agent transport state.
type AgentLink interface {
	IsConnected() bool
}

type HealthHandler struct {
	db    Pinger
	redis Pinger
	agent AgentLink
}

// NewHealthHandler builds the health check. redis may be nil.
func NewHealthHandler(db Pinger, redis Pinger, agent AgentLink) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, agent: agent}
}

// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := map[string]string{}

	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		status, code = "degraded", http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}

	// the agent link opens on demand, so a closed link is not unhealthy
	if h.agent != nil && h.agent.IsConnected() {
		checks["agent"] = "connected"
	} else {
		checks["agent"] = "idle"
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UnixMilli(),
	})
}
