package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SessionCounter reports the number of live connections.
type SessionCounter interface {
	ActiveSessions() int
}

// ConnectionCounter reports lifetime connection totals.
type ConnectionCounter interface {
	Opened() int64
	Closed() int64
}

// HealthHandler handles GET /health.
type HealthHandler struct {
	sessions    SessionCounter
	connections ConnectionCounter
}

// NewHealthHandler creates a HealthHandler. connections may be nil.
func NewHealthHandler(sessions SessionCounter, connections ConnectionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions, connections: connections}
}

// Get reports liveness, the active session count and, when available,
// connection totals.
func (h *HealthHandler) Get(c echo.Context) error {
	body := map[string]any{
		"status":   "ok",
		"sessions": h.sessions.ActiveSessions(),
	}
	if h.connections != nil {
		body["connections"] = map[string]int64{
			"opened": h.connections.Opened(),
			"closed": h.connections.Closed(),
		}
	}
	return c.JSON(http.StatusOK, body)
}
