package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatterbox/internal/auth"
	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/hub"
	"github.com/nfrund/chatterbox/internal/pubsub"
	"github.com/nfrund/chatterbox/internal/session"
)

// DefaultReadLimit bounds a single inbound frame.
const DefaultReadLimit = 64 << 10

// Handler upgrades requests on the chat endpoint and serves them on a hub.
type Handler struct {
	hub            *hub.Hub
	verifier       auth.Verifier
	publisher      pubsub.Publisher
	originPatterns []string
	readLimit      int64
	logger         *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithOriginPatterns restricts accepted Origin hosts. With no patterns any
// origin is accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) {
		h.originPatterns = append(h.originPatterns, patterns...)
	}
}

// WithReadLimit overrides DefaultReadLimit.
func WithReadLimit(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithPublisher announces connection lifecycle events on p.
func WithPublisher(p pubsub.Publisher) Option {
	return func(h *Handler) {
		h.publisher = p
	}
}

// NewHandler creates a Handler.
func NewHandler(h *hub.Hub, v auth.Verifier, opts ...Option) *Handler {
	handler := &Handler{
		hub:       h,
		verifier:  v,
		readLimit: DefaultReadLimit,
		logger:    slog.Default().With("service", "websocket"),
	}
	for _, opt := range opts {
		opt(handler)
	}
	return handler
}

// Serve is the echo handler for the chat endpoint. It blocks for the life of
// the connection.
func (h *Handler) Serve(c echo.Context) error {
	var sessionOpts []session.Option
	uid, err := h.verifier.Verify(c.Request())
	switch {
	case err == nil:
		sessionOpts = append(sessionOpts, session.WithVerifiedUser(uid))
	case errors.Is(err, auth.ErrMissingCredentials) && !h.verifier.Required():
	default:
		h.logger.Debug("Rejected WebSocket credentials", "error", err)
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"code":    string(domain.CodeNotAuthenticated),
			"message": err.Error(),
		})
	}

	opts := &websocket.AcceptOptions{OriginPatterns: h.originPatterns}
	if len(h.originPatterns) == 0 {
		opts.InsecureSkipVerify = true
	}
	conn, err := websocket.Accept(c.Response(), c.Request(), opts)
	if err != nil {
		h.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		// Accept has already written the response.
		return nil
	}
	conn.SetReadLimit(h.readLimit)

	ev := ConnectionEvent{UserID: uid, RemoteAddr: c.RealIP()}
	h.announce(TopicConnectionOpened, ev)
	defer h.announce(TopicConnectionClosed, ev)

	h.hub.Serve(c.Request().Context(), NewConn(conn), sessionOpts...)
	return nil
}

func (h *Handler) announce(event pubsub.Event[ConnectionEvent], ev ConnectionEvent) {
	if h.publisher == nil {
		return
	}
	if err := pubsub.Publish(context.Background(), h.publisher, event, string(ev.UserID), ev); err != nil {
		h.logger.Error("Failed to publish connection event", "topic", event.Name(), "error", err)
	}
}
