// Package websocket adapts coder/websocket connections to session transports
// and upgrades HTTP requests into hub sessions.
package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/coder/websocket"
)

// maxCloseReason is the longest reason a close frame can carry.
const maxCloseReason = 123

// Conn is a session.Transport over a WebSocket connection. Frames are
// exchanged as text messages.
type Conn struct {
	conn   *websocket.Conn
	logger *slog.Logger
}

// NewConn wraps c.
func NewConn(c *websocket.Conn) *Conn {
	return &Conn{conn: c, logger: slog.Default().With("service", "websocket")}
}

func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			c.logger.Debug("WebSocket closed by peer")
			return nil, io.EOF
		}
		if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			c.logger.Debug("WebSocket read error", "error", err)
		}
		return nil, err
	}
	return data, nil
}

func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Close starts the close handshake and returns without waiting for the peer,
// since callers include fan-out goroutines.
func (c *Conn) Close(reason string) error {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	go func() {
		if err := c.conn.Close(websocket.StatusNormalClosure, reason); err != nil {
			c.conn.CloseNow()
		}
	}()
	return nil
}
