package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nfrund/chatterbox/internal/pubsub"
)

// ConnectionStats consumes the connection lifecycle topics and keeps running
// totals for the health endpoint.
type ConnectionStats struct {
	opened atomic.Int64
	closed atomic.Int64
	logger *slog.Logger
}

// NewConnectionStats creates an idle ConnectionStats; call Start to consume.
func NewConnectionStats() *ConnectionStats {
	return &ConnectionStats{logger: slog.Default().With("service", "websocket")}
}

// Start subscribes to both connection topics until ctx is canceled.
func (s *ConnectionStats) Start(ctx context.Context, subscriber pubsub.Subscriber) error {
	if err := pubsub.Subscribe(ctx, subscriber, TopicConnectionOpened, func(_ context.Context, ev ConnectionEvent) error {
		s.opened.Add(1)
		s.logger.Debug("WebSocket connection opened", "userID", ev.UserID, "remoteAddr", ev.RemoteAddr)
		return nil
	}); err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicConnectionOpened.Name(), err)
	}
	if err := pubsub.Subscribe(ctx, subscriber, TopicConnectionClosed, func(_ context.Context, ev ConnectionEvent) error {
		s.closed.Add(1)
		s.logger.Debug("WebSocket connection closed", "userID", ev.UserID, "remoteAddr", ev.RemoteAddr)
		return nil
	}); err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicConnectionClosed.Name(), err)
	}
	return nil
}

// Opened returns the number of accepted connections seen so far.
func (s *ConnectionStats) Opened() int64 { return s.opened.Load() }

// Closed returns the number of finished connections seen so far.
func (s *ConnectionStats) Closed() int64 { return s.closed.Load() }
