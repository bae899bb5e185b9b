package websocket

import (
	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/pubsub"
)

// ConnectionEvent describes an accepted or finished WebSocket connection.
type ConnectionEvent struct {
	UserID     domain.UserID `json:"userId,omitempty"`
	RemoteAddr string        `json:"remoteAddr"`
}

var (
	// TopicConnectionOpened is published after a connection is upgraded.
	TopicConnectionOpened = pubsub.NewEvent[ConnectionEvent](
		"ws.connection.opened",
		"Published when a WebSocket connection is accepted",
	)
	// TopicConnectionClosed is published once the session has been torn down.
	TopicConnectionClosed = pubsub.NewEvent[ConnectionEvent](
		"ws.connection.closed",
		"Published when a WebSocket connection ends",
	)
)
