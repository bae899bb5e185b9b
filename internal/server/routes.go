package server

import (
	"golang.org/x/time/rate"

	"github.com/nfrund/chatterbox/internal/handlers"
	"github.com/nfrund/chatterbox/internal/middleware"
	"github.com/nfrund/chatterbox/internal/websocket"
)

// frameOverhead leaves room for the envelope around the longest message text.
const frameOverhead = 1024

// maxEscapedRuneBytes is the longest JSON encoding of one rune: a surrogate
// pair written as two \uXXXX escapes.
const maxEscapedRuneBytes = 12

// frameLimit bounds inbound frames so that any text the router would accept
// fits, however the client escapes it. Length is enforced by the router.
func frameLimit(maxMessageLength int) int64 {
	n := int64(maxEscapedRuneBytes*maxMessageLength + frameOverhead)
	if n < websocket.DefaultReadLimit {
		return websocket.DefaultReadLimit
	}
	return n
}

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	health := handlers.NewHealthHandler(s.Hub, s.Connections)
	s.E.GET("/health", health.Get)

	ws := websocket.NewHandler(s.Hub, s.Verifier,
		websocket.WithOriginPatterns(s.Cfg.AllowedOrigins...),
		websocket.WithPublisher(s.Bus),
		websocket.WithReadLimit(frameLimit(s.Cfg.MaxMessageLength)),
	)
	s.E.GET("/ws", ws.Serve)

	api := s.E.Group("/api",
		middleware.Identity(s.Verifier),
		middleware.RateLimiter(rate.Limit(middleware.DefaultRequestsPerSecond)),
	)

	chat := handlers.NewChatHandler(s.Router, s.Store)
	api.GET("/chat/messages/:roomId", chat.RoomHistory)
	api.GET("/messages/history/:userId", chat.DirectHistory)
	api.POST("/messages/send", chat.SendDirectMessage)

	roomHandler := handlers.NewRoomHandler(s.Store, s.Rooms)
	api.POST("/chat/room", roomHandler.Create)
	api.POST("/chat/room/join", roomHandler.Join)
	api.GET("/chat/rooms", roomHandler.List)

	presenceHandler := handlers.NewPresenceHandler(s.Presence, s.Store)
	api.GET("/friends/online", presenceHandler.OnlineFriends)
	api.GET("/friends/friends", presenceHandler.Friends)
}
