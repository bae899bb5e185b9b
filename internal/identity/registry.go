// Package identity tracks which live sessions belong to which user. A user
// with no entry is offline; this registry is the only source of presence.
package identity

import (
	"log/slog"
	"sync"

	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/session"
	"github.com/nfrund/chatterbox/internal/shardmap"
)

// Listener is notified when a user gains a first session or loses a last one.
// Callbacks run without any registry lock held.
type Listener interface {
	UserOnline(userID domain.UserID)
	UserOffline(userID domain.UserID)
}

// Registry maps users to their live sessions.
type Registry struct {
	sessions *shardmap.Map[domain.UserID, *session.Session]
	logger   *slog.Logger

	mu       sync.RWMutex
	listener Listener
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: shardmap.New[domain.UserID, *session.Session](),
		logger:   slog.Default().With("service", "identity"),
	}
}

// SetListener attaches the presence listener. It may be set once at wiring
// time, before sessions register.
func (r *Registry) SetListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = l
}

func (r *Registry) currentListener() Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listener
}

// Register adds s to the live set of userID. Registering a session twice is
// a no-op.
func (r *Registry) Register(userID domain.UserID, s *session.Session) {
	if !r.sessions.Add(userID, s) {
		return
	}
	r.logger.Debug("User online", "userID", userID, "sessionID", s.ID())
	if l := r.currentListener(); l != nil {
		l.UserOnline(userID)
	}
}

// Deregister removes s from the live set of userID. Unknown sessions are
// ignored.
func (r *Registry) Deregister(userID domain.UserID, s *session.Session) {
	if !r.sessions.Remove(userID, s) {
		return
	}
	r.logger.Debug("User offline", "userID", userID, "sessionID", s.ID())
	if l := r.currentListener(); l != nil {
		l.UserOffline(userID)
	}
}

// LiveSessionsFor returns a snapshot of the sessions bound to userID.
func (r *Registry) LiveSessionsFor(userID domain.UserID) []*session.Session {
	return r.sessions.Members(userID)
}

// IsOnline reports whether userID has at least one live session.
func (r *Registry) IsOnline(userID domain.UserID) bool {
	return r.sessions.Len(userID) > 0
}

// OnlineUsers lists every user with a live session.
func (r *Registry) OnlineUsers() []domain.UserID {
	return r.sessions.Keys()
}
