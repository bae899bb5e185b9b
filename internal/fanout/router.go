// Package fanout persists new messages and delivers them to every live
// session that should see them.
//
// A message is never delivered before the store has accepted it. Sends that
// share a target (one room, or one unordered pair of users) are serialized so
// every observer sees them in persistence order; sends to different targets
// run in parallel.
package fanout

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/keylock"
	"github.com/nfrund/chatterbox/internal/protocol"
	"github.com/nfrund/chatterbox/internal/session"
)

// DefaultMaxMessageLength is the longest accepted text, in runes.
const DefaultMaxMessageLength = 4096

// UserSessions resolves the live sessions of a user.
type UserSessions interface {
	LiveSessionsFor(userID domain.UserID) []*session.Session
}

// RoomSessions resolves the live sessions joined to a room.
type RoomSessions interface {
	LiveSessionsFor(roomID domain.RoomID) []*session.Session
}

// Router is the single entry point for sending messages.
type Router struct {
	store     domain.MessageStore
	users     UserSessions
	rooms     RoomSessions
	locks     *keylock.Map
	maxLen    int
	sanitizer *bluemonday.Policy
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithMaxMessageLength overrides DefaultMaxMessageLength.
func WithMaxMessageLength(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxLen = n
		}
	}
}

// WithSanitizer strips markup from message text with policy before it is
// validated and stored.
func WithSanitizer(policy *bluemonday.Policy) Option {
	return func(r *Router) {
		r.sanitizer = policy
	}
}

// NewRouter wires a Router to its collaborators.
func NewRouter(store domain.MessageStore, users UserSessions, rooms RoomSessions, opts ...Option) *Router {
	r := &Router{
		store:  store,
		users:  users,
		rooms:  rooms,
		locks:  keylock.New(),
		maxLen: DefaultMaxMessageLength,
		logger: slog.Default().With("service", "fanout"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendRoomMessage persists text as a message to roomID and delivers it to
// every session joined to the room.
func (r *Router) SendRoomMessage(ctx context.Context, senderID domain.UserID, roomID domain.RoomID, text string) (domain.Message, error) {
	if senderID == "" {
		return domain.Message{}, domain.NewError(domain.CodeInvalidMessage, "senderId is required")
	}
	if roomID == "" {
		return domain.Message{}, domain.NewError(domain.CodeInvalidMessage, "roomId is required")
	}
	text, err := r.validateText(text)
	if err != nil {
		return domain.Message{}, err
	}

	unlock := r.locks.Lock(roomKey(roomID))
	defer unlock()

	msg, err := r.persist(ctx, domain.Draft{SenderID: senderID, RoomID: roomID, Text: text})
	if err != nil {
		return domain.Message{}, err
	}

	r.deliver(msg, r.rooms.LiveSessionsFor(roomID))
	return msg, nil
}

// SendDirectMessage persists text as a message from senderID to receiverID
// and delivers it to every live session of both users. A user may message
// themselves; each session still receives the message once.
func (r *Router) SendDirectMessage(ctx context.Context, senderID, receiverID domain.UserID, text string) (domain.Message, error) {
	if senderID == "" {
		return domain.Message{}, domain.NewError(domain.CodeInvalidMessage, "senderId is required")
	}
	if receiverID == "" {
		return domain.Message{}, domain.NewError(domain.CodeInvalidMessage, "receiverId is required")
	}
	text, err := r.validateText(text)
	if err != nil {
		return domain.Message{}, err
	}

	unlock := r.locks.Lock(pairKey(senderID, receiverID))
	defer unlock()

	msg, err := r.persist(ctx, domain.Draft{SenderID: senderID, ReceiverID: receiverID, Text: text})
	if err != nil {
		return domain.Message{}, err
	}

	targets := union(r.users.LiveSessionsFor(senderID), r.users.LiveSessionsFor(receiverID))
	r.deliver(msg, targets)
	return msg, nil
}

// RoomHistory returns the stored messages of roomID, oldest first.
func (r *Router) RoomHistory(ctx context.Context, roomID domain.RoomID, since *time.Time) ([]domain.Message, error) {
	msgs, err := r.store.FetchRoomHistory(ctx, roomID, since)
	if err != nil {
		return nil, domain.Wrap(domain.CodePersistence, "fetch room history", err)
	}
	return msgs, nil
}

// DirectHistory returns the stored messages between a and b, oldest first.
func (r *Router) DirectHistory(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	msgs, err := r.store.FetchDirectHistory(ctx, a, b)
	if err != nil {
		return nil, domain.Wrap(domain.CodePersistence, "fetch direct history", err)
	}
	return msgs, nil
}

func (r *Router) validateText(text string) (string, error) {
	if r.sanitizer != nil {
		// Sanitize escapes the text it keeps; stored text stays plain.
		text = html.UnescapeString(r.sanitizer.Sanitize(text))
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.NewError(domain.CodeInvalidMessage, "text is required")
	}
	if utf8.RuneCountInString(text) > r.maxLen {
		return "", domain.NewError(domain.CodeInvalidMessage, fmt.Sprintf("text exceeds %d characters", r.maxLen))
	}
	return text, nil
}

func (r *Router) persist(ctx context.Context, d domain.Draft) (domain.Message, error) {
	msg, err := r.store.PersistMessage(ctx, d)
	if err != nil {
		r.logger.Error("Failed to persist message", "senderID", d.SenderID, "roomID", d.RoomID, "receiverID", d.ReceiverID, "error", err)
		return domain.Message{}, domain.Wrap(domain.CodePersistence, "persist message", err)
	}
	return msg, nil
}

// deliver queues msg on every target. A failing target is torn down and
// skipped; the others are unaffected.
func (r *Router) deliver(msg domain.Message, targets []*session.Session) {
	if len(targets) == 0 {
		return
	}
	frame, err := protocol.Encode(protocol.MessageEvent(msg), msg)
	if err != nil {
		r.logger.Error("Failed to encode message", "messageID", msg.ID, "error", err)
		return
	}

	failed := 0
	for _, s := range targets {
		if err := s.Deliver(frame); err != nil {
			failed++
			r.logger.Warn("Delivery failed", "messageID", msg.ID, "sessionID", s.ID(), "error", err)
			s.Close("delivery failed")
		}
	}
	r.logger.Debug("Message fanned out", "messageID", msg.ID, "targets", len(targets), "failed", failed)
}

func roomKey(id domain.RoomID) string {
	return "room:" + string(id)
}

// pairKey is the same for (a, b) and (b, a).
func pairKey(a, b domain.UserID) string {
	if b < a {
		a, b = b, a
	}
	return "dm:" + string(a) + "\x00" + string(b)
}

func union(sets ...[]*session.Session) []*session.Session {
	seen := make(map[string]struct{})
	var out []*session.Session
	for _, set := range sets {
		for _, s := range set {
			if _, ok := seen[s.ID()]; ok {
				continue
			}
			seen[s.ID()] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
