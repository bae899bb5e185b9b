// Package presence turns identity registry transitions into presence_changed
// notifications for each user's accepted friends.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/protocol"
	"github.com/nfrund/chatterbox/internal/pubsub"
	"github.com/nfrund/chatterbox/internal/session"
)

// DefaultLookupTimeout bounds the friend-list query made per transition.
const DefaultLookupTimeout = 5 * time.Second

// Occupancy is the registry view the tracker derives presence from.
type Occupancy interface {
	IsOnline(userID domain.UserID) bool
	LiveSessionsFor(userID domain.UserID) []*session.Session
}

// Tracker publishes transitions to the bus and, as a subscriber, fans them
// out to friends. Notifications are best-effort and never retried.
type Tracker struct {
	publisher     pubsub.Publisher
	registry      Occupancy
	friends       domain.FriendStore
	lookupTimeout time.Duration
	logger        *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLookupTimeout overrides DefaultLookupTimeout.
func WithLookupTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.lookupTimeout = d
		}
	}
}

// NewTracker creates a Tracker. Attach it to the registry with SetListener
// and call Start to begin delivering notifications.
func NewTracker(publisher pubsub.Publisher, registry Occupancy, friends domain.FriendStore, opts ...Option) *Tracker {
	t := &Tracker{
		publisher:     publisher,
		registry:      registry,
		friends:       friends,
		lookupTimeout: DefaultLookupTimeout,
		logger:        slog.Default().With("service", "presence"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start subscribes to presence transitions until ctx is canceled.
func (t *Tracker) Start(ctx context.Context, subscriber pubsub.Subscriber) error {
	if err := pubsub.Subscribe(ctx, subscriber, TopicUserChanged, t.handle); err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicUserChanged.Name(), err)
	}
	t.logger.Info("Presence tracker subscribed", "topic", TopicUserChanged.Name())
	return nil
}

// UserOnline is called by the registry when userID gains a first session.
func (t *Tracker) UserOnline(userID domain.UserID) {
	t.publish(userID, domain.StatusOnline)
}

// UserOffline is called by the registry when userID loses a last session.
func (t *Tracker) UserOffline(userID domain.UserID) {
	t.publish(userID, domain.StatusOffline)
}

func (t *Tracker) publish(userID domain.UserID, status domain.PresenceStatus) {
	ev := Event{UserID: userID, Status: status}
	if err := pubsub.Publish(context.Background(), t.publisher, TopicUserChanged, string(userID), ev); err != nil {
		t.logger.Error("Failed to publish presence change", "userID", userID, "status", status, "error", err)
	}
}

// Status derives the current status of userID from the registry.
func (t *Tracker) Status(userID domain.UserID) domain.PresenceStatus {
	if t.registry.IsOnline(userID) {
		return domain.StatusOnline
	}
	return domain.StatusOffline
}

// handle notifies the friends of ev.UserID. Events that no longer match the
// registry are dropped because a later event already carries the truth.
func (t *Tracker) handle(ctx context.Context, ev Event) error {
	if current := t.Status(ev.UserID); current != ev.Status {
		t.logger.Debug("Dropping stale presence event", "userID", ev.UserID, "status", ev.Status, "current", current)
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, t.lookupTimeout)
	defer cancel()
	friends, err := t.friends.ListAcceptedFriends(lookupCtx, ev.UserID)
	if err != nil {
		return fmt.Errorf("list friends of %s: %w", ev.UserID, err)
	}

	frame, err := protocol.Encode(protocol.EventPresenceChanged, protocol.PresenceChanged{UserID: ev.UserID, Status: ev.Status})
	if err != nil {
		return err
	}

	delivered := 0
	for _, friend := range friends {
		for _, s := range t.registry.LiveSessionsFor(friend) {
			if err := s.Deliver(frame); err != nil {
				t.logger.Warn("Presence delivery failed", "userID", ev.UserID, "friendID", friend, "sessionID", s.ID(), "error", err)
				s.Close("delivery failed")
				continue
			}
			delivered++
		}
	}
	t.logger.Debug("Presence change delivered", "userID", ev.UserID, "status", ev.Status, "sessions", delivered)
	return nil
}

// OnlineFriends returns the accepted friends of userID that currently have a
// live session.
func (t *Tracker) OnlineFriends(ctx context.Context, userID domain.UserID) ([]domain.UserID, error) {
	friends, err := t.friends.ListAcceptedFriends(ctx, userID)
	if err != nil {
		return nil, domain.Wrap(domain.CodePersistence, "list friends", err)
	}
	out := make([]domain.UserID, 0, len(friends))
	for _, f := range friends {
		if t.registry.IsOnline(f) {
			out = append(out, f)
		}
	}
	return out, nil
}
