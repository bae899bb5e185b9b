// Package rooms routes room traffic to the sessions that have joined each
// room. Joining is per session, and only durable members may join.
package rooms

import (
	"context"
	"log/slog"

	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/session"
	"github.com/nfrund/chatterbox/internal/shardmap"
)

type member domain.UserID

func (m member) ID() string { return string(m) }

// Index holds the live routing set of every room and an advisory cache of
// durable membership. The membership store stays authoritative and is asked
// on every join.
type Index struct {
	store   domain.MembershipStore
	live    *shardmap.Map[domain.RoomID, *session.Session]
	durable *shardmap.Map[domain.RoomID, member]
	logger  *slog.Logger
}

// NewIndex returns an Index that checks joins against store.
func NewIndex(store domain.MembershipStore) *Index {
	return &Index{
		store:   store,
		live:    shardmap.New[domain.RoomID, *session.Session](),
		durable: shardmap.New[domain.RoomID, member](),
		logger:  slog.Default().With("service", "rooms"),
	}
}

// Join adds s to the live set of roomID if userID is a durable member.
func (i *Index) Join(ctx context.Context, roomID domain.RoomID, userID domain.UserID, s *session.Session) error {
	if roomID == "" {
		return domain.NewError(domain.CodeInvalidMessage, "roomId is required")
	}

	ok, err := i.store.IsDurableMember(ctx, userID, roomID)
	if err != nil {
		return domain.Wrap(domain.CodePersistence, "check room membership", err)
	}
	if !ok {
		i.durable.Remove(roomID, member(userID))
		return domain.ErrNotAMember
	}

	i.durable.Add(roomID, member(userID))
	i.live.Add(roomID, s)
	i.logger.Debug("Session joined room", "roomID", roomID, "userID", userID, "sessionID", s.ID())
	return nil
}

// Leave removes s from the live set of roomID. Absent sessions are ignored.
func (i *Index) Leave(roomID domain.RoomID, s *session.Session) {
	if i.live.Remove(roomID, s) {
		i.logger.Debug("Room has no live sessions", "roomID", roomID)
	}
}

// LiveSessionsFor returns a snapshot of the sessions joined to roomID.
func (i *Index) LiveSessionsFor(roomID domain.RoomID) []*session.Session {
	return i.live.Members(roomID)
}

// IsJoined reports whether s is in the live set of roomID.
func (i *Index) IsJoined(roomID domain.RoomID, s *session.Session) bool {
	return i.live.Contains(roomID, s.ID())
}

// AddDurableMember writes the membership through to the store.
func (i *Index) AddDurableMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	if roomID == "" || userID == "" {
		return domain.NewError(domain.CodeInvalidMessage, "roomId and userId are required")
	}
	if err := i.store.AddDurableMember(ctx, roomID, userID); err != nil {
		return domain.Wrap(domain.CodePersistence, "add room member", err)
	}
	i.durable.Add(roomID, member(userID))
	return nil
}

// DurableMembers returns the cached durable members of roomID. The cache
// only knows members seen through this index and may lag the store.
func (i *Index) DurableMembers(roomID domain.RoomID) []domain.UserID {
	cached := i.durable.Members(roomID)
	out := make([]domain.UserID, len(cached))
	for n, m := range cached {
		out[n] = domain.UserID(m)
	}
	return out
}
