package domain

import (
	"context"
	"time"
)

// MessageStore is the durable record of messages.
type MessageStore interface {
	// PersistMessage stores the draft and returns it with its assigned id and
	// creation time.
	PersistMessage(ctx context.Context, d Draft) (Message, error)
	// FetchRoomHistory returns room messages oldest first. A non-nil since
	// excludes messages created at or before it.
	FetchRoomHistory(ctx context.Context, roomID RoomID, since *time.Time) ([]Message, error)
	// FetchDirectHistory returns messages exchanged between a and b in either
	// direction, oldest first.
	FetchDirectHistory(ctx context.Context, a, b UserID) ([]Message, error)
}

// MembershipStore is the authority on durable room membership.
type MembershipStore interface {
	IsDurableMember(ctx context.Context, userID UserID, roomID RoomID) (bool, error)
	AddDurableMember(ctx context.Context, roomID RoomID, userID UserID) error
	ListDurableRoomsFor(ctx context.Context, userID UserID) ([]RoomID, error)
}

// RoomStore creates and lists rooms.
type RoomStore interface {
	MembershipStore
	// CreateRoom stores a new room. createdBy is always a member.
	CreateRoom(ctx context.Context, name string, createdBy UserID, members []UserID) (Room, error)
	ListRoomsFor(ctx context.Context, userID UserID) ([]Room, error)
}

// FriendStore answers friendship questions for presence.
type FriendStore interface {
	ListAcceptedFriends(ctx context.Context, userID UserID) ([]UserID, error)
}

// Store bundles every collaborator a backend provides.
type Store interface {
	MessageStore
	RoomStore
	FriendStore
	Close(ctx context.Context) error
}

// MembersWithCreator returns members with createdBy included exactly once,
// preserving first-seen order and dropping empty ids.
func MembersWithCreator(createdBy UserID, members []UserID) []UserID {
	seen := map[UserID]struct{}{createdBy: {}}
	out := []UserID{createdBy}
	for _, m := range members {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
