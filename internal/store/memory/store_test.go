package memory

import (
	"context"
	"testing"

	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ domain.Store = (*Store)(nil)

func TestStore_RoomHistoryOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.PersistMessage(ctx, domain.Draft{SenderID: "a", RoomID: "r", Text: "one"})
	require.NoError(t, err)
	second, err := s.PersistMessage(ctx, domain.Draft{SenderID: "b", RoomID: "r", Text: "two"})
	require.NoError(t, err)
	_, err = s.PersistMessage(ctx, domain.Draft{SenderID: "a", RoomID: "other", Text: "elsewhere"})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.CreatedAt.After(first.CreatedAt))

	history, err := s.FetchRoomHistory(ctx, "r", nil)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "one", history[0].Text)
	assert.Equal(t, "two", history[1].Text)

	since := first.CreatedAt
	history, err = s.FetchRoomHistory(ctx, "r", &since)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, second.ID, history[0].ID)
}

func TestStore_DirectHistoryBothDirections(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.PersistMessage(ctx, domain.Draft{SenderID: "a", ReceiverID: "b", Text: "hi b"})
	require.NoError(t, err)
	_, err = s.PersistMessage(ctx, domain.Draft{SenderID: "b", ReceiverID: "a", Text: "hi a"})
	require.NoError(t, err)
	_, err = s.PersistMessage(ctx, domain.Draft{SenderID: "a", ReceiverID: "c", Text: "hi c"})
	require.NoError(t, err)

	history, err := s.FetchDirectHistory(ctx, "b", "a")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi b", history[0].Text)
	assert.Equal(t, "hi a", history[1].Text)
}

func TestStore_PersistRejectsBadAddressing(t *testing.T) {
	_, err := New().PersistMessage(context.Background(), domain.Draft{SenderID: "a", RoomID: "r", ReceiverID: "b"})
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestStore_RoomsAndMembership(t *testing.T) {
	ctx := context.Background()
	s := New()

	room, err := s.CreateRoom(ctx, "  general ", "alice", []domain.UserID{"bob"})
	require.NoError(t, err)
	assert.Equal(t, "general", room.Name)
	assert.Equal(t, []domain.UserID{"alice", "bob"}, room.Members)

	ok, err := s.IsDurableMember(ctx, "alice", room.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsDurableMember(ctx, "carol", room.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AddDurableMember(ctx, room.ID, "carol"))
	require.NoError(t, s.AddDurableMember(ctx, room.ID, "carol"))

	rooms, err := s.ListRoomsFor(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, []domain.UserID{"alice", "bob", "carol"}, rooms[0].Members)

	ids, err := s.ListDurableRoomsFor(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, []domain.RoomID{room.ID}, ids)

	assert.ErrorIs(t, s.AddDurableMember(ctx, "missing", "carol"), domain.ErrNotFound)

	_, err = s.CreateRoom(ctx, " ", "alice", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestStore_Friends(t *testing.T) {
	s := New()
	s.AddFriendship("alice", "bob")
	s.AddFriendship("alice", "carol")

	friends, err := s.ListAcceptedFriends(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"bob", "carol"}, friends)

	friends, err = s.ListAcceptedFriends(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"alice"}, friends)

	friends, err = s.ListAcceptedFriends(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, friends)
}

func TestStore_Contract(t *testing.T) {
	s := New()
	storetest.Run(t, s, func(t *testing.T, a, b domain.UserID) {
		s.AddFriendship(a, b)
	})
}
