// Package storetest is a behavioural suite every domain.Store backend must
// pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Befriend records an accepted friendship on the backend under test.
type Befriend func(t *testing.T, a, b domain.UserID)

// Run exercises s. Ids are unique per call so shared databases need no
// cleanup between runs.
func Run(t *testing.T, s domain.Store, befriend Befriend) {
	run := xid.New().String()
	user := func(name string) domain.UserID { return domain.UserID(name + "-" + run) }

	t.Run("room history", func(t *testing.T) {
		ctx := context.Background()
		alice, bob := user("alice"), user("bob")
		room, err := s.CreateRoom(ctx, "general", alice, []domain.UserID{bob})
		require.NoError(t, err)

		first, err := s.PersistMessage(ctx, domain.Draft{SenderID: alice, RoomID: room.ID, Text: "one"})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		second, err := s.PersistMessage(ctx, domain.Draft{SenderID: bob, RoomID: room.ID, Text: "two"})
		require.NoError(t, err)

		assert.NotEmpty(t, first.ID)
		assert.Equal(t, room.ID, first.RoomID)
		assert.Empty(t, first.ReceiverID)

		history, err := s.FetchRoomHistory(ctx, room.ID, nil)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, first.ID, history[0].ID)
		assert.Equal(t, "two", history[1].Text)
		assert.Equal(t, bob, history[1].SenderID)

		since := first.CreatedAt
		history, err = s.FetchRoomHistory(ctx, room.ID, &since)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, second.ID, history[0].ID)
	})

	t.Run("room history since with back-to-back sends", func(t *testing.T) {
		ctx := context.Background()
		alice := user("alice")
		room, err := s.CreateRoom(ctx, "burst", alice, nil)
		require.NoError(t, err)

		var sent []domain.Message
		for _, text := range []string{"a", "b", "c"} {
			msg, err := s.PersistMessage(ctx, domain.Draft{SenderID: alice, RoomID: room.ID, Text: text})
			require.NoError(t, err)
			sent = append(sent, msg)
		}
		for i := 1; i < len(sent); i++ {
			assert.True(t, sent[i].CreatedAt.After(sent[i-1].CreatedAt), "createdAt of %q", sent[i].Text)
		}

		since := sent[0].CreatedAt
		history, err := s.FetchRoomHistory(ctx, room.ID, &since)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, sent[1].ID, history[0].ID)
		assert.Equal(t, sent[2].ID, history[1].ID)
	})

	t.Run("direct history", func(t *testing.T) {
		ctx := context.Background()
		a, b, c := user("a"), user("b"), user("c")
		for _, d := range []domain.Draft{
			{SenderID: a, ReceiverID: b, Text: "hi b"},
			{SenderID: b, ReceiverID: a, Text: "hi a"},
			{SenderID: a, ReceiverID: c, Text: "hi c"},
		} {
			_, err := s.PersistMessage(ctx, d)
			require.NoError(t, err)
			time.Sleep(2 * time.Millisecond)
		}

		history, err := s.FetchDirectHistory(ctx, b, a)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "hi b", history[0].Text)
		assert.Equal(t, "hi a", history[1].Text)
		assert.Empty(t, history[0].RoomID)
	})

	t.Run("rejects bad addressing", func(t *testing.T) {
		_, err := s.PersistMessage(context.Background(), domain.Draft{SenderID: user("a"), RoomID: "r", ReceiverID: "b", Text: "x"})
		assert.ErrorIs(t, err, domain.ErrInvalidMessage)
	})

	t.Run("membership", func(t *testing.T) {
		ctx := context.Background()
		owner, guest := user("owner"), user("guest")
		room, err := s.CreateRoom(ctx, "  team  ", owner, nil)
		require.NoError(t, err)
		assert.Equal(t, "team", room.Name)
		assert.Equal(t, []domain.UserID{owner}, room.Members)

		ok, err := s.IsDurableMember(ctx, guest, room.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.AddDurableMember(ctx, room.ID, guest))
		require.NoError(t, s.AddDurableMember(ctx, room.ID, guest), "adding twice is a no-op")

		ok, err = s.IsDurableMember(ctx, guest, room.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		rooms, err := s.ListDurableRoomsFor(ctx, guest)
		require.NoError(t, err)
		assert.Equal(t, []domain.RoomID{room.ID}, rooms)

		listed, err := s.ListRoomsFor(ctx, guest)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.ElementsMatch(t, []domain.UserID{owner, guest}, listed[0].Members)

		err = s.AddDurableMember(ctx, domain.RoomID("missing-"+run), guest)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("create room validation", func(t *testing.T) {
		_, err := s.CreateRoom(context.Background(), " ", user("x"), nil)
		assert.ErrorIs(t, err, domain.ErrInvalidMessage)
	})

	t.Run("friends", func(t *testing.T) {
		a, b, c := user("fa"), user("fb"), user("fc")
		befriend(t, a, b)
		befriend(t, c, a)

		friends, err := s.ListAcceptedFriends(context.Background(), a)
		require.NoError(t, err)
		assert.ElementsMatch(t, []domain.UserID{b, c}, friends)

		friends, err = s.ListAcceptedFriends(context.Background(), b)
		require.NoError(t, err)
		assert.Equal(t, []domain.UserID{a}, friends)
	})
}
