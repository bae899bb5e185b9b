package session

import (
	"errors"
	"testing"
	"time"

	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_BindLifecycle(t *testing.T) {
	s := New(testutils.NewFakeTransport())
	assert.Equal(t, StateUnbound, s.State())
	assert.NotEmpty(t, s.ID())

	changed, err := s.Bind("alice")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StateBound, s.State())

	changed, err = s.Bind("alice")
	require.NoError(t, err)
	assert.False(t, changed, "rebinding the same user is a no-op")

	_, err = s.Bind("bob")
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)

	uid, ok := s.UserID()
	assert.True(t, ok)
	assert.Equal(t, domain.UserID("alice"), uid)

	s.Close("test")
	assert.Equal(t, StateClosed, s.State())
}

func TestSession_BindRejectsEmptyAndMismatch(t *testing.T) {
	s := New(testutils.NewFakeTransport(), WithVerifiedUser("alice"))

	_, err := s.Bind("")
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)

	_, err = s.Bind("mallory")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	assert.Equal(t, StateUnbound, s.State())

	_, err = s.Bind("alice")
	assert.NoError(t, err)
}

func TestSession_UniqueIDs(t *testing.T) {
	a := New(testutils.NewFakeTransport())
	b := New(testutils.NewFakeTransport())
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestSession_DeliverWritesInOrder(t *testing.T) {
	tr := testutils.NewFakeTransport()
	s := New(tr)
	s.Start()
	defer s.Close("done")

	for _, f := range []string{"one", "two", "three"} {
		require.NoError(t, s.Deliver([]byte(f)))
	}

	require.Eventually(t, func() bool { return len(tr.Frames()) == 3 }, time.Second, 5*time.Millisecond)
	frames := tr.Frames()
	assert.Equal(t, "one", string(frames[0]))
	assert.Equal(t, "two", string(frames[1]))
	assert.Equal(t, "three", string(frames[2]))
}

func TestSession_DeliverAfterCloseFails(t *testing.T) {
	tr := testutils.NewFakeTransport()
	s := New(tr)
	s.Close("bye")

	err := s.Deliver([]byte("late"))
	assert.ErrorIs(t, err, domain.ErrDelivery)
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, tr.Closed())
	assert.Equal(t, "bye", tr.CloseReason())
}

func TestSession_StalledQueueTearsDown(t *testing.T) {
	tr := testutils.NewFakeTransport()
	// No writer and no queue: the first delivery must wait and time out.
	s := New(tr, WithQueueSize(0), WithWriteTimeout(20*time.Millisecond))

	err := s.Deliver([]byte("x"))
	assert.ErrorIs(t, err, domain.ErrDelivery)
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, tr.Closed())
}

func TestSession_BlockedWriteTearsDown(t *testing.T) {
	tr := testutils.NewFakeTransport()
	tr.BlockWrites()
	s := New(tr, WithWriteTimeout(20*time.Millisecond))
	s.Start()

	require.NoError(t, s.Deliver([]byte("x")))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session was not torn down after write timeout")
	}
}

func TestSession_WriteErrorTearsDown(t *testing.T) {
	tr := testutils.NewFakeTransport()
	tr.FailWrites(errors.New("broken pipe"))
	s := New(tr)
	s.Start()

	require.NoError(t, s.Deliver([]byte("x")))

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session was not torn down after write error")
	}
	assert.Equal(t, "write failed", tr.CloseReason())
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	tr := testutils.NewFakeTransport()
	s := New(tr)
	s.Close("first")
	s.Close("second")
	assert.Equal(t, "first", tr.CloseReason())
}

func TestSession_Rooms(t *testing.T) {
	s := New(testutils.NewFakeTransport())
	s.AddRoom("r1")
	s.AddRoom("r2")
	s.AddRoom("r1")
	assert.True(t, s.InRoom("r1"))
	assert.ElementsMatch(t, []domain.RoomID{"r1", "r2"}, s.Rooms())

	s.RemoveRoom("r1")
	s.RemoveRoom("missing")
	assert.False(t, s.InRoom("r1"))
	assert.ElementsMatch(t, []domain.RoomID{"r2"}, s.Rooms())
}

func TestSession_RateLimit(t *testing.T) {
	s := New(testutils.NewFakeTransport(), WithRateLimit(1, 2))
	assert.True(t, s.Allow())
	assert.True(t, s.Allow())
	assert.False(t, s.Allow())

	unlimited := New(testutils.NewFakeTransport())
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.Allow())
	}
}
