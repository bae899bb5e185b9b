package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/fanout"
	"github.com/nfrund/chatterbox/internal/identity"
	"github.com/nfrund/chatterbox/internal/protocol"
	"github.com/nfrund/chatterbox/internal/rooms"
	"github.com/nfrund/chatterbox/internal/session"
	"github.com/nfrund/chatterbox/internal/store/memory"
	"github.com/nfrund/chatterbox/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*memory.Store
	persists atomic.Int32
}

func (c *countingStore) PersistMessage(ctx context.Context, d domain.Draft) (domain.Message, error) {
	c.persists.Add(1)
	return c.Store.PersistMessage(ctx, d)
}

type fixture struct {
	store    *countingStore
	registry *identity.Registry
	index    *rooms.Index
	hub      *Hub
	room     domain.RoomID
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := &countingStore{Store: memory.New()}
	room, err := store.CreateRoom(context.Background(), "general", "alice", []domain.UserID{"bob"})
	require.NoError(t, err)

	registry := identity.NewRegistry()
	index := rooms.NewIndex(store)
	router := fanout.NewRouter(store, registry, index)
	h := New(registry, index, router, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Close(ctx)
	})
	return &fixture{store: store, registry: registry, index: index, hub: h, room: room.ID}
}

// open serves a new fake connection and returns its transport and a channel
// closed when Serve returns.
func (f *fixture) open(t *testing.T, opts ...session.Option) (*testutils.FakeTransport, <-chan struct{}) {
	t.Helper()
	tr := testutils.NewFakeTransport()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.hub.Serve(context.Background(), tr, opts...)
	}()
	return tr, done
}

func ackFor(t *testing.T, tr *testutils.FakeTransport, id string) protocol.Ack {
	t.Helper()
	var found protocol.Ack
	require.Eventually(t, func() bool {
		for _, fr := range tr.Events(t, protocol.EventAck) {
			var a protocol.Ack
			if json.Unmarshal(fr.Data, &a) == nil && a.ID == id {
				found = a
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no ack for %s", id)
	return found
}

func waitForErrorCode(t *testing.T, tr *testutils.FakeTransport, code domain.Code) protocol.Error {
	t.Helper()
	var found protocol.Error
	require.Eventually(t, func() bool {
		for _, fr := range tr.Events(t, protocol.EventError) {
			var e protocol.Error
			if json.Unmarshal(fr.Data, &e) == nil && e.Code == code {
				found = e
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no %s error", code)
	return found
}

func errorFor(t *testing.T, tr *testutils.FakeTransport, id string) protocol.Error {
	t.Helper()
	var found protocol.Error
	require.Eventually(t, func() bool {
		for _, fr := range tr.Events(t, protocol.EventError) {
			var e protocol.Error
			if json.Unmarshal(fr.Data, &e) == nil && e.ID == id {
				found = e
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no error for %s", id)
	return found
}

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func (f *fixture) registerAndJoin(t *testing.T, tr *testutils.FakeTransport, user domain.UserID) {
	t.Helper()
	tr.PushEvent(t, protocol.EventRegisterUser, "reg-"+string(user), protocol.RegisterUser{UserID: user})
	ackFor(t, tr, "reg-"+string(user))
	tr.PushEvent(t, protocol.EventJoinRoom, "join-"+string(user), protocol.RoomRef{RoomID: f.room})
	ackFor(t, tr, "join-"+string(user))
}

func TestHub_RoomScenario(t *testing.T) {
	f := newFixture(t)
	trA, _ := f.open(t)
	trB, _ := f.open(t)

	f.registerAndJoin(t, trA, "alice")
	f.registerAndJoin(t, trB, "bob")

	trA.PushEvent(t, protocol.EventSendRoomMessage, "m1", protocol.SendRoomMessage{RoomID: f.room, SenderID: "alice", Text: "hello"})
	ack := ackFor(t, trA, "m1")
	assert.NotEmpty(t, ack.MessageID)

	for _, tr := range []*testutils.FakeTransport{trA, trB} {
		frames := tr.WaitForEvents(t, protocol.EventReceiveRoomMessage, 1)
		var m domain.Message
		require.NoError(t, json.Unmarshal(frames[0].Data, &m))
		assert.Equal(t, "hello", m.Text)
		assert.Equal(t, domain.UserID("alice"), m.SenderID)
		assert.Equal(t, f.room, m.RoomID)
		assert.Equal(t, ack.MessageID, m.ID)
	}

	history, err := f.store.FetchRoomHistory(context.Background(), f.room, nil)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestHub_UnboundSendIsRejectedBeforePersistence(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.open(t)

	tr.PushEvent(t, protocol.EventSendRoomMessage, "m1", protocol.SendRoomMessage{RoomID: f.room, SenderID: "alice", Text: "hi"})
	e := errorFor(t, tr, "m1")
	assert.Equal(t, domain.CodeNotAuthenticated, e.Code)
	assert.Equal(t, protocol.EventSendRoomMessage, e.Event)

	tr.PushEvent(t, protocol.EventSendDirectMessage, "m2", protocol.SendDirectMessage{ReceiverID: "bob", Text: "hi"})
	assert.Equal(t, domain.CodeNotAuthenticated, errorFor(t, tr, "m2").Code)

	tr.PushEvent(t, protocol.EventJoinRoom, "j1", protocol.RoomRef{RoomID: f.room})
	assert.Equal(t, domain.CodeNotAuthenticated, errorFor(t, tr, "j1").Code)

	assert.Equal(t, int32(0), f.store.persists.Load())
}

func TestHub_JoinWithoutMembership(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.open(t)

	tr.PushEvent(t, protocol.EventRegisterUser, "r", protocol.RegisterUser{UserID: "mallory"})
	ackFor(t, tr, "r")
	tr.PushEvent(t, protocol.EventJoinRoom, "j", protocol.RoomRef{RoomID: f.room})

	assert.Equal(t, domain.CodeNotAMember, errorFor(t, tr, "j").Code)
	assert.Empty(t, f.index.LiveSessionsFor(f.room))
}

func TestHub_DisconnectCleansUp(t *testing.T) {
	f := newFixture(t)
	trA, doneA := f.open(t)
	trB, _ := f.open(t)
	f.registerAndJoin(t, trA, "alice")
	f.registerAndJoin(t, trB, "bob")
	require.Len(t, f.index.LiveSessionsFor(f.room), 2)

	// Abnormal termination: the transport dies underneath the session.
	require.NoError(t, trA.Close("network error"))
	waitClosed(t, doneA)

	assert.False(t, f.registry.IsOnline("alice"))
	assert.Len(t, f.index.LiveSessionsFor(f.room), 1)

	trB.PushEvent(t, protocol.EventSendRoomMessage, "m", protocol.SendRoomMessage{RoomID: f.room, Text: "anyone?"})
	ackFor(t, trB, "m")
	trB.WaitForEvents(t, protocol.EventReceiveRoomMessage, 1)
	assert.Empty(t, trA.Events(t, protocol.EventReceiveRoomMessage))
}

func TestHub_ContextCancelDisconnects(t *testing.T) {
	f := newFixture(t)
	tr := testutils.NewFakeTransport()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.hub.Serve(ctx, tr)
	}()

	tr.PushEvent(t, protocol.EventRegisterUser, "r", protocol.RegisterUser{UserID: "alice"})
	ackFor(t, tr, "r")
	assert.Equal(t, 1, f.hub.ActiveSessions())

	cancel()
	waitClosed(t, done)
	assert.False(t, f.registry.IsOnline("alice"))
	assert.True(t, tr.Closed())
	assert.Equal(t, 0, f.hub.ActiveSessions())
}

func TestHub_LeaveRoomStopsTraffic(t *testing.T) {
	f := newFixture(t)
	trA, _ := f.open(t)
	trB, _ := f.open(t)
	f.registerAndJoin(t, trA, "alice")
	f.registerAndJoin(t, trB, "bob")

	trB.PushEvent(t, protocol.EventLeaveRoom, "l", protocol.RoomRef{RoomID: f.room})
	ackFor(t, trB, "l")

	trA.PushEvent(t, protocol.EventSendRoomMessage, "m", protocol.SendRoomMessage{RoomID: f.room, Text: "bye"})
	ackFor(t, trA, "m")
	trA.WaitForEvents(t, protocol.EventReceiveRoomMessage, 1)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, trB.Events(t, protocol.EventReceiveRoomMessage))
}

func TestHub_DirectMessageAcrossDevices(t *testing.T) {
	f := newFixture(t)
	phone, _ := f.open(t)
	laptop, _ := f.open(t)
	bob, _ := f.open(t)

	for id, tr := range map[string]*testutils.FakeTransport{"p": phone, "l": laptop} {
		tr.PushEvent(t, protocol.EventRegisterUser, id, protocol.RegisterUser{UserID: "alice"})
		ackFor(t, tr, id)
	}
	bob.PushEvent(t, protocol.EventRegisterUser, "b", protocol.RegisterUser{UserID: "bob"})
	ackFor(t, bob, "b")

	phone.PushEvent(t, protocol.EventSendDirectMessage, "dm", protocol.SendDirectMessage{SenderID: "alice", ReceiverID: "bob", Text: "hey"})
	ackFor(t, phone, "dm")

	for _, tr := range []*testutils.FakeTransport{phone, laptop, bob} {
		frames := tr.WaitForEvents(t, protocol.EventReceiveDirectMessage, 1)
		var m domain.Message
		require.NoError(t, json.Unmarshal(frames[0].Data, &m))
		assert.Equal(t, "hey", m.Text)
		assert.Equal(t, domain.UserID("bob"), m.ReceiverID)
	}
}

func TestHub_RejectsBadFrames(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.open(t)

	tr.Push([]byte("not json"))
	tr.PushEvent(t, "dance", "u", map[string]string{})
	tr.PushEvent(t, protocol.EventRegisterUser, "r", protocol.RegisterUser{UserID: "alice"})
	ackFor(t, tr, "r")
	tr.PushEvent(t, protocol.EventSendRoomMessage, "empty", protocol.SendRoomMessage{RoomID: f.room})
	tr.PushEvent(t, protocol.EventSendRoomMessage, "spoof", protocol.SendRoomMessage{RoomID: f.room, SenderID: "bob", Text: "hi"})
	tr.PushEvent(t, protocol.EventRegisterUser, "rebind", protocol.RegisterUser{UserID: "bob"})

	assert.Equal(t, domain.CodeInvalidMessage, errorFor(t, tr, "u").Code)
	assert.Equal(t, domain.CodeInvalidMessage, errorFor(t, tr, "empty").Code)
	assert.Equal(t, domain.CodeNotAuthenticated, errorFor(t, tr, "spoof").Code)
	assert.Equal(t, domain.CodeInvalidMessage, errorFor(t, tr, "rebind").Code)

	require.Eventually(t, func() bool {
		for _, fr := range tr.Events(t, protocol.EventError) {
			var e protocol.Error
			if json.Unmarshal(fr.Data, &e) == nil && e.ID == "" && e.Message == "malformed frame" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(0), f.store.persists.Load())
}

func TestHub_VerifiedIdentity(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.open(t, session.WithVerifiedUser("alice"))

	tr.PushEvent(t, protocol.EventRegisterUser, "bad", protocol.RegisterUser{UserID: "bob"})
	assert.Equal(t, domain.CodeNotAuthenticated, errorFor(t, tr, "bad").Code)

	tr.PushEvent(t, protocol.EventRegisterUser, "good", protocol.RegisterUser{UserID: "alice"})
	ackFor(t, tr, "good")
	assert.True(t, f.registry.IsOnline("alice"))
	assert.False(t, f.registry.IsOnline("bob"))
}

func TestHub_RateLimit(t *testing.T) {
	f := newFixture(t, WithSessionOptions(session.WithRateLimit(0.001, 1)))
	tr, _ := f.open(t)

	tr.PushEvent(t, protocol.EventRegisterUser, "r", protocol.RegisterUser{UserID: "alice"})
	ackFor(t, tr, "r")
	tr.PushEvent(t, protocol.EventJoinRoom, "j", protocol.RoomRef{RoomID: f.room})

	assert.Equal(t, domain.CodeRateLimited, waitForErrorCode(t, tr, domain.CodeRateLimited).Code)
	assert.Empty(t, f.index.LiveSessionsFor(f.room))
}

func TestHub_RateLimitCountsMalformedFrames(t *testing.T) {
	f := newFixture(t, WithSessionOptions(session.WithRateLimit(0.001, 1)))
	tr, _ := f.open(t)

	tr.Push([]byte("{not json"))
	waitForErrorCode(t, tr, domain.CodeInvalidMessage)

	tr.PushEvent(t, protocol.EventRegisterUser, "r", protocol.RegisterUser{UserID: "alice"})
	waitForErrorCode(t, tr, domain.CodeRateLimited)
	assert.Empty(t, tr.Events(t, protocol.EventAck))
	assert.False(t, f.registry.IsOnline("alice"))
}

func TestHub_CloseEndsAllSessions(t *testing.T) {
	f := newFixture(t)
	tr1, done1 := f.open(t)
	tr2, done2 := f.open(t)
	tr1.PushEvent(t, protocol.EventRegisterUser, "r", protocol.RegisterUser{UserID: "alice"})
	ackFor(t, tr1, "r")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.hub.Close(ctx))

	waitClosed(t, done1)
	waitClosed(t, done2)
	assert.True(t, tr2.Closed())
	assert.False(t, f.registry.IsOnline("alice"))
}

func TestHub_ServeAfterCloseRefusesSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.hub.Close(context.Background()))

	tr := testutils.NewFakeTransport()
	done := make(chan struct{})
	go func() {
		f.hub.Serve(context.Background(), tr)
		close(done)
	}()

	waitClosed(t, done)
	assert.True(t, tr.Closed())
	assert.Equal(t, 0, f.hub.ActiveSessions())
}

func TestHub_ServeRacingClose(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.hub.Serve(context.Background(), testutils.NewFakeTransport())
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.hub.Close(ctx))
	wg.Wait()
	assert.Equal(t, 0, f.hub.ActiveSessions())
}
