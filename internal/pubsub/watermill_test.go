package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/nfrund/chatterbox/internal/topicmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingPayload struct {
	From string `json:"from"`
	Seq  int    `json:"seq,omitempty"`
}

var pingEvent = NewEvent[pingPayload]("test.ping", "ping used by bus tests")

func TestNewEvent_RegistersTopic(t *testing.T) {
	topic, ok := topicmgr.Default().Get("test.ping")
	require.True(t, ok)
	assert.Equal(t, "test", topic.Module)
	assert.Equal(t, "pingPayload", topic.PayloadType)
	assert.Equal(t, []string{"from", "seq"}, topic.PayloadFields)
	assert.Equal(t, "test.ping", pingEvent.Name())
}

func TestWatermillBridge_TypedRoundTrip(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan pingPayload, 1)
	require.NoError(t, Subscribe(ctx, bridge, pingEvent, func(ctx context.Context, p pingPayload) error {
		received <- p
		return nil
	}))

	require.NoError(t, Publish(ctx, bridge, pingEvent, "alice", pingPayload{From: "alice", Seq: 3}))

	select {
	case p := <-received:
		assert.Equal(t, pingPayload{From: "alice", Seq: 3}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillBridge_MetadataMapping(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	require.NoError(t, bridge.Subscribe(ctx, "raw.topic", func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bridge.Publish(ctx, Message{
		Topic:    "raw.topic",
		UserID:   "bob",
		Payload:  []byte(`{}`),
		Metadata: map[string]string{"trace": "abc"},
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "raw.topic", msg.Topic)
		assert.Equal(t, "bob", msg.UserID)
		assert.Equal(t, "abc", msg.Metadata["trace"])
		assert.NotContains(t, msg.Metadata, "user_id")
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}
