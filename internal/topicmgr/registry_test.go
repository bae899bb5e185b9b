package topicmgr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndList(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Topic{Name: "presence.user.changed", Module: "presence", Description: "presence transitions"}))
	require.NoError(t, r.Register(Topic{Name: "chat.message.persisted", Module: "chat", Description: "stored messages"}))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "chat.message.persisted", list[0].Name)

	assert.Len(t, r.ListByModule("presence"), 1)
	assert.Empty(t, r.ListByModule("none"))

	got, ok := r.Get("presence.user.changed")
	assert.True(t, ok)
	assert.Equal(t, "presence", got.Module)
}

func TestRegistry_RejectsDuplicatesAndBadNames(t *testing.T) {
	r := NewRegistry()
	topic := Topic{Name: "a.b", Description: "x"}
	require.NoError(t, r.Register(topic))

	var terr *TopicError
	err := r.Register(topic)
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, ErrorDuplicateRegistration, terr.Type)

	err = r.Register(Topic{Name: "Bad.Name", Description: "x"})
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, ErrorValidationFailed, terr.Type)

	assert.Error(t, r.Register(Topic{Name: "no.description"}))
	assert.Panics(t, func() { r.MustRegister(topic) })
}
