package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := Wrap(CodePersistence, "insert message", errors.New("connection reset"))

	assert.ErrorIs(t, err, ErrPersistence)
	assert.NotErrorIs(t, err, ErrInvalidMessage)

	wrapped := fmt.Errorf("send: %w", err)
	assert.ErrorIs(t, wrapped, ErrPersistence)
	assert.Equal(t, CodePersistence, CodeOf(wrapped))
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeDelivery, "write", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "delivery_failure")
	assert.Contains(t, err.Error(), "boom")
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestDraft_Validate(t *testing.T) {
	tests := []struct {
		name    string
		draft   Draft
		wantErr bool
	}{
		{"room", Draft{SenderID: "a", RoomID: "r", Text: "hi"}, false},
		{"direct", Draft{SenderID: "a", ReceiverID: "b", Text: "hi"}, false},
		{"both", Draft{SenderID: "a", RoomID: "r", ReceiverID: "b"}, true},
		{"neither", Draft{SenderID: "a"}, true},
		{"no sender", Draft{RoomID: "r"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMessage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMembersWithCreator(t *testing.T) {
	got := MembersWithCreator("alice", []UserID{"bob", "alice", "", "bob", "carol"})
	assert.Equal(t, []UserID{"alice", "bob", "carol"}, got)
}
