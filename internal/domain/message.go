package domain

import (
	"time"
)

// UserID is an opaque identifier issued by the external identity store.
type UserID string

// RoomID is an opaque identifier for a group channel.
type RoomID string

// Message is a persisted chat message. Exactly one of RoomID and ReceiverID
// is set.
type Message struct {
	ID         string    `json:"id"`
	SenderID   UserID    `json:"senderId"`
	RoomID     RoomID    `json:"roomId,omitempty"`
	ReceiverID UserID    `json:"receiverId,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IsRoom reports whether the message is room-addressed.
func (m Message) IsRoom() bool {
	return m.RoomID != ""
}

// Draft is a message that has not been persisted yet.
type Draft struct {
	SenderID   UserID
	RoomID     RoomID
	ReceiverID UserID
	Text       string
}

// Validate checks the addressing invariant. Text validation belongs to the
// router.
func (d Draft) Validate() error {
	if d.SenderID == "" {
		return NewError(CodeInvalidMessage, "sender is required")
	}
	if (d.RoomID == "") == (d.ReceiverID == "") {
		return NewError(CodeInvalidMessage, "exactly one of room or receiver must be set")
	}
	return nil
}

// Room is a group channel with durable members.
type Room struct {
	ID        RoomID    `json:"id"`
	Name      string    `json:"name"`
	Members   []UserID  `json:"members"`
	CreatedBy UserID    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// PresenceStatus is the derived online state of a user.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)
