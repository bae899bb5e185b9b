// Package protocol defines the JSON frames exchanged with clients over a
// persistent connection.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/nfrund/chatterbox/internal/domain"
)

// Inbound event names.
const (
	EventRegisterUser      = "register_user"
	EventJoinRoom          = "join_room"
	EventLeaveRoom         = "leave_room"
	EventSendRoomMessage   = "send_room_message"
	EventSendDirectMessage = "send_direct_message"
)

// Outbound event names.
const (
	EventReceiveRoomMessage   = "receive_room_message"
	EventReceiveDirectMessage = "receive_direct_message"
	EventPresenceChanged      = "presence_changed"
	EventAck                  = "ack"
	EventError                = "error"
)

// Envelope is an inbound frame. ID is an optional client correlation token
// echoed back in ack and error frames.
type Envelope struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is a frame sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type RegisterUser struct {
	UserID domain.UserID `json:"userId" validate:"required"`
}

type RoomRef struct {
	RoomID domain.RoomID `json:"roomId" validate:"required"`
}

type SendRoomMessage struct {
	RoomID   domain.RoomID `json:"roomId" validate:"required"`
	SenderID domain.UserID `json:"senderId"`
	Text     string        `json:"text" validate:"required"`
}

type SendDirectMessage struct {
	SenderID   domain.UserID `json:"senderId"`
	ReceiverID domain.UserID `json:"receiverId" validate:"required"`
	Text       string        `json:"text" validate:"required"`
}

type PresenceChanged struct {
	UserID domain.UserID         `json:"userId"`
	Status domain.PresenceStatus `json:"status"`
}

type Ack struct {
	ID        string `json:"id,omitempty"`
	Event     string `json:"event"`
	MessageID string `json:"messageId,omitempty"`
}

type Error struct {
	ID      string      `json:"id,omitempty"`
	Event   string      `json:"event,omitempty"`
	Code    domain.Code `json:"code"`
	Message string      `json:"message"`
}

// Encode marshals an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	return json.Marshal(Outbound{Event: event, Data: data})
}

// MessageEvent returns the outbound event name for m.
func MessageEvent(m domain.Message) string {
	if m.IsRoom() {
		return EventReceiveRoomMessage
	}
	return EventReceiveDirectMessage
}

// ErrorFrame builds the error payload for err. Errors without a domain code
// are reported as persistence errors with a generic message so internals
// do not leak to clients.
func ErrorFrame(id, event string, err error) Error {
	var e *domain.Error
	if !errors.As(err, &e) {
		return Error{ID: id, Event: event, Code: domain.CodePersistence, Message: "internal error"}
	}
	return Error{ID: id, Event: event, Code: e.Code, Message: e.Message}
}
