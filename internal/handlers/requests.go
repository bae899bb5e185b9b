package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/nfrund/chatterbox/internal/domain"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// SendDirectMessageRequest is the body of POST /api/messages/send.
type SendDirectMessageRequest struct {
	ReceiverID domain.UserID `json:"receiverId" validate:"required"`
	Text       string        `json:"text" validate:"required"`
}

// CreateRoomRequest is the body of POST /api/chat/room.
type CreateRoomRequest struct {
	Name    string          `json:"name" validate:"required,max=200"`
	Members []domain.UserID `json:"members" validate:"omitempty,dive,required"`
}

// JoinRoomRequest is the body of POST /api/chat/room/join.
type JoinRoomRequest struct {
	RoomID domain.RoomID `json:"roomId" validate:"required"`
}
