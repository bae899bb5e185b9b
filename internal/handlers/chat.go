package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatterbox/internal/domain"
)

// Messenger reads history and sends direct messages through the router so
// REST sends reach live sessions too.
type Messenger interface {
	RoomHistory(ctx context.Context, roomID domain.RoomID, since *time.Time) ([]domain.Message, error)
	DirectHistory(ctx context.Context, a, b domain.UserID) ([]domain.Message, error)
	SendDirectMessage(ctx context.Context, senderID, receiverID domain.UserID, text string) (domain.Message, error)
}

// ChatHandler serves message history and sends.
type ChatHandler struct {
	messenger  Messenger
	membership domain.MembershipStore
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(messenger Messenger, membership domain.MembershipStore) *ChatHandler {
	return &ChatHandler{messenger: messenger, membership: membership}
}

// RoomHistory handles GET /api/chat/messages/:roomId. The optional since
// query parameter is an exclusive RFC 3339 lower bound.
func (h *ChatHandler) RoomHistory(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	roomID := domain.RoomID(c.Param("roomId"))

	var since *time.Time
	if raw := c.QueryParam("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return writeError(c, domain.Wrap(domain.CodeInvalidMessage, "since must be an RFC 3339 timestamp", err))
		}
		since = &t
	}

	ctx := c.Request().Context()
	ok, err := h.membership.IsDurableMember(ctx, uid, roomID)
	if err != nil {
		return writeError(c, domain.Wrap(domain.CodePersistence, "membership lookup failed", err))
	}
	if !ok {
		return writeError(c, domain.ErrNotAMember)
	}

	msgs, err := h.messenger.RoomHistory(ctx, roomID, since)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, MessagesResponse{Messages: orEmpty(msgs)})
}

// DirectHistory handles GET /api/messages/history/:userId.
func (h *ChatHandler) DirectHistory(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	other := domain.UserID(c.Param("userId"))
	if other == "" {
		return writeError(c, domain.NewError(domain.CodeInvalidMessage, "userId is required"))
	}

	msgs, err := h.messenger.DirectHistory(c.Request().Context(), uid, other)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, MessagesResponse{Messages: orEmpty(msgs)})
}

// SendDirectMessage handles POST /api/messages/send.
func (h *ChatHandler) SendDirectMessage(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	var req SendDirectMessageRequest
	if err := bindRequest(c, &req); err != nil {
		return writeError(c, err)
	}

	msg, err := h.messenger.SendDirectMessage(c.Request().Context(), uid, req.ReceiverID, req.Text)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func orEmpty(msgs []domain.Message) []domain.Message {
	if msgs == nil {
		return []domain.Message{}
	}
	return msgs
}
