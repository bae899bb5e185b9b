package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatterbox/internal/domain"
)

// MemberAdder records durable membership. rooms.Index implements it so its
// cache stays warm.
type MemberAdder interface {
	AddDurableMember(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error
}

// RoomHandler creates, joins and lists rooms.
type RoomHandler struct {
	rooms   domain.RoomStore
	members MemberAdder
}

// NewRoomHandler creates a RoomHandler.
func NewRoomHandler(rooms domain.RoomStore, members MemberAdder) *RoomHandler {
	return &RoomHandler{rooms: rooms, members: members}
}

// Create handles POST /api/chat/room. The caller is always a member.
func (h *RoomHandler) Create(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	var req CreateRoomRequest
	if err := bindRequest(c, &req); err != nil {
		return writeError(c, err)
	}

	room, err := h.rooms.CreateRoom(c.Request().Context(), req.Name, uid, req.Members)
	if err != nil {
		if domain.CodeOf(err) == "" {
			err = domain.Wrap(domain.CodePersistence, "create room", err)
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, room)
}

// Join handles POST /api/chat/room/join by adding the caller as a durable
// member. Live delivery still requires a join_room event on a connection.
func (h *RoomHandler) Join(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	var req JoinRoomRequest
	if err := bindRequest(c, &req); err != nil {
		return writeError(c, err)
	}

	if err := h.members.AddDurableMember(c.Request().Context(), req.RoomID, uid); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// List handles GET /api/chat/rooms.
func (h *RoomHandler) List(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	rooms, err := h.rooms.ListRoomsFor(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, domain.Wrap(domain.CodePersistence, "list rooms", err))
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	return c.JSON(http.StatusOK, RoomsResponse{Rooms: rooms})
}
