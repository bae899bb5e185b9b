package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatterbox/internal/domain"
)

// OnlineFriendsLister is implemented by presence.Tracker.
type OnlineFriendsLister interface {
	OnlineFriends(ctx context.Context, userID domain.UserID) ([]domain.UserID, error)
}

// PresenceHandler handles presence-related HTTP requests
type PresenceHandler struct {
	presence OnlineFriendsLister
	friends  domain.FriendStore
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(presence OnlineFriendsLister, friends domain.FriendStore) *PresenceHandler {
	return &PresenceHandler{presence: presence, friends: friends}
}

// Friends handles GET /api/friends/friends, listing every accepted friend of
// the caller whether online or not.
func (h *PresenceHandler) Friends(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	friends, err := h.friends.ListAcceptedFriends(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	if friends == nil {
		friends = []domain.UserID{}
	}
	return c.JSON(http.StatusOK, OnlineFriendsResponse{Friends: friends})
}

// OnlineFriends handles GET /api/friends/online.
func (h *PresenceHandler) OnlineFriends(c echo.Context) error {
	uid, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	friends, err := h.presence.OnlineFriends(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	if friends == nil {
		friends = []domain.UserID{}
	}
	return c.JSON(http.StatusOK, OnlineFriendsResponse{Friends: friends})
}
