package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatterbox/internal/domain"
	"github.com/nfrund/chatterbox/internal/middleware"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MessagesResponse wraps a history listing.
type MessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}

// RoomsResponse wraps a room listing.
type RoomsResponse struct {
	Rooms []domain.Room `json:"rooms"`
}

// OnlineFriendsResponse lists the caller's friends that are online.
type OnlineFriendsResponse struct {
	Friends []domain.UserID `json:"friends"`
}

// statusFor maps a domain error code to its HTTP status.
func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeInvalidMessage:
		return http.StatusBadRequest
	case domain.CodeNotAuthenticated:
		return http.StatusUnauthorized
	case domain.CodeNotAMember:
		return http.StatusForbidden
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as an ErrorResponse. Errors without a domain code
// are logged and reported as persistence errors without their detail.
func writeError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Code: "not_found", Message: err.Error()})
	}
	var de *domain.Error
	if errors.As(err, &de) {
		if statusFor(de.Code) >= http.StatusInternalServerError {
			middleware.FromContext(c.Request().Context()).Error("Request failed", "path", c.Path(), "error", err)
		}
		return c.JSON(statusFor(de.Code), ErrorResponse{Code: string(de.Code), Message: de.Message})
	}
	middleware.FromContext(c.Request().Context()).Error("Request failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    string(domain.CodePersistence),
		Message: "internal error",
	})
}

// bindRequest binds and validates the request body into v.
func bindRequest(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return domain.Wrap(domain.CodeInvalidMessage, "malformed request body", err)
	}
	if err := c.Validate(v); err != nil {
		slog.Debug("Request validation failed", "path", c.Path(), "error", err)
		return domain.Wrap(domain.CodeInvalidMessage, err.Error(), err)
	}
	return nil
}

// caller returns the authenticated user or a NotAuthenticated error.
func caller(c echo.Context) (domain.UserID, error) {
	uid, ok := middleware.UserFrom(c)
	if !ok {
		return "", domain.NewError(domain.CodeNotAuthenticated, "caller identity required")
	}
	return uid, nil
}
