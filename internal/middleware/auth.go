package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/chatterbox/internal/auth"
	"github.com/nfrund/chatterbox/internal/domain"
)

// UserContextKey holds the caller's domain.UserID once Identity has run.
const UserContextKey = "user"

// Identity resolves the caller with v and stores it under UserContextKey.
// Bad credentials are always rejected; missing credentials only when v
// requires them.
func Identity(v auth.Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, err := v.Verify(c.Request())
			switch {
			case err == nil:
				c.Set(UserContextKey, uid)
				c.SetRequest(c.Request().WithContext(withLogger(c.Request().Context(),
					FromContext(c.Request().Context()).With("userID", uid))))
			case errors.Is(err, auth.ErrMissingCredentials) && !v.Required():
			default:
				slog.Debug("Rejected request credentials", "path", c.Path(), "error", err)
				return c.JSON(http.StatusUnauthorized, errorBody(domain.CodeNotAuthenticated, err.Error()))
			}
			return next(c)
		}
	}
}

// UserFrom returns the caller stored by Identity.
func UserFrom(c echo.Context) (domain.UserID, bool) {
	uid, ok := c.Get(UserContextKey).(domain.UserID)
	return uid, ok && uid != ""
}

// errorBody matches the shape of handlers.ErrorResponse.
func errorBody(code domain.Code, msg string) echo.Map {
	return echo.Map{"code": string(code), "message": msg}
}
