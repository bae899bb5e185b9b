package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/chatterbox/internal/domain"
	"golang.org/x/time/rate"
)

// DefaultRequestsPerSecond applies to the REST API when no limit is configured.
const DefaultRequestsPerSecond = 10

// RateLimiter limits requests per caller, keyed by user id when Identity has
// run and by client IP otherwise.
func RateLimiter(perSecond rate.Limit) echo.MiddlewareFunc {
	if perSecond <= 0 {
		perSecond = DefaultRequestsPerSecond
	}
	config := middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(perSecond),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if uid, ok := UserFrom(c); ok {
				return "user:" + string(uid), nil
			}
			return "ip:" + c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, errorBody(domain.CodeRateLimited, "Too many requests. Please try again later."))
		},
	}
	return middleware.RateLimiterWithConfig(config)
}
