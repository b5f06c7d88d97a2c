package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/haukkala/procpilot/internal"
	"github.com/labstack/echo/v4"
)

// APIKeyMiddleware guards the API with a shared key header. When no
// key is configured the check is skipped (local development).
func APIKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}
			provided := c.Request().Header.Get(internal.APIKeyHeader)
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
			}
			return next(c)
		}
	}
}
