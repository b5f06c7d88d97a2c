package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/haukkala/procpilot/internal"
)

func TestAPIKeyMiddleware(t *testing.T) {
	okHandler := func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}

	t.Run("success - matching key passes", func(t *testing.T) {
		// arrange
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/processes", nil)
		req.Header.Set(internal.APIKeyHeader, "secret")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		// act
		err := APIKeyMiddleware("secret")(okHandler)(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
	t.Run("failure - wrong key rejected", func(t *testing.T) {
		// arrange
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/processes", nil)
		req.Header.Set(internal.APIKeyHeader, "wrong")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		// act
		err := APIKeyMiddleware("secret")(okHandler)(c)

		// assert
		var httpErr *echo.HTTPError
		assert.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})
	t.Run("failure - missing key rejected", func(t *testing.T) {
		// arrange
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/processes", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		// act
		err := APIKeyMiddleware("secret")(okHandler)(c)

		// assert
		var httpErr *echo.HTTPError
		assert.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})
	t.Run("success - check skipped when no key configured", func(t *testing.T) {
		// arrange
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/processes", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		// act
		err := APIKeyMiddleware("")(okHandler)(c)

		// assert
		assert.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
