package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// ctxUserID and ctxUserName are the echo.Context keys requireUser stores the
// resolved caller under.
const (
	ctxUserID   = "userID"
	ctxUserName = "userName"
)

// requireUser resolves the caller's identity from the headers the upstream
// oauth2-proxy attaches, rejecting the request with 401 if neither is
// present. Unlike the teacher's extractAuthor (which falls back to a
// placeholder "api-client" string for an unauthenticated trigger HTTP API),
// every route behind this middleware is tenant-scoped, so a missing
// identity is a hard failure rather than a default.
func requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		userID := c.Request().Header.Get("X-Forwarded-User")
		if userID == "" {
			userID = c.Request().Header.Get("X-Forwarded-Email")
		}
		if userID == "" {
			return c.JSON(http.StatusUnauthorized, errResponse{Error: "authentication required"})
		}
		c.Set(ctxUserID, userID)

		userName := c.Request().Header.Get("X-Forwarded-Preferred-Username")
		if userName == "" {
			userName = userID
		}
		c.Set(ctxUserName, userName)
		return next(c)
	}
}
