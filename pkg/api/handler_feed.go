package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// adminFeedHandler upgrades to a read-only WebSocket that streams every
// session's status transitions across the whole process fleet, not just
// this one process's holders — see pkg/feed.
func (s *Server) adminFeedHandler(c *echo.Context) error {
	if s.feed == nil {
		return c.JSON(http.StatusServiceUnavailable, errResponse{Error: "dashboard feed not configured"})
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	s.feed.HandleConnection(c.Request().Context(), conn)
	return nil
}
