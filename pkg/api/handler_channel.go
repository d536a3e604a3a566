package api

import (
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
)

const maxChannelBody = 1 << 20 // 1 MiB

// channelWebhookHandler is the unauthenticated-by-header inbound path every
// channel adapter's webhook lands on: /channels/:type. Per-adapter signature
// verification (Slack's v0 HMAC, GitHub's X-Hub-Signature-256, the generic
// API adapter's X-Signature) happens inside pkg/router.Dispatch, not here —
// this handler's only job is reading the body and handing raw bytes across.
func (s *Server) channelWebhookHandler(c *echo.Context) error {
	if s.router == nil {
		return c.JSON(http.StatusServiceUnavailable, errResponse{Error: "channel routing not configured"})
	}

	ct := scopekey.ChannelType(c.Param("type"))
	secret := s.channelSecrets[ct]

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxChannelBody+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "failed to read request body"})
	}
	if len(body) > maxChannelBody {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "request body too large"})
	}

	accepted, err := s.router.Dispatch(c.Request().Context(), ct, c.Request().Header, body, secret)
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	if !accepted {
		return c.NoContent(http.StatusOK)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}
