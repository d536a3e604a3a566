package api

import (
	"encoding/json"
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/trigger"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// webhookHandler handles the unauthenticated inbound automation webhook
// path /webhooks/:userId/*. The path itself is the credential: a GUID-ish
// trigger-owned path segment, matched against the stored trigger's
// configured path rather than any bearer token. Provider-specific signature
// verification (Slack/GitHub) lives in pkg/channel's own adapters; this
// endpoint is the generic catch-all for triggers with no upstream provider.
func (s *Server) webhookHandler(c *echo.Context) error {
	userID := c.Param("userId")
	path := "/" + c.Param("*")

	t, err := s.triggers.FindInboundTrigger(c.Request().Context(), userID, path)
	if err != nil {
		return mapServiceError(c, s.log, err)
	}

	var cfg trigger.WebhookConfig
	if err := json.Unmarshal(t.ConfigJSON, &cfg); err != nil {
		return mapServiceError(c, s.log, relayerr.NewValidationError("config", "malformed webhook config"))
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if c.Request().Method != cfg.Method {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "method not allowed for this webhook"})
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "failed to read request body"})
	}
	if len(body) > maxWebhookBody {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "request body too large"})
	}

	deliveryID := c.Request().Header.Get("X-Delivery-Id")
	if deliveryID == "" {
		deliveryID = c.Request().Header.Get("X-Request-Id")
	}
	if deliveryID == "" {
		// No delivery header from the caller: fall back to the body itself
		// as the idempotency seed so an identical retry without any header
		// still dedups rather than double-firing.
		deliveryID = string(body)
	}

	outcome, err := s.triggers.RunWebhook(c.Request().Context(), t, deliveryID, body)
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.JSON(dispatchStatusCode(outcome.Deduped), dispatchResponse{
		ExecutionID: outcome.ExecutionID, SessionID: outcome.SessionID, Status: outcome.Status, Deduped: outcome.Deduped,
	})
}
