package holder

import (
	"context"
	"strings"

	"github.com/coder/websocket"
)

// broadcastClients sends v to every connected client socket. A failed write
// is logged and the socket is left in place — the read loop for that
// connection will observe the close and send disconnectClientMsg on its own.
func (h *Holder) broadcastClients(ctx context.Context, v any) {
	for id, c := range h.clients {
		if err := sendFrame(ctx, c.Conn, v); err != nil {
			h.log.Warn("client send failed", "clientId", id, "error", err)
		}
	}
}

// broadcastChannels sends v to channel sockets, optionally filtered to a
// single (channelType, channelId) pair for per-channel-bounded fan-out. An
// empty channelType broadcasts to all channel sockets.
func (h *Holder) broadcastChannels(ctx context.Context, v any, channelType, channelID string) {
	for id, c := range h.channels {
		if channelType != "" && c.ScopeKey != "" {
			// ScopeKey already encodes channelType/channelId; the adapter
			// layer is responsible for routing delivery to the right
			// external thread, so the holder only needs to match scope.
			if channelID != "" && !strings.HasSuffix(c.ScopeKey, ":"+channelType+":"+channelID) {
				continue
			}
		}
		if err := sendFrame(ctx, c.Conn, v); err != nil {
			h.log.Warn("channel send failed", "channelConnId", id, "error", err)
		}
	}
}

func (h *Holder) statusFrame() map[string]any {
	return map[string]any{
		"type":        "status",
		"status":      h.status,
		"agentStatus": h.agentStatus,
	}
}

func (h *Holder) broadcastStatus(ctx context.Context) {
	h.broadcastClients(ctx, h.statusFrame())
	if h.statusPublisher != nil {
		h.statusPublisher.Publish(h.sessionID, h.status, h.agentStatus)
	}
}

func (h *Holder) rosterFrame(event string, u ConnectedUser) map[string]any {
	roster := make([]ConnectedUser, 0, len(h.clients))
	for _, c := range h.clients {
		roster = append(roster, ConnectedUser{ID: c.UserID, Name: c.UserName})
	}
	return map[string]any{"type": event, "user": u, "roster": roster}
}

// closeRunner closes the current runner socket with the given code/reason
// and clears it, regardless of why.
func (h *Holder) closeRunner(code websocket.StatusCode, reason string) {
	if h.runner == nil {
		return
	}
	_ = h.runner.Conn.Close(code, reason)
	if h.runner.cancel != nil {
		h.runner.cancel()
	}
	h.runner = nil
}
