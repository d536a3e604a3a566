package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	echo "github.com/labstack/echo/v5"

	"github.com/fluxrelay/fluxrelay/pkg/holder"
	"github.com/fluxrelay/fluxrelay/pkg/journal"
	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
)

// inboundFrame mirrors the client→holder wire shape: a JSON object with a
// type discriminator, re-decoded per type once dispatched on.
type inboundFrame struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

type promptFrame struct {
	Content          string              `json:"content"`
	Model            string              `json:"model,omitempty"`
	ModelPreferences map[string]any      `json:"modelPreferences,omitempty"`
	Attachments      []holder.Attachment `json:"attachments,omitempty"`
	QueueMode        string              `json:"queueMode,omitempty"`
	ChannelType      string              `json:"channelType,omitempty"`
	ChannelID        string              `json:"channelId,omitempty"`
}

type abortFrame struct {
	ChannelType string `json:"channelType,omitempty"`
	ChannelID   string `json:"channelId,omitempty"`
}

type revertFrame struct {
	MessageID string `json:"messageId"`
}

type answerFrame struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type diffFrame struct {
	ChannelType string `json:"channelType,omitempty"`
	ChannelID   string `json:"channelId,omitempty"`
}

type reviewFrame struct {
	ChannelType string `json:"channelType,omitempty"`
	ChannelID   string `json:"channelId,omitempty"`
}

type commandFrame struct {
	Command     string `json:"command"`
	ChannelType string `json:"channelType,omitempty"`
	ChannelID   string `json:"channelId,omitempty"`
}

// sessionWSHandler upgrades the connection and attaches it to the named
// session's holder, per the documented session WebSocket contract. A request
// without a caller identity is refused with HTTP 401 before the upgrade; if
// the holder refuses the client after the upgrade, the socket is closed
// with 1002.
func (s *Server) sessionWSHandler(c *echo.Context) error {
	userID, err := requestUserID(c)
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	sessionID := c.QueryParam("sessionId")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionId is required")
	}

	h, ok := s.holders.Get(sessionID)
	if !ok {
		h, err = s.holders.GetOrCreate(c.Request().Context(), sessionID, userID)
		if err != nil {
			return mapServiceError(c, s.log, err)
		}
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Origin validation is delegated to the oauth2-proxy edge in front
		// of this service, consistent with runner-side auth in pkg/holder.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	userName := requestUserName(c)
	clientID := uuid.New().String()
	ctx, cancel := context.WithCancel(c.Request().Context())
	client := holder.NewClientConn(clientID, userID, userName, conn, cancel)

	if err := h.ConnectClient(ctx, client); err != nil {
		cancel()
		_ = conn.Close(websocket.StatusProtocolError, "rejected")
		return nil
	}

	s.readClientLoop(ctx, conn, h, clientID, userID, userName)
	return nil
}

// readClientLoop blocks reading inbound frames until the socket closes or
// ctx is cancelled, dispatching each to the holder. Unknown types are
// dropped, matching the platform-wide "log and ignore" policy for frame
// parsing errors.
func (s *Server) readClientLoop(ctx context.Context, conn *websocket.Conn, h *holder.Holder, clientID, userID, userName string) {
	defer h.DisconnectClient(clientID)
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var f inboundFrame
		if err := json.Unmarshal(data, &f); err != nil {
			s.log.Warn("malformed client frame", "error", err)
			continue
		}
		f.Raw = data

		switch f.Type {
		case "prompt":
			var p promptFrame
			if err := json.Unmarshal(f.Raw, &p); err != nil {
				s.log.Warn("malformed prompt frame", "error", err)
				continue
			}
			h.SubmitPrompt(holder.Prompt{
				Content:          p.Content,
				Model:            p.Model,
				ModelPreferences: p.ModelPreferences,
				Author:           &journal.Author{ID: userID, Name: userName},
				Attachments:      p.Attachments,
				QueueMode:        holder.QueueMode(orDefault(p.QueueMode, string(holder.QueueFollowup))),
				ChannelType:      scopekey.ChannelType(p.ChannelType),
				ChannelID:        p.ChannelID,
			})
		case "abort":
			var a abortFrame
			_ = json.Unmarshal(f.Raw, &a)
			h.Abort(scopekey.ChannelType(a.ChannelType), a.ChannelID)
		case "revert":
			var r revertFrame
			if err := json.Unmarshal(f.Raw, &r); err == nil && r.MessageID != "" {
				h.Revert(r.MessageID)
			}
		case "answer":
			var ans answerFrame
			if err := json.Unmarshal(f.Raw, &ans); err == nil {
				h.Answer(ans.QuestionID, ans.Answer)
			}
		case "ping":
			// No-op: the transport layer already answers control pings;
			// this application-level ping exists only to keep idle tabs
			// from being treated as silently dead by proxies in between.
		case "diff":
			var d diffFrame
			_ = json.Unmarshal(f.Raw, &d)
			h.Diff(scopekey.ChannelType(d.ChannelType), d.ChannelID)
		case "review":
			var rv reviewFrame
			_ = json.Unmarshal(f.Raw, &rv)
			h.Review(scopekey.ChannelType(rv.ChannelType), rv.ChannelID)
		case "command":
			var cmd commandFrame
			if err := json.Unmarshal(f.Raw, &cmd); err == nil && cmd.Command != "" {
				h.Command(cmd.Command, scopekey.ChannelType(cmd.ChannelType), cmd.ChannelID)
			}
		default:
			s.log.Warn("unknown client frame type", "type", f.Type)
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
