package holder

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/fluxrelay/fluxrelay/pkg/journal"
	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

const supersessionReason = "Replaced by new runner connection"

var (
	errRunnerAuthFailed   = relayerr.NewPermissionError("runner token mismatch")
	errRunnerDisconnected = errors.New("runner disconnected")
)

// onConnectClient admits a new client socket.
// The caller has already authenticated the session cookie/token; only the
// roster bookkeeping and init snapshot happen here.
func (h *Holder) onConnectClient(ctx context.Context, c *clientConn) error {
	h.clients[c.ID] = c
	h.sweepExpiredQuestions()

	if err := sendFrame(ctx, c.Conn, h.initSnapshot()); err != nil {
		delete(h.clients, c.ID)
		return err
	}
	h.broadcastClients(ctx, h.rosterFrame("user.joined", ConnectedUser{ID: c.UserID, Name: c.UserName, JoinedAt: time.Now()}))
	h.appendAudit(ctx, "client.connected", c.UserID)
	return nil
}

func (h *Holder) onDisconnectClient(ctx context.Context, id string) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	h.broadcastClients(ctx, h.rosterFrame("user.left", ConnectedUser{ID: c.UserID, Name: c.UserName}))
}

// onConnectRunner admits a runner connection only if the provided token hash
// matches the holder's current one. On success any previously attached
// runner is superseded with a normal close carrying the supersession reason;
// on failure the caller is expected to close with code 1002.
func (h *Holder) onConnectRunner(ctx context.Context, c *runnerConn, providedHash string) error {
	if subtle.ConstantTimeCompare([]byte(providedHash), []byte(h.runnerTokenHash)) != 1 {
		return errRunnerAuthFailed
	}
	if h.runner != nil {
		h.closeRunner(websocket.StatusNormalClosure, supersessionReason)
	}
	h.runner = c
	h.agentStatus = AgentIdle
	h.status = store.StatusRunning
	h.broadcastStatus(ctx)
	h.appendAudit(ctx, "runner.connected", "")
	h.dispatchIfIdle(ctx)
	return nil
}

func (h *Holder) onDisconnectRunner(ctx context.Context, clean bool, reason string) {
	if h.runner == nil {
		return
	}
	h.runner = nil
	h.pending.CancelAll(errRunnerDisconnected)
	if clean {
		h.agentStatus = AgentIdle
		h.status = store.StatusIdle
	} else {
		h.agentStatus = AgentError
		h.status = store.StatusError
	}
	h.broadcastStatus(ctx)
	h.appendAudit(ctx, "runner.disconnected", reason)
}

func (h *Holder) onConnectChannel(ctx context.Context, c *channelConn) error {
	h.channels[c.ID] = c
	h.appendAudit(ctx, "channel.connected", c.ScopeKey)
	return nil
}

func (h *Holder) onDisconnectChannel(id string) {
	delete(h.channels, id)
}

// onSubmitPrompt enqueues p and dispatches immediately if the agent is idle.
func (h *Holder) onSubmitPrompt(ctx context.Context, p Prompt) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.EnqueuedAt = time.Now()

	debounce := h.collectDebounce(ctx, p.ScopeKey)

	if p.QueueMode == QueueSteer && h.inFlight != nil {
		h.sendToRunner(ctx, map[string]any{"type": "abort"})
	}

	h.queue.Enqueue(p, debounce, p.EnqueuedAt)
	if h.inFlight == nil {
		h.dispatchIfIdle(ctx)
	} else {
		h.agentStatus = AgentQueued
		h.broadcastStatus(ctx)
	}
}

func (h *Holder) collectDebounce(ctx context.Context, scopeKey string) time.Duration {
	if scopeKey == "" {
		return 0
	}
	binding, err := h.store.ChannelBindings.Get(ctx, scopeKey)
	if err != nil {
		return 0
	}
	return time.Duration(binding.CollectDebounceMs) * time.Millisecond
}

// dispatchIfIdle forwards the head queued prompt to the runner when nothing
// is currently in flight.
func (h *Holder) dispatchIfIdle(ctx context.Context) {
	if h.runner == nil || h.inFlight != nil {
		return
	}
	p, ok := h.queue.Dequeue()
	if !ok {
		h.agentStatus = AgentIdle
		h.broadcastStatus(ctx)
		return
	}
	h.inFlight = &p
	h.agentStatus = AgentThinking
	h.broadcastStatus(ctx)

	userMsg := journal.Message{
		ID:        uuid.New().String(),
		SessionID: h.sessionID,
		Role:      journal.RoleUser,
		Content:   p.Content,
		Author:    p.Author,
		Channel:   journal.ChannelMeta{ChannelType: string(p.ChannelType), ChannelID: p.ChannelID},
		CreatedAt: p.EnqueuedAt,
		Format:    journal.FormatV2,
	}
	h.appendMessage(ctx, userMsg)

	h.sendToRunner(ctx, map[string]any{
		"type":             "prompt",
		"id":               p.ID,
		"content":          p.Content,
		"model":            p.Model,
		"modelPreferences": p.ModelPreferences,
		"attachments":      p.Attachments,
	})
}

func (h *Holder) onAbort(ctx context.Context) {
	h.sendToRunner(ctx, map[string]any{"type": "abort"})
}

func (h *Holder) onAnswer(ctx context.Context, questionID, answer string) {
	if _, ok := h.pendingQuestions[questionID]; !ok {
		return
	}
	delete(h.pendingQuestions, questionID)
	h.sendToRunner(ctx, map[string]any{"type": "answer", "questionId": questionID, "answer": answer})
	h.broadcastClients(ctx, map[string]any{"type": "status", "questionResolved": questionID})
}

func (h *Holder) onDiff(ctx context.Context) {
	h.sendToRunner(ctx, map[string]any{"type": "diff"})
}

func (h *Holder) onReview(ctx context.Context) {
	h.sendToRunner(ctx, map[string]any{"type": "review"})
}

func (h *Holder) onCommand(ctx context.Context, command string) {
	h.sendToRunner(ctx, map[string]any{"type": "command", "command": command})
}

func (h *Holder) onRevert(ctx context.Context, messageID string) {
	h.journal.Remove([]string{messageID})
	_ = h.store.Messages.Remove(ctx, h.sessionID, []string{messageID})
	h.broadcastClients(ctx, map[string]any{"type": "messages.removed", "ids": []string{messageID}})
}

// onRunnerFrame dispatches one decoded frame received from the attached
// runner. Unknown types are logged and dropped.
func (h *Holder) onRunnerFrame(ctx context.Context, f Frame) {
	switch f.Type {
	case "stream":
		h.handleStream(ctx, f)
	case "result":
		h.handleResult(ctx, f)
	case "tool":
		h.handleTool(ctx, f)
	case "question":
		h.handleQuestion(ctx, f)
	case "agentStatus":
		h.handleAgentStatus(ctx, f)
	case "diff", "review-result", "models", "git-state", "pr-created", "files-changed", "child-session", "title":
		// Pass-through telemetry: forwarded to clients verbatim, no holder
		// state change required.
		h.forwardRaw(ctx, f)
	case "response":
		h.handleResponse(f)
	default:
		h.log.Warn("unknown runner frame type", "type", f.Type)
	}
}

type streamPayload struct {
	MessageID string `json:"messageId"`
	Chunk     string `json:"chunk"`
}

func (h *Holder) handleStream(ctx context.Context, f Frame) {
	var p streamPayload
	if err := json.Unmarshal(f.Raw, &p); err != nil {
		h.log.Warn("malformed stream frame", "error", err)
		return
	}
	// The first chunk for a message arrives before any result frame creates
	// it, so the journal entry has to be seeded here — otherwise AppendChunk
	// has nothing to accumulate into and every chunk is silently dropped.
	if _, ok := h.journal.Get(p.MessageID); !ok {
		_ = h.journal.Append(journal.Message{
			ID:        p.MessageID,
			SessionID: h.sessionID,
			Role:      journal.RoleAssistant,
			CreatedAt: time.Now(),
			Format:    journal.FormatV2,
		})
	}
	if err := h.journal.AppendChunk(p.MessageID, p.Chunk); err != nil {
		return
	}
	h.agentStatus = AgentStreaming
	h.broadcastClients(ctx, map[string]any{"type": "chunk", "messageId": p.MessageID, "chunk": p.Chunk})
}

type resultPayload struct {
	MessageID string          `json:"messageId"`
	Content   string          `json:"content"`
	Parts     []journal.Part  `json:"parts,omitempty"`
}

func (h *Holder) handleResult(ctx context.Context, f Frame) {
	var p resultPayload
	if err := json.Unmarshal(f.Raw, &p); err != nil {
		h.log.Warn("malformed result frame", "error", err)
		return
	}
	_ = h.journal.FinalizeStreaming(p.MessageID)

	msg := journal.Message{
		ID:        p.MessageID,
		SessionID: h.sessionID,
		Role:      journal.RoleAssistant,
		Content:   p.Content,
		Parts:     p.Parts,
		CreatedAt: time.Now(),
		Format:    journal.FormatV2,
	}
	if existing, ok := h.journal.Get(p.MessageID); ok {
		content := p.Content
		patched, err := h.journal.Update(p.MessageID, journal.Patch{Content: &content, Parts: p.Parts})
		if err != nil {
			msg = existing
		} else {
			msg = patched
			h.persistMessage(ctx, msg)
		}
	} else {
		h.appendMessage(ctx, msg)
	}

	h.broadcastClients(ctx, map[string]any{"type": "message", "message": msg})
	h.inFlight = nil
	h.agentStatus = AgentIdle
	h.broadcastStatus(ctx)
	h.dispatchIfIdle(ctx)
}

func (h *Holder) handleTool(ctx context.Context, f Frame) {
	var m journal.Message
	if err := json.Unmarshal(f.Raw, &m); err != nil {
		h.log.Warn("malformed tool frame", "error", err)
		return
	}
	m.SessionID = h.sessionID
	m.Role = journal.RoleTool
	h.scanForChildSessions(m)
	h.appendMessage(ctx, m)
	h.broadcastClients(ctx, map[string]any{"type": "message", "message": m})
	h.agentStatus = AgentToolCalling
	h.broadcastStatus(ctx)
}

func (h *Holder) handleQuestion(ctx context.Context, f Frame) {
	var q PendingQuestion
	if err := json.Unmarshal(f.Raw, &q); err != nil {
		h.log.Warn("malformed question frame", "error", err)
		return
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	q.AskedAt = time.Now()
	h.pendingQuestions[q.ID] = &q
	h.broadcastClients(ctx, map[string]any{"type": "question", "question": q})
}

type agentStatusPayload struct {
	Status AgentStatus `json:"status"`
}

func (h *Holder) handleAgentStatus(ctx context.Context, f Frame) {
	var p agentStatusPayload
	if err := json.Unmarshal(f.Raw, &p); err != nil {
		return
	}
	h.agentStatus = p.Status
	h.broadcastStatus(ctx)
}

func (h *Holder) forwardRaw(ctx context.Context, f Frame) {
	var generic map[string]any
	if err := json.Unmarshal(f.Raw, &generic); err != nil {
		return
	}
	h.broadcastClients(ctx, generic)
}

func (h *Holder) handleResponse(f Frame) {
	var generic map[string]any
	if err := json.Unmarshal(f.Raw, &generic); err != nil {
		return
	}
	h.pending.Resolve(f.RequestID, generic)
}

// onRegisterRequest arms a correlation entry for a holder-initiated request
// and forwards it to the runner. The caller (RequestRunner) receives the
// resolve channel over ready rather than passing one in, since only the
// actor may create pendingRequest entries.
func (h *Holder) onRegisterRequest(ctx context.Context, m registerRequestMsg) {
	requestID := m.requestID
	resolve := h.pending.Register(requestID, m.op, func() {
		h.send(requestTimeoutMsg{requestID: requestID})
	})
	h.sendToRunner(ctx, map[string]any{
		"type":      m.op,
		"requestId": requestID,
		"payload":   m.payload,
	})
	m.ready <- resolve
}

// sendToRunner writes v to the attached runner, if any.
func (h *Holder) sendToRunner(ctx context.Context, v any) {
	if h.runner == nil {
		return
	}
	if err := sendFrame(ctx, h.runner.Conn, v); err != nil {
		h.log.Warn("runner send failed", "error", err)
	}
}

func (h *Holder) appendMessage(ctx context.Context, m journal.Message) {
	if err := h.journal.Append(m); err != nil {
		h.log.Warn("journal append failed", "error", err)
		return
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := h.store.Messages.Append(ctx, store.MessageRow{
		SessionID: h.sessionID, ID: m.ID, CreatedAt: m.CreatedAt, Payload: payload,
	}); err != nil {
		h.log.Warn("persist message failed", "error", err)
	}
}

// persistMessage rewrites the stored payload for an already-journaled
// message, used when a streamed message's final content replaces what was
// appended mid-stream.
func (h *Holder) persistMessage(ctx context.Context, m journal.Message) {
	payload, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := h.store.Messages.Update(ctx, h.sessionID, m.ID, payload); err != nil {
		h.log.Warn("persist message update failed", "error", err)
	}
}

func (h *Holder) appendAudit(ctx context.Context, kind, detail string) {
	_ = h.store.AuditLog.Append(ctx, store.AuditEntry{
		SessionID: h.sessionID, At: time.Now(), Kind: kind, Detail: detail,
	})
}

func (h *Holder) initSnapshot() map[string]any {
	return map[string]any{
		"type":        "init",
		"status":      h.status,
		"agentStatus": h.agentStatus,
		"messages":    h.journal.List(),
		"questions":   h.pendingQuestionsList(),
		"childSessions": h.childSessions,
	}
}

func (h *Holder) pendingQuestionsList() []PendingQuestion {
	out := make([]PendingQuestion, 0, len(h.pendingQuestions))
	for _, q := range h.pendingQuestions {
		out = append(out, *q)
	}
	return out
}

// handleSweepQuestions removes expired pending questions and tells clients
// which were dropped.
func (h *Holder) handleSweepQuestions() {
	h.sweepExpiredQuestions()
}

func (h *Holder) sweepExpiredQuestions() {
	now := time.Now()
	var expired []string
	for id, q := range h.pendingQuestions {
		if q.Expired(now) {
			expired = append(expired, id)
			delete(h.pendingQuestions, id)
		}
	}
	for _, id := range expired {
		h.broadcastClients(context.Background(), map[string]any{"type": "status", "questionExpired": id})
	}
}
