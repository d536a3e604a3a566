// Package holder implements the session state holder: a durable,
// single-writer actor per session that multiplexes client, runner, and
// channel socket roles, owns the prompt queue, and correlates
// request/response pairs with the attached runner. Each Holder runs its own
// goroutine draining an inbox channel — an addressable task with an inbox —
// so mutating operations on one session's state are never interleaved,
// while different sessions proceed in parallel.
package holder

import (
	"encoding/json"
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/journal"
	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// AgentStatus is the runner-driven activity indicator, distinct from the
// session-level store.SessionStatus.
type AgentStatus string

const (
	AgentIdle        AgentStatus = "idle"
	AgentThinking    AgentStatus = "thinking"
	AgentToolCalling AgentStatus = "tool_calling"
	AgentStreaming   AgentStatus = "streaming"
	AgentError       AgentStatus = "error"
	AgentQueued      AgentStatus = "queued"
)

// QueueMode selects how a prompt interacts with prompts already queued or in
// flight for the same scope key.
type QueueMode string

const (
	QueueFollowup QueueMode = "followup"
	QueueCollect  QueueMode = "collect"
	QueueSteer    QueueMode = "steer"
)

// Attachment is a bounded reference to a media object attached to a prompt or
// an inbound channel message.
type Attachment struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// Prompt is one unit of work submitted to the holder's queue.
type Prompt struct {
	ID               string
	Content          string
	Model            string
	ModelPreferences map[string]any
	// Author carries the authoring metadata (id, email, name, avatar) the
	// eventual journal.Message gets stamped with — the submitter's identity,
	// whether that's an authenticated WS client or a channel's resolved
	// sender. Nil when the submitter has none to offer (e.g. a scheduled
	// trigger's orchestrator prompt).
	Author      *journal.Author
	Attachments []Attachment
	QueueMode   QueueMode
	ChannelType scopekey.ChannelType
	ChannelID   string
	ScopeKey    string
	EnqueuedAt  time.Time
}

// ConnectedUser is the roster entry broadcast on user.joined/user.left.
type ConnectedUser struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// PendingQuestion is a runner-posed question awaiting a client/channel
// answer.
type PendingQuestion struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Options   []string  `json:"options,omitempty"`
	AskedAt   time.Time `json:"askedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the question is past its expiry at time t.
func (q PendingQuestion) Expired(t time.Time) bool {
	return !q.ExpiresAt.IsZero() && t.After(q.ExpiresAt)
}

// Frame is the generic inbound/outbound WebSocket envelope: a JSON object
// with a discriminating "type" field. Both directions on both the client and
// runner sockets use this shape; the raw payload is re-decoded into a typed
// struct once Type has been dispatched on.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

// decodeFrame splits a wire message into its discriminator and the full raw
// bytes, so callers can re-unmarshal Raw into the struct matching Type.
func decodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	f.Raw = data
	return f, nil
}

// deadlineFor returns the per-operation request/response timeout.
func deadlineFor(op string) time.Duration {
	switch op {
	case "create-pr", "update-pr":
		return 30 * time.Second
	case "spawn-child":
		return 60 * time.Second
	case "terminate-child":
		return 30 * time.Second
	default:
		return 15 * time.Second
	}
}

// sessionRecordDefaults seeds a store.SessionRecord for a newly created
// holder.
func sessionRecordDefaults(id, ownerID string, purpose store.SessionPurpose) store.SessionRecord {
	now := time.Now()
	return store.SessionRecord{
		ID:           id,
		OwnerID:      ownerID,
		Status:       store.StatusInitializing,
		Purpose:      purpose,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}
