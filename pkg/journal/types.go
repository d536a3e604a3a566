package journal

import "time"

// Role is the author role of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// FormatVersion distinguishes the two message content representations that
// must coexist.
type FormatVersion string

const (
	FormatV1 FormatVersion = "v1"
	FormatV2 FormatVersion = "v2"
)

// PartType enumerates the ordered content part kinds a v2 message carries.
type PartType string

const (
	PartText     PartType = "text"
	PartToolCall PartType = "tool-call"
	PartFinish   PartType = "finish"
	PartError    PartType = "error"
)

// Part is one element of a v2 message's ordered parts sequence. Only the
// fields relevant to Type are populated; the rest are zero values.
type Part struct {
	Type PartType `json:"type"`

	// text
	Text      string `json:"text,omitempty"`
	Streaming bool   `json:"streaming,omitempty"`

	// tool-call
	CallID   string `json:"callId,omitempty"`
	ToolName string `json:"toolName,omitempty"`
	Status   string `json:"status,omitempty"`
	Args     any    `json:"args,omitempty"`
	Result   any    `json:"result,omitempty"`
	ToolErr  string `json:"error,omitempty"`

	// finish
	Reason string `json:"reason,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// Author carries the authoring metadata attached to a message.
type Author struct {
	ID     string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// ChannelMeta records which external channel (if any) originated or should
// mirror this message.
type ChannelMeta struct {
	ChannelType string `json:"channelType,omitempty"`
	ChannelID   string `json:"channelId,omitempty"`
}

// Message is one ordered log entry keyed by (sessionId, messageId).
type Message struct {
	SessionID string        `json:"sessionId"`
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Parts     []Part        `json:"parts,omitempty"`
	Author    *Author       `json:"author,omitempty"`
	Channel   ChannelMeta   `json:"channel,omitzero"`
	CreatedAt time.Time     `json:"createdAt"`
	Format    FormatVersion `json:"format,omitempty"`

	// streamingContent is the v1 side buffer used while an assistant message
	// is still being assembled from stream chunks. It is never persisted to
	// the journal store until the final message arrives — see
	// AppendChunk/FinalizeStreaming.
	streamingContent string
}

// Patch describes a partial update to an existing message, applied by
// Journal.Update. Nil fields are left untouched.
type Patch struct {
	Content *string
	Parts   []Part
	Role    *Role
}

// Clone returns a deep-enough copy of m safe to hand to a reader outside the
// journal: its Parts slice and Author are not shared with the original.
func (m Message) Clone() Message {
	out := m
	if m.Parts != nil {
		out.Parts = make([]Part, len(m.Parts))
		copy(out.Parts, m.Parts)
	}
	if m.Author != nil {
		a := *m.Author
		out.Author = &a
	}
	return out
}
