// Package journal implements the append-only per-session message log:
// append/update/remove/list, the v1/v2 format split, in-place streaming
// extension, and the content-wins update rule. A Journal is owned
// exclusively by one session holder (pkg/holder) — it is not safe to share
// a *Journal across sessions or goroutines without the caller serializing
// access, mirroring the single-writer model used there.
package journal

import (
	"fmt"
)

// Journal holds one session's ordered message log in memory. Persistence is
// the caller's responsibility (pkg/store) — Journal only maintains order and
// the content-wins/streaming invariants; Load seeds it from a persisted list
// on holder init/replay.
type Journal struct {
	sessionID string
	order     []string // message IDs in insertion order
	byID      map[string]*Message
}

// New creates an empty journal for a session.
func New(sessionID string) *Journal {
	return &Journal{
		sessionID: sessionID,
		byID:      make(map[string]*Message),
	}
}

// Load seeds the journal from a persisted, already-ordered message list
// (replay path on holder restart). It does not validate against the
// content-wins rule — persisted order is trusted verbatim.
func (j *Journal) Load(messages []Message) {
	j.order = j.order[:0]
	j.byID = make(map[string]*Message, len(messages))
	for i := range messages {
		m := messages[i]
		j.byID[m.ID] = &m
		j.order = append(j.order, m.ID)
	}
}

// Append adds a new message to the tail of the log. Returns an error if the
// message ID already exists in this session (identifiers must be unique
// within a session).
func (j *Journal) Append(m Message) error {
	if m.SessionID == "" {
		m.SessionID = j.sessionID
	}
	if _, exists := j.byID[m.ID]; exists {
		return fmt.Errorf("journal: message %s already exists in session %s", m.ID, j.sessionID)
	}
	cp := m.Clone()
	j.byID[m.ID] = &cp
	j.order = append(j.order, m.ID)
	return nil
}

// Update applies patch to an existing message, enforcing the content-wins
// rule on every content patch: if the incoming content is shorter than the
// current content, the longer current content is kept. This prevents a delayed tool-status
// broadcast from truncating text already assembled from stream chunks.
func (j *Journal) Update(id string, patch Patch) (Message, error) {
	m, ok := j.byID[id]
	if !ok {
		return Message{}, fmt.Errorf("journal: message %s not found", id)
	}

	if patch.Content != nil {
		incoming := *patch.Content
		if len(incoming) >= len(m.Content) {
			m.Content = incoming
		}
		// else: content-wins — keep the longer current content, drop the
		// shorter incoming update.
	}
	if patch.Parts != nil {
		m.Parts = patch.Parts
	}
	if patch.Role != nil {
		m.Role = *patch.Role
	}
	return m.Clone(), nil
}

// AppendChunk accumulates a streaming text chunk into the message identified
// by id, dispatching on format:
//
//   - v1: the chunk is appended to a side buffer (streamingContent) that is
//     not written into Content until FinalizeStreaming is called, so readers
//     of Content never see partial v1 text.
//   - v2: the chunk mutates the last Part in place if it is a streaming text
//     part; otherwise a new streaming text part is appended.
func (j *Journal) AppendChunk(id string, chunk string) error {
	m, ok := j.byID[id]
	if !ok {
		return fmt.Errorf("journal: message %s not found", id)
	}

	switch m.Format {
	case FormatV2:
		if n := len(m.Parts); n > 0 && m.Parts[n-1].Type == PartText && m.Parts[n-1].Streaming {
			m.Parts[n-1].Text += chunk
		} else {
			m.Parts = append(m.Parts, Part{Type: PartText, Text: chunk, Streaming: true})
		}
	default: // v1 and unset default to v1 semantics
		m.streamingContent += chunk
	}
	return nil
}

// FinalizeStreaming closes out v1 streaming accumulation: the side buffer is
// committed to Content (respecting content-wins against whatever Content
// already held) and cleared. For v2 the terminal text part's Streaming flag
// is cleared. Safe to call on a message that never streamed.
func (j *Journal) FinalizeStreaming(id string) error {
	m, ok := j.byID[id]
	if !ok {
		return fmt.Errorf("journal: message %s not found", id)
	}

	switch m.Format {
	case FormatV2:
		if n := len(m.Parts); n > 0 && m.Parts[n-1].Type == PartText {
			m.Parts[n-1].Streaming = false
		}
	default:
		if len(m.streamingContent) >= len(m.Content) {
			m.Content = m.streamingContent
		}
		m.streamingContent = ""
	}
	return nil
}

// Remove deletes the given message IDs from the log.
func (j *Journal) Remove(ids []string) {
	if len(ids) == 0 {
		return
	}
	toRemove := make(map[string]bool, len(ids))
	for _, id := range ids {
		toRemove[id] = true
		delete(j.byID, id)
	}
	kept := j.order[:0:0]
	for _, id := range j.order {
		if !toRemove[id] {
			kept = append(kept, id)
		}
	}
	j.order = kept
}

// Get returns a copy of the message with the given ID.
func (j *Journal) Get(id string) (Message, bool) {
	m, ok := j.byID[id]
	if !ok {
		return Message{}, false
	}
	return m.Clone(), true
}

// List returns all messages in journal (append) order.
func (j *Journal) List() []Message {
	out := make([]Message, 0, len(j.order))
	for _, id := range j.order {
		if m, ok := j.byID[id]; ok {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Len returns the number of messages currently in the journal.
func (j *Journal) Len() int {
	return len(j.order)
}
