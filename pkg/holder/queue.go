package holder

import "time"

// PromptQueue implements the followup/collect/steer semantics. It is owned
// exclusively by a Holder's actor goroutine — callers never touch it
// directly, they send prompts through the holder's inbox.
type PromptQueue struct {
	items []Prompt
}

// NewPromptQueue returns an empty queue.
func NewPromptQueue() *PromptQueue {
	return &PromptQueue{}
}

// Len reports the number of queued prompts (not counting one in flight).
func (q *PromptQueue) Len() int { return len(q.items) }

// Enqueue adds p according to its QueueMode.
//
//   - followup: appended to the tail.
//   - collect: if the tail entry shares p's ScopeKey and was enqueued within
//     debounce of now, its content is extended in place rather than adding a
//     new entry; otherwise behaves like followup.
//   - steer: inserted at head, ahead of every other queued prompt — the
//     caller is responsible for sending `abort` to the runner and clearing
//     the chunk buffer before the runner picks this up.
func (q *PromptQueue) Enqueue(p Prompt, debounce time.Duration, now time.Time) {
	switch p.QueueMode {
	case QueueCollect:
		if n := len(q.items); n > 0 {
			tail := &q.items[n-1]
			if tail.ScopeKey == p.ScopeKey && now.Sub(tail.EnqueuedAt) <= debounce {
				tail.Content += p.Content
				tail.Attachments = append(tail.Attachments, p.Attachments...)
				tail.EnqueuedAt = now
				return
			}
		}
		q.items = append(q.items, p)
	case QueueSteer:
		q.items = append([]Prompt{p}, q.items...)
	default: // followup
		q.items = append(q.items, p)
	}
}

// Dequeue removes and returns the head prompt, if any.
func (q *PromptQueue) Dequeue() (Prompt, bool) {
	if len(q.items) == 0 {
		return Prompt{}, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// DropAll clears the queue, discarding every queued prompt.
func (q *PromptQueue) DropAll() {
	q.items = nil
}
