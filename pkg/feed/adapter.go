package feed

import (
	"context"
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/holder"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// HolderAdapter satisfies holder.StatusPublisher, translating a holder's
// synchronous status-change notification into an async Publish call so a
// slow or stalled NOTIFY never blocks a holder's actor goroutine.
type HolderAdapter struct {
	pub *Publisher
}

func NewHolderAdapter(pub *Publisher) HolderAdapter {
	return HolderAdapter{pub: pub}
}

func (a HolderAdapter) Publish(sessionID string, status store.SessionStatus, agentStatus holder.AgentStatus) {
	evt := SessionStatusEvent{
		Type:        "session.status",
		SessionID:   sessionID,
		Status:      string(status),
		AgentStatus: string(agentStatus),
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.pub.Publish(ctx, evt)
	}()
}
