package runnerbridge

import (
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
)

// deadlineFor returns the per-operation request/response timeout, mirroring
// pkg/holder's deadlineFor — the bridge and the holder agree on the same
// budget for the same operation names so neither side times out first on
// the common case.
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

type pendingResult struct {
	payload map[string]any
	err     error
}

type pendingRequest struct {
	op      string
	resolve chan pendingResult
	timer   *time.Timer
}

// pendingRequests is the bridge's outstanding-request correlation table for
// operations the runner initiates against the holder/gateway (spawn-child,
// terminate-child, create-pr, update-pr, memory R/W, workflow/trigger/
// execution API, mailbox, task board, channel-reply). It is guarded by the
// owning Client's single reader/writer goroutine (the frame-dispatch loop),
// the same single-writer discipline pkg/holder.PendingRequests relies on.
type pendingRequests struct {
	byID map[string]*pendingRequest
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{byID: make(map[string]*pendingRequest)}
}

func (p *pendingRequests) register(requestID, op string, onTimeout func()) <-chan pendingResult {
	resolve := make(chan pendingResult, 1)
	entry := &pendingRequest{op: op, resolve: resolve}
	entry.timer = time.AfterFunc(deadlineFor(op), onTimeout)
	p.byID[requestID] = entry
	return resolve
}

func (p *pendingRequests) resolve(requestID string, payload map[string]any) {
	entry, ok := p.byID[requestID]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(p.byID, requestID)
	entry.resolve <- pendingResult{payload: payload}
}

func (p *pendingRequests) timeout(requestID string) {
	entry, ok := p.byID[requestID]
	if !ok {
		return
	}
	delete(p.byID, requestID)
	entry.resolve <- pendingResult{err: relayerr.NewTimeoutError(requestID, entry.op)}
}

// cancelAll rejects every outstanding caller, used when the connection drops
// — a caller blocked on a request gets an error rather than hanging across a
// reconnect, and may retry against the new connection.
func (p *pendingRequests) cancelAll(reason error) {
	for id, entry := range p.byID {
		entry.timer.Stop()
		entry.resolve <- pendingResult{err: reason}
		delete(p.byID, id)
	}
}
