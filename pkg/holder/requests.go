package holder

import (
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
)

// pendingRequest is one outstanding round-trip to the runner. resolve is
// buffered (capacity 1) so the actor goroutine never blocks delivering a
// result, and timer is an AfterFunc that posts a timeoutMsg back into the
// holder's inbox — the timeout itself is only ever acted on by the actor
// goroutine, keeping the pending map single-writer.
type pendingRequest struct {
	op      string
	resolve chan pendingResult
	timer   *time.Timer
}

type pendingResult struct {
	payload map[string]any
	err     error
}

// PendingRequests is the holder's correlation table, keyed by requestId. It
// is only ever touched from the actor goroutine.
type PendingRequests struct {
	byID map[string]*pendingRequest
}

// NewPendingRequests returns an empty correlation table.
func NewPendingRequests() *PendingRequests {
	return &PendingRequests{byID: make(map[string]*pendingRequest)}
}

// Register creates a pending entry for requestID and arms its deadline. On
// timeout, onTimeout is invoked (expected to push a timeoutMsg into the
// owning holder's inbox). Returns the channel the caller should receive on.
func (p *PendingRequests) Register(requestID, op string, onTimeout func()) <-chan pendingResult {
	resolve := make(chan pendingResult, 1)
	entry := &pendingRequest{op: op, resolve: resolve}
	entry.timer = time.AfterFunc(deadlineFor(op), onTimeout)
	p.byID[requestID] = entry
	return resolve
}

// Resolve delivers a runner response to the waiting caller and clears the
// timer, per the design note that timers must be cancelled on response to
// avoid spurious late rejections.
func (p *PendingRequests) Resolve(requestID string, payload map[string]any) {
	entry, ok := p.byID[requestID]
	if !ok {
		return
	}
	entry.timer.Stop()
	delete(p.byID, requestID)
	entry.resolve <- pendingResult{payload: payload}
}

// Timeout is invoked by the actor when a previously-armed deadline fires. If
// the request already resolved in the interim (a race between the timer
// firing and Resolve being processed), this is a no-op.
func (p *PendingRequests) Timeout(requestID string) {
	entry, ok := p.byID[requestID]
	if !ok {
		return
	}
	delete(p.byID, requestID)
	entry.resolve <- pendingResult{err: relayerr.NewTimeoutError(requestID, entry.op)}
}

// CancelAll stops every outstanding timer and rejects every caller — used on
// runner disconnect so no pending request is left resolving after its
// runner is gone (it will be re-issued against the next runner if the
// caller retries).
func (p *PendingRequests) CancelAll(reason error) {
	for id, entry := range p.byID {
		entry.timer.Stop()
		entry.resolve <- pendingResult{err: reason}
		delete(p.byID, id)
	}
}
