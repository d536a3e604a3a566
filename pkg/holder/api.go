package holder

import (
	"context"

	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
)

// The methods in this file are the only supported way to interact with a
// running Holder from outside its own goroutine (pkg/gateway, pkg/channel,
// pkg/trigger, pkg/workflow). Each one posts a message to the inbox and, for
// operations the caller needs an outcome from, waits on a result channel —
// the actor goroutine is the only thing that ever reads or mutates Holder
// fields directly.

// ConnectClient admits a UI/chat socket. The returned error, if any, is the
// caller's cue to close the connection rather than proceed.
func (h *Holder) ConnectClient(ctx context.Context, c *clientConn) error {
	result := make(chan error, 1)
	h.send(connectClientMsg{conn: c, result: result})
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DisconnectClient notifies the holder that a client socket's read loop has
// ended. Fire-and-forget: the caller has already torn down its own side of
// the connection.
func (h *Holder) DisconnectClient(id string) {
	h.send(disconnectClientMsg{id: id})
}

// ConnectRunner admits a sandbox runner socket, authenticating providedHash
// against the session's runner token. A non-nil error means the caller must
// close the socket with code 1002 rather than hand it to the holder.
func (h *Holder) ConnectRunner(ctx context.Context, c *runnerConn, providedHash string) error {
	result := make(chan error, 1)
	h.send(connectRunnerMsg{conn: c, providedHash: providedHash, result: result})
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DisconnectRunner notifies the holder that the attached runner's socket
// closed. clean distinguishes a normal close from an abnormal one; reason is
// surfaced on the resulting error status.
func (h *Holder) DisconnectRunner(clean bool, reason string) {
	h.send(disconnectRunnerMsg{clean: clean, reason: reason})
}

// ConnectChannel registers an adapter-owned socket bound to scopeKey.
func (h *Holder) ConnectChannel(ctx context.Context, c *channelConn) error {
	result := make(chan error, 1)
	h.send(connectChannelMsg{conn: c, result: result})
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DisconnectChannel removes a channel socket by its connection id.
func (h *Holder) DisconnectChannel(id string) {
	h.send(disconnectChannelMsg{id: id})
}

// SubmitPrompt enqueues p per its QueueMode.
func (h *Holder) SubmitPrompt(p Prompt) {
	h.send(submitPromptMsg{prompt: p})
}

// Abort requests the in-flight prompt, if any, be cancelled at the runner.
func (h *Holder) Abort(channelType scopekey.ChannelType, channelID string) {
	h.send(abortMsg{channelType: string(channelType), channelID: channelID})
}

// Answer routes a client/channel answer to a pending runner question.
func (h *Holder) Answer(questionID, answer string) {
	h.send(answerMsg{questionID: questionID, answer: answer})
}

// Diff forwards a client-requested diff view to the attached runner.
func (h *Holder) Diff(channelType scopekey.ChannelType, channelID string) {
	h.send(diffMsg{channelType: string(channelType), channelID: channelID})
}

// Review forwards a client-requested code review to the attached runner.
func (h *Holder) Review(channelType scopekey.ChannelType, channelID string) {
	h.send(reviewMsg{channelType: string(channelType), channelID: channelID})
}

// Command forwards an arbitrary client-issued command to the attached
// runner.
func (h *Holder) Command(command string, channelType scopekey.ChannelType, channelID string) {
	h.send(commandMsg{command: command, channelType: string(channelType), channelID: channelID})
}

// Revert removes messageID (and, per journal semantics, nothing before it)
// from the session's log.
func (h *Holder) Revert(messageID string) {
	h.send(revertMsg{messageID: messageID})
}

// DeliverRunnerFrame hands one decoded frame received on the runner socket
// to the actor for dispatch.
func (h *Holder) DeliverRunnerFrame(f Frame) {
	h.send(runnerFrameMsg{frame: f})
}

// RequestRunner sends an op request to the runner and blocks until it
// resolves, times out, or ctx is cancelled. It returns the minted request id
// alongside the response so callers that need to correlate it with their own
// logging can do so.
func (h *Holder) RequestRunner(ctx context.Context, op string, payload any) (string, map[string]any, error) {
	requestID := newRequestID()
	ready := make(chan (<-chan pendingResult), 1)
	h.send(registerRequestMsg{requestID: requestID, op: op, payload: payload, ready: ready})

	select {
	case resolve := <-ready:
		select {
		case r := <-resolve:
			return requestID, r.payload, r.err
		case <-ctx.Done():
			return requestID, nil, ctx.Err()
		}
	case <-ctx.Done():
		return requestID, nil, ctx.Err()
	}
}
