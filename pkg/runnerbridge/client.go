// Package runnerbridge is the client half of the runner connection: it runs
// inside the sandbox, dials the session holder's runner socket, and keeps
// that connection alive across restarts with exponential backoff. It owns
// outbound frame buffering while disconnected, the request/response
// correlation table for runner-initiated operations, and the keepalive/
// consecutive-failure exit policy. It does not itself decide what to do
// with an incoming prompt — that agent loop is an external collaborator
// (the sandboxed process this package is linked into); Client only hands
// every inbound frame to the FrameHandler the caller supplies.
//
// Built on github.com/gorilla/websocket rather than coder/websocket (used
// everywhere else in this repository) because gorilla's Dialer/Conn pairing
// gives this client a natural place to hang "buffer while reconnecting"
// logic around — the same transport the teacher's earlier
// pkg/api/websocket.go hub used, kept here deliberately so both transports
// the retrieval pack uses are represented.
package runnerbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 40 * time.Second
	maxCloseStreak = 5
	supersessionReason = "Replaced by new runner connection"
)

// ErrOrphaned is returned by Run when five consecutive close-code-1002
// handshake rejections indicate the stored runner token was rotated out
// from under this process — the sandbox is orphaned and should not retry.
var ErrOrphaned = errors.New("runnerbridge: runner token rejected five times in a row, sandbox orphaned")

// ErrSuperseded is returned by Run when the holder closed the connection
// because a newer runner connection replaced this one — the caller should
// exit cleanly without reconnecting.
var ErrSuperseded = errors.New("runnerbridge: superseded by a newer runner connection")

// FrameHandler processes frames the holder sends to the runner: prompt,
// answer, stop, abort, revert, diff, review, and the admin signals
// tunnel-delete/workflow-execute. The agent loop that interprets these
// lives outside this package.
type FrameHandler interface {
	HandleFrame(ctx context.Context, frameType string, raw json.RawMessage)
}

// Client is a reconnecting runner-socket client for one session.
type Client struct {
	url     string
	token   string
	handler FrameHandler
	log     *slog.Logger

	pending *pendingRequests
	out     *outbox

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient builds a Client for the holder's runner-socket endpoint
// (wsURL), authenticating with the plaintext runner token the holder
// compares against its stored hash.
func NewClient(wsURL, token string, handler FrameHandler) *Client {
	return &Client{
		url:     wsURL,
		token:   token,
		handler: handler,
		log:     slog.Default().With("component", "runnerbridge"),
		pending: newPendingRequests(),
		out:     newOutbox(),
	}
}

// Run dials and redials the holder until ctx is cancelled or a terminal
// condition (ErrOrphaned, ErrSuperseded) is reached.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry forever, only stop on terminal conditions or ctx

	closeStreak := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.log.Warn("runner socket dial failed", "error", err)
			if !sleepBackoff(ctx, bo) {
				return ctx.Err()
			}
			continue
		}
		bo.Reset()

		closeCode, closeReason, runErr := c.runConnection(ctx, conn)
		if runErr != nil && ctx.Err() == nil {
			c.log.Warn("runner connection ended", "error", runErr, "closeCode", closeCode)
		}

		if closeCode == websocket.CloseNormalClosure && closeReasonIsSupersession(closeReason) {
			return ErrSuperseded
		}
		if closeCode == 1002 {
			closeStreak++
			if closeStreak >= maxCloseStreak {
				return ErrOrphaned
			}
		} else {
			closeStreak = 0
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !sleepBackoff(ctx, bo) {
			return ctx.Err()
		}
	}
}

func closeReasonIsSupersession(reason string) bool {
	return strings.Contains(reason, supersessionReason)
}

func sleepBackoff(ctx context.Context, bo backoff.BackOff) bool {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		return false
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("runnerbridge: invalid url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("runnerbridge: dial: %w", err)
	}
	return conn, nil
}

// runConnection owns one connection end to end: flushes buffered frames,
// starts the ping loop and read loop, and blocks until the connection
// closes. It returns the close code/reason observed, if any.
func (c *Client) runConnection(ctx context.Context, conn *websocket.Conn) (closeCode int, closeReason string, err error) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		c.pending.cancelAll(errors.New("runnerbridge: connection closed"))
	}()

	c.flushOutbox()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pingLoop(connCtx, conn)
	}()

	closeCode, closeReason, err = c.readLoop(connCtx, conn)
	cancel()
	wg.Wait()
	return closeCode, closeReason, err
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) (closeCode int, closeReason string, err error) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, readErr := conn.ReadMessage()
		if readErr != nil {
			var ce *websocket.CloseError
			if errors.As(readErr, &ce) {
				return ce.Code, ce.Text, readErr
			}
			return 0, "", readErr
		}
		c.dispatch(ctx, data)
	}
}

func (c *Client) dispatch(ctx context.Context, data []byte) {
	var frame struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		c.log.Warn("discarding unparseable frame", "error", err)
		return
	}
	if frame.Type == "response" {
		var resp struct {
			RequestID string         `json:"requestId"`
			Payload   map[string]any `json:"payload"`
		}
		if err := json.Unmarshal(data, &resp); err == nil {
			c.pending.resolve(resp.RequestID, resp.Payload)
		}
		return
	}
	c.handler.HandleFrame(ctx, frame.Type, json.RawMessage(data))
}

// Send enqueues a frame and flushes whatever is buffered, including frame,
// over the current connection. If nothing is connected, the frame (and
// anything queued ahead of it) stays buffered for the next reconnect.
func (c *Client) Send(frameType string, payload any) error {
	env := map[string]any{"type": frameType, "payload": payload}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("runnerbridge: marshal frame: %w", err)
	}
	c.out.push(data)
	c.flushOutbox()
	return nil
}

func (c *Client) flushOutbox() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	frames := c.out.drain()
	for i, frame := range frames {
		c.mu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, frame)
		c.mu.Unlock()
		if err != nil {
			// re-buffer this and everything that didn't get a chance to send
			for _, unsent := range frames[i:] {
				c.out.push(unsent)
			}
			return
		}
	}
}

// Request sends a typed request frame for a holder/gateway-side operation
// (spawn-child, terminate-child, create-pr, update-pr, memory R/W, workflow/
// trigger/execution API, mailbox, task board, channel-reply) and blocks for
// the correlated response or its operation-specific deadline.
func (c *Client) Request(ctx context.Context, requestID, op string, payload any) (map[string]any, error) {
	resolve := c.pending.register(requestID, op, func() { c.pending.timeout(requestID) })

	env := map[string]any{"type": op, "requestId": requestID, "payload": payload}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("runnerbridge: marshal request: %w", err)
	}
	c.out.push(data)
	c.flushOutbox()

	select {
	case res := <-resolve:
		if res.err != nil {
			return nil, res.err
		}
		return res.payload, nil
	case <-ctx.Done():
		return nil, relayerr.NewTimeoutError(requestID, op)
	}
}
