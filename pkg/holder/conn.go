package holder

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
)

// wsConn is the subset of *websocket.Conn the holder needs to send frames
// and close a socket — narrowed so tests can substitute a fake without
// standing up a real connection.
type wsConn interface {
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

const writeTimeout = 5 * time.Second

// clientConn is one connected UI/chat subscriber.
type clientConn struct {
	ID       string
	UserID   string
	UserName string
	Conn     wsConn
	cancel   context.CancelFunc
}

// runnerConn is the single active sandbox runner socket.
type runnerConn struct {
	Conn   wsConn
	cancel context.CancelFunc
}

// channelConn is an adapter-owned socket bound to a scope key.
type channelConn struct {
	ID       string
	ScopeKey string
	Conn     wsConn
	cancel   context.CancelFunc
}

// NewClientConn builds the token ConnectClient expects for a real UI/chat
// socket. Takes the concrete *websocket.Conn directly (rather than the
// unexported wsConn interface) since this is the only constructor external
// packages (pkg/api) have for admitting a client connection.
func NewClientConn(id, userID, userName string, conn *websocket.Conn, cancel context.CancelFunc) *clientConn {
	return &clientConn{ID: id, UserID: userID, UserName: userName, Conn: conn, cancel: cancel}
}

// NewChannelConn builds the token ConnectChannel expects for an
// adapter-owned socket (pkg/channel), bound to scopeKey.
func NewChannelConn(id, scopeKey string, conn *websocket.Conn, cancel context.CancelFunc) *channelConn {
	return &channelConn{ID: id, ScopeKey: scopeKey, Conn: conn, cancel: cancel}
}

func sendFrame(ctx context.Context, c wsConn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.Write(writeCtx, websocket.MessageText, data)
}
