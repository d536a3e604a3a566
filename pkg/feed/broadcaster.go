package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const writeTimeout = 5 * time.Second

// Broadcaster fans every published SessionStatusEvent out to every connected
// admin dashboard socket. Unlike pkg/holder's per-session fan-out, a
// Broadcaster is process-wide and has no notion of scope — every admin
// client sees every session's status changes.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]*websocket.Conn
	log     *slog.Logger
}

func NewBroadcaster(log *slog.Logger) *Broadcaster {
	return &Broadcaster{clients: make(map[string]*websocket.Conn), log: log}
}

// HandleConnection registers conn and blocks until it closes or ctx is done,
// reading and discarding any client-sent frames (this feed is server→client
// only; a read loop is still required to notice a client-initiated close).
func (b *Broadcaster) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	id := uuid.New().String()
	b.mu.Lock()
	b.clients[id] = conn
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, id)
		b.mu.Unlock()
	}()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// OnEvent fans a raw NOTIFY payload out to every client verbatim, without
// decoding it — this is the function handed to Listener as its onEvent
// callback.
func (b *Broadcaster) OnEvent(payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, conn := range b.clients {
		writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := conn.Write(writeCtx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			b.log.Warn("feed: client send failed", "connId", id, "error", err)
		}
	}
}
