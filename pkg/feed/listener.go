package feed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// Listener holds a dedicated LISTEN connection and dispatches every NOTIFY
// on channelName to an onEvent callback. One Listener per process; the
// callback is expected to be cheap (fan out to in-memory WebSocket clients)
// since it runs on the same goroutine that drains notifications.
type Listener struct {
	connString string
	onEvent    func(payload []byte)
	log        *slog.Logger

	conn    *pgx.Conn
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewListener(connString string, onEvent func(payload []byte), log *slog.Logger) *Listener {
	return &Listener{connString: connString, onEvent: onEvent, log: log}
}

// Start opens the dedicated connection, issues LISTEN once, and begins the
// receive loop in the background. Returns once the initial LISTEN succeeds.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+channelName); err != nil {
		conn.Close(ctx)
		return err
	}

	l.conn = conn
	l.running.Store(true)

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		l.receiveLoop(loopCtx)
	}()

	l.log.Info("feed listener started")
	return nil
}

func (l *Listener) receiveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		notification, err := l.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Error("feed: notification wait failed, reconnecting", "error", err)
			l.reconnect(ctx)
			continue
		}
		l.onEvent([]byte(notification.Payload))
	}
}

func (l *Listener) reconnect(ctx context.Context) {
	if l.conn != nil {
		_ = l.conn.Close(ctx)
		l.conn = nil
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, l.connString)
		if err != nil {
			l.log.Error("feed: reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		if _, err := conn.Exec(ctx, "LISTEN "+channelName); err != nil {
			l.log.Error("feed: re-LISTEN failed", "error", err)
			conn.Close(ctx)
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		l.conn = conn
		l.log.Info("feed listener reconnected")
		return
	}
}

// Stop signals the receive loop to exit and closes the connection.
func (l *Listener) Stop(ctx context.Context) {
	l.running.Store(false)
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
	}
	if l.conn != nil {
		_ = l.conn.Close(ctx)
	}
}
