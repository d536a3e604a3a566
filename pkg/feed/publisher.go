package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Publisher sends SessionStatusEvents via pg_notify, using the same pool the
// row store already holds open rather than a dedicated connection — NOTIFY
// payloads are capped at 8000 bytes by PostgreSQL and this one is a handful
// of fields, so there is no risk of tripping that limit.
type Publisher struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPublisher(pool *pgxpool.Pool, log *slog.Logger) *Publisher {
	return &Publisher{pool: pool, log: log}
}

// Publish serializes evt and issues pg_notify on channelName. Errors are
// logged, not returned — a missed dashboard update must never fail the
// session-state transition that triggered it.
func (p *Publisher) Publish(ctx context.Context, evt SessionStatusEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		p.log.Error("feed: marshal event", "error", err)
		return
	}
	if _, err := p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channelName, string(payload)); err != nil {
		p.log.Warn("feed: publish failed", "error", err, "session_id", evt.SessionID)
		return
	}
}
