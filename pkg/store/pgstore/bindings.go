package pgstore

import (
	"context"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

func (cb channelBindingStore) Get(ctx context.Context, scopeKey string) (store.ChannelBinding, error) {
	var b store.ChannelBinding
	err := cb.pool.QueryRow(ctx,
		"SELECT scope_key, session_id, queue_mode, collect_debounce_ms FROM channel_bindings WHERE scope_key = $1",
		scopeKey).Scan(&b.ScopeKey, &b.SessionID, &b.QueueMode, &b.CollectDebounceMs)
	if isNoRows(err) {
		return store.ChannelBinding{}, relayerr.NewNotFoundError("channel_binding", scopeKey)
	}
	return b, err
}

func (cb channelBindingStore) Upsert(ctx context.Context, b store.ChannelBinding) error {
	_, err := cb.pool.Exec(ctx, `
		INSERT INTO channel_bindings (scope_key, session_id, queue_mode, collect_debounce_ms)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (scope_key) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			queue_mode = EXCLUDED.queue_mode,
			collect_debounce_ms = EXCLUDED.collect_debounce_ms`,
		b.ScopeKey, b.SessionID, b.QueueMode, b.CollectDebounceMs)
	return err
}
