package pgstore

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// AsStore wires the pool into every store.* collection. Each collection is a
// thin wrapper carrying just the pool, mirroring the per-collection split in
// store/memstore — driven by the same Go constraint that one type cannot
// implement two interfaces that share a method name with different
// signatures.
func (c *Client) AsStore() store.Store {
	return store.Store{
		Sessions:        sessionStore{c.pool},
		Messages:        messageStore{c.pool},
		AuditLog:        auditLogStore{c.pool},
		ChannelBindings: channelBindingStore{c.pool},
		IdentityLinks:   identityLinkStore{c.pool},
		Triggers:        triggerStore{c.pool},
		Workflows:       workflowStore{c.pool},
		Executions:      executionStore{c.pool},
		Steps:           stepStore{c.pool},
		Proposals:       proposalStore{c.pool},
	}
}

type sessionStore struct{ pool *pgxpool.Pool }
type messageStore struct{ pool *pgxpool.Pool }
type auditLogStore struct{ pool *pgxpool.Pool }
type channelBindingStore struct{ pool *pgxpool.Pool }
type identityLinkStore struct{ pool *pgxpool.Pool }
type triggerStore struct{ pool *pgxpool.Pool }
type workflowStore struct{ pool *pgxpool.Pool }
type executionStore struct{ pool *pgxpool.Pool }
type stepStore struct{ pool *pgxpool.Pool }
type proposalStore struct{ pool *pgxpool.Pool }
