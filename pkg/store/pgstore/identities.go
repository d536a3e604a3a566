package pgstore

import (
	"context"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

func (il identityLinkStore) Resolve(ctx context.Context, provider, externalID string) (store.IdentityLink, error) {
	var l store.IdentityLink
	err := il.pool.QueryRow(ctx,
		"SELECT user_id, provider, external_id, external_name, team_id FROM user_identity_links WHERE provider = $1 AND external_id = $2",
		provider, externalID).Scan(&l.UserID, &l.Provider, &l.ExternalID, &l.ExternalName, &l.TeamID)
	if isNoRows(err) {
		return store.IdentityLink{}, relayerr.NewNotFoundError("identity_link", externalID)
	}
	return l, err
}

func (il identityLinkStore) Upsert(ctx context.Context, link store.IdentityLink) error {
	_, err := il.pool.Exec(ctx, `
		INSERT INTO user_identity_links (user_id, provider, external_id, external_name, team_id)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (provider, external_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			external_name = EXCLUDED.external_name,
			team_id = EXCLUDED.team_id`,
		link.UserID, link.Provider, link.ExternalID, link.ExternalName, link.TeamID)
	return err
}
