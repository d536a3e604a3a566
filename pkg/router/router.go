// Package router implements the inbound data flow described in the system
// overview's data-flow paragraph: an adapter decodes a raw channel delivery,
// the router derives a scope key and finds or creates the session that owns
// it, then forwards the parsed message into that session's holder as a
// queued prompt. It is the one piece of glue binding pkg/channel (stateless
// transports) to pkg/holder (stateful session actors) through pkg/store
// (the channel-binding and identity-link tables both sides share).
//
// Grounded on pkg/trigger/dispatcher.go's dispatchOrchestrator: both resolve
// a store-backed session, attach its live holder via the same
// GetOrCreate-shaped sink, and submit a holder.Prompt — the dispatcher does
// it for a schedule firing, this package does it for an inbound channel
// message.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fluxrelay/fluxrelay/pkg/channel"
	"github.com/fluxrelay/fluxrelay/pkg/holder"
	"github.com/fluxrelay/fluxrelay/pkg/journal"
	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// HolderSink is the narrow surface Router needs from the live holder
// registry — the same shape pkg/trigger.OrchestratorSink uses, declared
// again here rather than imported so neither package depends on the other's
// interface for an incidental signature match.
type HolderSink interface {
	GetOrCreate(ctx context.Context, sessionID, ownerID string) (*holder.Holder, error)
}

// DefaultQueueMode is the queue mode a freshly created channel binding
// starts with. Bindings that want collect/steer semantics must be
// provisioned some other way (no API surface authors one directly in this
// repo's scope); new lanes default to followup.
const DefaultQueueMode = string(holder.QueueFollowup)

// Router binds channel adapters to live session holders through the scope
// key and channel binding table.
type Router struct {
	channels *channel.Registry
	holders  HolderSink
	store    *store.Store
}

// New builds a Router.
func New(channels *channel.Registry, holders HolderSink, st *store.Store) *Router {
	return &Router{channels: channels, holders: holders, store: st}
}

// Dispatch authenticates and decodes one inbound delivery for channel type
// ct, resolves (or provisions) the internal user identity and session
// binding it belongs to, and submits it as a prompt to that session's
// holder. Returns (false, nil) when the adapter recognized but intentionally
// dropped the update (e.g. a callback_query) — not an error condition.
func (r *Router) Dispatch(ctx context.Context, ct scopekey.ChannelType, headers map[string][]string, rawBody []byte, secret string) (bool, error) {
	adapter, err := r.channels.Get(ct)
	if err != nil {
		return false, err
	}

	if !adapter.VerifySignature(headers, rawBody, secret) {
		return false, relayerr.NewPermissionError("channel signature verification failed")
	}

	msg, err := adapter.ParseInbound(ctx, headers, rawBody)
	if err != nil {
		return false, fmt.Errorf("router: parse inbound: %w", err)
	}
	if msg == nil {
		return false, nil
	}

	userID, err := r.resolveIdentity(ctx, ct, msg.ExternalID)
	if err != nil {
		return false, fmt.Errorf("router: resolve identity: %w", err)
	}
	msg.UserID = userID

	channelType, channelID := adapter.ScopeKeyParts(*msg, userID)
	key := scopekey.Compose(userID, channelType, channelID)

	binding, err := r.bindingFor(ctx, key, userID)
	if err != nil {
		return false, fmt.Errorf("router: resolve binding: %w", err)
	}

	h, err := r.holders.GetOrCreate(ctx, binding.SessionID, userID)
	if err != nil {
		return false, fmt.Errorf("router: attach holder: %w", err)
	}

	h.SubmitPrompt(holder.Prompt{
		ID:          uuid.New().String(),
		Content:     msg.Text,
		Author:      &journal.Author{ID: userID, Name: msg.SenderName},
		Attachments: convertAttachments(msg.Attachments),
		QueueMode:   holder.QueueMode(orDefault(binding.QueueMode, DefaultQueueMode)),
		ChannelType: channelType,
		ChannelID:   channelID,
		ScopeKey:    key,
		EnqueuedAt:  time.Now(),
	})
	return true, nil
}

// resolveIdentity looks up the internal user for an external channel
// identity, auto-provisioning a new user id on first contact — identity
// creation proper (OAuth, invites) is an out-of-scope external collaborator,
// but a channel message has to land somewhere the first time a given
// external identity ever messages in.
func (r *Router) resolveIdentity(ctx context.Context, ct scopekey.ChannelType, externalID string) (string, error) {
	link, err := r.store.IdentityLinks.Resolve(ctx, string(ct), externalID)
	if err == nil {
		return link.UserID, nil
	}
	if _, ok := relayerr.As[*relayerr.NotFoundError](err); !ok {
		return "", err
	}

	userID := uuid.New().String()
	if err := r.store.IdentityLinks.Upsert(ctx, store.IdentityLink{
		UserID:     userID,
		Provider:   string(ct),
		ExternalID: externalID,
	}); err != nil {
		return "", fmt.Errorf("provision identity link: %w", err)
	}
	return userID, nil
}

// bindingFor looks up the channel binding owning scope key, creating a new
// interactive session and binding on first contact for that lane.
func (r *Router) bindingFor(ctx context.Context, key, userID string) (store.ChannelBinding, error) {
	binding, err := r.store.ChannelBindings.Get(ctx, key)
	if err == nil {
		return binding, nil
	}
	if _, ok := relayerr.As[*relayerr.NotFoundError](err); !ok {
		return store.ChannelBinding{}, err
	}

	now := time.Now()
	session, err := r.store.Sessions.Create(ctx, store.SessionRecord{
		ID:           uuid.New().String(),
		OwnerID:      userID,
		Status:       store.StatusInitializing,
		Purpose:      store.PurposeInteractive,
		CreatedAt:    now,
		LastActiveAt: now,
	})
	if err != nil {
		return store.ChannelBinding{}, fmt.Errorf("create session for new lane: %w", err)
	}

	binding = store.ChannelBinding{
		ScopeKey:          key,
		SessionID:         session.ID,
		QueueMode:         DefaultQueueMode,
		CollectDebounceMs: 0,
	}
	if err := r.store.ChannelBindings.Upsert(ctx, binding); err != nil {
		return store.ChannelBinding{}, fmt.Errorf("bind new lane: %w", err)
	}
	return binding, nil
}

func convertAttachments(in []channel.Attachment) []holder.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]holder.Attachment, len(in))
	for i, a := range in {
		out[i] = holder.Attachment{
			Type:     a.Type,
			URL:      a.URL,
			MimeType: a.MimeType,
			FileName: a.FileName,
			Duration: a.Duration,
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
