// Package channel defines the polymorphic transport contract every chat
// surface implements (web, Slack, GitHub, a generic API adapter, Telegram),
// and a registry that looks one up by its channelType tag. Adapters are
// stateless — all addressable state (channel bindings, OAuth/bot tokens)
// lives in pkg/store — mirroring how the teacher's pkg/slack.Client holds no
// per-conversation state of its own, only configuration handed in at
// construction.
package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
)

// Attachment is a bounded, degrade-gracefully media reference: a failed
// fetch produces no attachment rather than an error.
type Attachment struct {
	Type     string
	URL      string // data: URL or remote URL
	MimeType string
	FileName string
	Duration int // seconds, audio/video only
}

// InboundMessage is the adapter-normalized form of an external update, ready
// for the router to turn into a scope key and a holder.Prompt.
type InboundMessage struct {
	UserID      string // internal user id, after identity-link resolution
	ExternalID  string // external user identity reported by the channel
	SenderName  string // display name reported by the channel, when one is available
	Text        string
	Attachments []Attachment
	ChannelID   string
	ThreadID    string // slack thread ts, github PR number as string, etc
}

// Adapter is the contract every channel implementation satisfies. Adapters
// never hold per-conversation mutable state; routing and binding state lives
// in the store, identically to how the same slack.Client is reused across
// every channel in the teacher's deployment.
type Adapter interface {
	// ChannelType is this adapter's scopekey.ChannelType tag.
	ChannelType() scopekey.ChannelType

	// VerifySignature authenticates an inbound webhook delivery against the
	// adapter's shared secret. Adapters with no webhook surface (web) always
	// return true.
	VerifySignature(headers map[string][]string, rawBody []byte, secret string) bool

	// ParseInbound decodes a raw webhook/update body into a normalized
	// InboundMessage. Returns (nil, nil) for recognized-but-unsupported
	// update shapes (callback_query, stickers, reactions...) rather than an
	// error — those are silently dropped by the router.
	ParseInbound(ctx context.Context, headers map[string][]string, rawBody []byte) (*InboundMessage, error)

	// ScopeKeyParts derives the channel-type tag and channel-specific id
	// scopekey.Compose needs, from an already-parsed InboundMessage.
	ScopeKeyParts(msg InboundMessage, userID string) (scopekey.ChannelType, string)

	// FormatMarkdown renders platform-agnostic markdown into the adapter's
	// native formatting (Slack mrkdwn, Telegram MarkdownV2, plain passthrough
	// for web/api/github).
	FormatMarkdown(markdown string) string

	SendMessage(ctx context.Context, channelID, threadID, text string, attachments []Attachment) (messageID string, err error)
	EditMessage(ctx context.Context, channelID, messageID, text string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendTypingIndicator(ctx context.Context, channelID string) error

	// RegisterWebhook/UnregisterWebhook install or remove the adapter's
	// delivery subscription with the upstream provider. Adapters with no
	// registration step (web, api) are no-ops.
	RegisterWebhook(ctx context.Context, callbackURL, secret string) error
	UnregisterWebhook(ctx context.Context) error
}

// Registry looks up an Adapter by its channelType tag. Construction happens
// once at startup in cmd/server; lookups are read-only afterward, so a plain
// RWMutex-guarded map (no need for the single-writer-actor treatment pkg/holder
// uses — adapters never mutate shared state among themselves) is enough.
type Registry struct {
	mu       sync.RWMutex
	adapters map[scopekey.ChannelType]Adapter
}

// NewRegistry builds a Registry from a set of adapters, keyed by their own
// ChannelType().
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[scopekey.ChannelType]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.ChannelType()] = a
	}
	return r
}

// Get returns the adapter registered for ct, or an error if none is.
func (r *Registry) Get(ct scopekey.ChannelType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[ct]
	if !ok {
		return nil, fmt.Errorf("channel: no adapter registered for channel type %q", ct)
	}
	return a, nil
}

// Register adds or replaces the adapter for its own ChannelType(). Exists
// for tests that swap in a fake adapter after NewRegistry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ChannelType()] = a
}
