// Package web implements the no-op channel adapter for direct
// browser/UI clients. Web clients connect straight to a session holder's
// client socket (pkg/holder) and receive the ordinary broadcast fan-out, so
// this adapter exists only to give the web channel type a place in
// pkg/channel's registry and to produce the scope key for a browser session.
package web

import (
	"context"

	"github.com/fluxrelay/fluxrelay/pkg/channel"
	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
)

// Adapter is the web channel implementation. It has no webhook surface and
// no outbound send path of its own: pkg/holder's client-socket fan-out is
// the web channel's delivery mechanism.
type Adapter struct{}

// New returns a web Adapter. There is nothing to configure.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) ChannelType() scopekey.ChannelType { return scopekey.ChannelWeb }

func (a *Adapter) VerifySignature(headers map[string][]string, rawBody []byte, secret string) bool {
	return true
}

func (a *Adapter) ParseInbound(ctx context.Context, headers map[string][]string, rawBody []byte) (*channel.InboundMessage, error) {
	return nil, nil
}

func (a *Adapter) ScopeKeyParts(msg channel.InboundMessage, userID string) (scopekey.ChannelType, string) {
	return scopekey.ChannelWeb, msg.ChannelID
}

func (a *Adapter) FormatMarkdown(markdown string) string { return markdown }

func (a *Adapter) SendMessage(ctx context.Context, channelID, threadID, text string, attachments []channel.Attachment) (string, error) {
	return "", nil
}

func (a *Adapter) EditMessage(ctx context.Context, channelID, messageID, text string) error {
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error { return nil }

func (a *Adapter) SendTypingIndicator(ctx context.Context, channelID string) error { return nil }

func (a *Adapter) RegisterWebhook(ctx context.Context, callbackURL, secret string) error { return nil }

func (a *Adapter) UnregisterWebhook(ctx context.Context) error { return nil }
