// Package api is the generic API channel adapter: a direct-integration
// surface for callers that want to submit a prompt without going through a
// chat platform. Inbound delivery is a flat JSON body the caller signs with
// a shared secret; idempotency is keyed on a caller-supplied
// idempotencyKey field in that body (or, lacking that, the sha256 of the body),
// feeding pkg/trigger's dedup-on-idempotency-key dispatch path the same way
// a GitHub delivery id does for the github adapter.
package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fluxrelay/fluxrelay/pkg/channel"
	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
)

// Adapter is the generic API channel.Adapter implementation. It has no
// outbound delivery mechanism of its own — replies are returned synchronously
// to the original HTTP caller by pkg/gateway, not pushed — so the send-side
// methods are no-ops.
type Adapter struct{}

// New returns an API adapter. There is nothing to configure.
func New() *Adapter { return &Adapter{} }

func (a *Adapter) ChannelType() scopekey.ChannelType { return scopekey.ChannelAPI }

// inboundBody is the flat JSON shape the generic API adapter accepts.
type inboundBody struct {
	UserID         string               `json:"userId"`
	Name           string               `json:"name"`
	Text           string               `json:"text"`
	IdempotencyKey string               `json:"idempotencyKey"`
	Attachments    []channel.Attachment `json:"attachments"`
}

// VerifySignature checks X-Signature: "sha256=" + hex(hmac-sha256(body, secret)),
// the same scheme pkg/channel/github uses, reused here rather than inventing
// a second convention for the one other webhook-shaped adapter in this repo.
func (a *Adapter) VerifySignature(headers map[string][]string, rawBody []byte, secret string) bool {
	sig := firstHeader(headers, "X-Signature")
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	sig = strings.TrimPrefix(sig, "sha256=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}

func (a *Adapter) ParseInbound(ctx context.Context, headers map[string][]string, rawBody []byte) (*channel.InboundMessage, error) {
	var body inboundBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, fmt.Errorf("channel/api: decode body: %w", err)
	}
	if strings.TrimSpace(body.Text) == "" {
		return nil, nil
	}
	idKey := body.IdempotencyKey
	if idKey == "" {
		idKey = deliveryDigest(rawBody)
	}
	return &channel.InboundMessage{
		UserID:      body.UserID,
		ExternalID:  body.UserID,
		SenderName:  body.Name,
		Text:        body.Text,
		Attachments: body.Attachments,
		ChannelID:   idKey,
	}, nil
}

func deliveryDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func (a *Adapter) ScopeKeyParts(msg channel.InboundMessage, userID string) (scopekey.ChannelType, string) {
	return scopekey.ChannelAPI, msg.ChannelID
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

func firstHeader(headers map[string][]string, key string) string {
	for k, vs := range headers {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}
