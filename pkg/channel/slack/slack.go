// Package slack is the Slack channel adapter: an Events API webhook
// consumer plus a chat.postMessage/update/delete client, built directly on
// top of github.com/slack-go/slack the way the teacher's pkg/slack package
// does for its notification path. Unlike the teacher's Client (one bot
// token, one fixed channel, fire-and-forget notifications), this adapter is
// a full channel.Adapter: it also verifies inbound webhook signatures and
// parses arbitrary Events API callbacks into channel.InboundMessage values
// for the router.
package slack

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/fluxrelay/fluxrelay/pkg/channel"
	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
)

const maxBlockTextLength = 2900

// Adapter is the Slack channel.Adapter implementation.
type Adapter struct {
	api           *goslack.Client
	signingSecret string
	log           *slog.Logger
}

// New builds a Slack adapter for one workspace's bot token and signing
// secret (the HMAC key Slack signs every Events API delivery with).
func New(botToken, signingSecret string) *Adapter {
	return &Adapter{
		api:           goslack.New(botToken),
		signingSecret: signingSecret,
		log:           slog.Default().With("component", "channel-slack"),
	}
}

func (a *Adapter) ChannelType() scopekey.ChannelType { return scopekey.ChannelSlack }

// VerifySignature reproduces Slack's v0 signing scheme: HMAC-SHA256 over
// "v0:{timestamp}:{body}", keyed by the signing secret, compared against the
// X-Slack-Signature header in constant time via hmac.Equal.
func (a *Adapter) VerifySignature(headers map[string][]string, rawBody []byte, secret string) bool {
	ts := firstHeader(headers, "X-Slack-Request-Timestamp")
	sig := firstHeader(headers, "X-Slack-Signature")
	if ts == "" || sig == "" {
		return false
	}
	if tsUnix, err := strconv.ParseInt(ts, 10, 64); err == nil {
		if time.Since(time.Unix(tsUnix, 0)) > 5*time.Minute {
			return false
		}
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(rawBody)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

// ParseInbound decodes a slackevents callback envelope. url_verification
// challenges and event subtypes this adapter doesn't forward to the session
// holder (reactions, message edits, bot's own messages) return (nil, nil).
func (a *Adapter) ParseInbound(ctx context.Context, headers map[string][]string, rawBody []byte) (*channel.InboundMessage, error) {
	evt, err := slackevents.ParseEvent(rawBody, slackevents.OptionNoVerifyToken())
	if err != nil {
		return nil, fmt.Errorf("channel/slack: parse event: %w", err)
	}
	if evt.Type != slackevents.CallbackEvent {
		return nil, nil
	}
	switch inner := evt.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if inner.BotID != "" || inner.SubType != "" {
			return nil, nil
		}
		return &channel.InboundMessage{
			ExternalID: inner.User,
			Text:       inner.Text,
			ChannelID:  inner.Channel,
			ThreadID:   inner.ThreadTimeStamp,
		}, nil
	case *slackevents.AppMentionEvent:
		return &channel.InboundMessage{
			ExternalID: inner.User,
			Text:       stripMention(inner.Text),
			ChannelID:  inner.Channel,
			ThreadID:   inner.ThreadTimeStamp,
		}, nil
	default:
		return nil, nil
	}
}

func stripMention(text string) string {
	if idx := strings.Index(text, ">"); idx >= 0 && strings.HasPrefix(text, "<@") {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}

func (a *Adapter) ScopeKeyParts(msg channel.InboundMessage, userID string) (scopekey.ChannelType, string) {
	return scopekey.ChannelSlack, msg.ChannelID
}

// FormatMarkdown converts the subset of common markdown the holder's
// journal emits into Slack's mrkdwn dialect: **bold** -> *bold*, leaves
// everything else (links, code fences) passing through mostly unchanged.
func (a *Adapter) FormatMarkdown(markdown string) string {
	return strings.ReplaceAll(markdown, "**", "*")
}

func (a *Adapter) SendMessage(ctx context.Context, channelID, threadID, text string, attachments []channel.Attachment) (string, error) {
	opts := []goslack.MsgOption{
		goslack.MsgOptionBlocks(textBlocks(a.FormatMarkdown(text))...),
	}
	if threadID != "" {
		opts = append(opts, goslack.MsgOptionTS(threadID))
	}
	_, ts, err := a.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return "", fmt.Errorf("channel/slack: chat.postMessage: %w", err)
	}
	return ts, nil
}

func (a *Adapter) EditMessage(ctx context.Context, channelID, messageID, text string) error {
	_, _, _, err := a.api.UpdateMessageContext(ctx, channelID, messageID,
		goslack.MsgOptionBlocks(textBlocks(a.FormatMarkdown(text))...))
	if err != nil {
		return fmt.Errorf("channel/slack: chat.update: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	_, _, err := a.api.DeleteMessageContext(ctx, channelID, messageID)
	if err != nil {
		return fmt.Errorf("channel/slack: chat.delete: %w", err)
	}
	return nil
}

func (a *Adapter) SendTypingIndicator(ctx context.Context, channelID string) error {
	return nil
}

// RegisterWebhook/UnregisterWebhook are no-ops: Slack Events API
// subscriptions are configured once in the app manifest, not per-session.
func (a *Adapter) RegisterWebhook(ctx context.Context, callbackURL, secret string) error { return nil }
func (a *Adapter) UnregisterWebhook(ctx context.Context) error                          { return nil }

func textBlocks(text string) []goslack.Block {
	if len(text) > maxBlockTextLength {
		text = text[:maxBlockTextLength] + "\n\n_... (truncated)_"
	}
	return []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil),
	}
}

func firstHeader(headers map[string][]string, key string) string {
	for k, vs := range headers {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}
