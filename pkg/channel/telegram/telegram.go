// Package telegram is the Telegram channel adapter, built on
// go-telegram-bot-api/telegram-bot-api/v5. Telegram has no per-request HMAC
// webhook signature (unlike Slack/GitHub); authenticity instead comes from
// the bot-specific secret token Telegram echoes back in the
// X-Telegram-Bot-Api-Secret-Token header on every webhook delivery, which
// VerifySignature checks with a constant-time comparison.
package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fluxrelay/fluxrelay/pkg/channel"
	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
)

// Adapter is the Telegram channel.Adapter implementation.
type Adapter struct {
	bot *tgbotapi.BotAPI
}

// New builds a Telegram adapter for one bot token.
func New(botToken string) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("channel/telegram: new bot: %w", err)
	}
	return &Adapter{bot: bot}, nil
}

func (a *Adapter) ChannelType() scopekey.ChannelType { return scopekey.ChannelTelegram }

func (a *Adapter) VerifySignature(headers map[string][]string, rawBody []byte, secret string) bool {
	got := firstHeader(headers, "X-Telegram-Bot-Api-Secret-Token")
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(secret)) == 1
}

// ParseInbound decodes a tgbotapi.Update. Updates that aren't a plain text
// message (callback_query, edited_message, channel_post, stickers, photos
// with no caption) return (nil, nil) — only text content and caption text
// reach the session holder as a prompt.
func (a *Adapter) ParseInbound(ctx context.Context, headers map[string][]string, rawBody []byte) (*channel.InboundMessage, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(rawBody, &update); err != nil {
		return nil, fmt.Errorf("channel/telegram: decode update: %w", err)
	}
	msg := update.Message
	if msg == nil {
		return nil, nil
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return nil, nil
	}
	var atts []channel.Attachment
	if a.bot != nil && msg.Photo != nil && len(msg.Photo) > 0 {
		largest := msg.Photo[len(msg.Photo)-1]
		if url, err := a.bot.GetFileDirectURL(largest.FileID); err == nil {
			atts = append(atts, channel.Attachment{Type: "image", URL: url})
		}
		// fetch failures degrade gracefully to no-attachment, never an error
	}
	senderName := ""
	if msg.From != nil {
		senderName = msg.From.FirstName
	}
	return &channel.InboundMessage{
		ExternalID:  strconv.FormatInt(msg.From.ID, 10),
		SenderName:  senderName,
		Text:        text,
		Attachments: atts,
		ChannelID:   strconv.FormatInt(msg.Chat.ID, 10),
	}, nil
}

func (a *Adapter) ScopeKeyParts(msg channel.InboundMessage, userID string) (scopekey.ChannelType, string) {
	return scopekey.ChannelTelegram, msg.ChannelID
}

// FormatMarkdown escapes the MarkdownV2 reserved character set Telegram
// requires, after translating the common **bold** convention to MarkdownV2's
// single-asterisk bold.
func (a *Adapter) FormatMarkdown(markdown string) string {
	text := strings.ReplaceAll(markdown, "**", "*")
	const reserved = "_[]()~`>#+-=|{}.!"
	var b strings.Builder
	for _, r := range text {
		if strings.ContainsRune(reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (a *Adapter) SendMessage(ctx context.Context, channelID, threadID, text string, attachments []channel.Attachment) (string, error) {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("channel/telegram: invalid chat id %q: %w", channelID, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if threadID != "" {
		if replyTo, err := strconv.Atoi(threadID); err == nil {
			msg.ReplyToMessageID = replyTo
		}
	}
	sent, err := a.bot.Send(msg)
	if err != nil {
		return "", fmt.Errorf("channel/telegram: send message: %w", err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

func (a *Adapter) EditMessage(ctx context.Context, channelID, messageID, text string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("channel/telegram: invalid chat id %q: %w", channelID, err)
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("channel/telegram: invalid message id %q: %w", messageID, err)
	}
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := a.bot.Send(edit); err != nil {
		return fmt.Errorf("channel/telegram: edit message: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("channel/telegram: invalid chat id %q: %w", channelID, err)
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("channel/telegram: invalid message id %q: %w", messageID, err)
	}
	del := tgbotapi.NewDeleteMessage(chatID, msgID)
	if _, err := a.bot.Request(del); err != nil {
		return fmt.Errorf("channel/telegram: delete message: %w", err)
	}
	return nil
}

func (a *Adapter) SendTypingIndicator(ctx context.Context, channelID string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("channel/telegram: invalid chat id %q: %w", channelID, err)
	}
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := a.bot.Request(action); err != nil {
		return fmt.Errorf("channel/telegram: send typing indicator: %w", err)
	}
	return nil
}

// RegisterWebhook installs the bot's webhook URL and secret token with
// Telegram's Bot API.
func (a *Adapter) RegisterWebhook(ctx context.Context, callbackURL, secret string) error {
	wh, err := tgbotapi.NewWebhook(callbackURL)
	if err != nil {
		return fmt.Errorf("channel/telegram: build webhook config: %w", err)
	}
	wh.SecretToken = secret
	if _, err := a.bot.Request(wh); err != nil {
		return fmt.Errorf("channel/telegram: register webhook: %w", err)
	}
	return nil
}

func (a *Adapter) UnregisterWebhook(ctx context.Context) error {
	if _, err := a.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("channel/telegram: unregister webhook: %w", err)
	}
	return nil
}

func firstHeader(headers map[string][]string, key string) string {
	for k, vs := range headers {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}
