// Package scopekey derives the canonical routing key every channel adapter
// and the trigger idempotency layer use to address a single conversation
// lane. It is deliberately a set of pure functions: two adapters that agree
// on channel type and identifying parts MUST produce byte-identical keys,
// so nothing here may depend on mutable state, clocks, or randomness.
package scopekey

import (
	"strconv"
	"strings"
)

// ChannelType enumerates the channel adapters the registry in pkg/channel
// recognizes. Declared here (not pkg/channel) so scope-key composition never
// imports the adapter layer.
type ChannelType string

const (
	ChannelWeb      ChannelType = "web"
	ChannelSlack    ChannelType = "slack"
	ChannelGitHub   ChannelType = "github"
	ChannelAPI      ChannelType = "api"
	ChannelTelegram ChannelType = "telegram"
)

// sep is the field separator used inside a scope key. Colons are reserved:
// no caller-supplied part (channel id, thread id, repo slug...) may itself
// embed this literal, or two distinct conversations could collide onto one
// key. Escape/replace collisions at the adapter boundary if ever necessary.
const sep = ":"

// build joins userID, the channel type tag, and the channel-specific parts
// into the canonical "user:{userId}:{channelType}:{...parts}" form.
func build(userID string, ct ChannelType, parts ...string) string {
	segs := make([]string, 0, len(parts)+3)
	segs = append(segs, "user", userID, string(ct))
	segs = append(segs, parts...)
	return strings.Join(segs, sep)
}

// Web composes the scope key for a web/UI session: one lane per session id,
// since a browser session has no external channel identity to key off of.
func Web(userID, sessionID string) string {
	return build(userID, ChannelWeb, sessionID)
}

// Slack composes "user:{id}:slack:{teamId}:{channelId}:{threadTs?}". threadTs
// is optional — omitted parts are simply not appended, never replaced with a
// placeholder, so a channel-level and thread-level lane never collide.
func Slack(userID, teamID, channelID, threadTS string) string {
	parts := []string{teamID, channelID}
	if threadTS != "" {
		parts = append(parts, threadTS)
	}
	return build(userID, ChannelSlack, parts...)
}

// GitHub composes "user:{id}:github:{owner/repo}:pr:{number}".
func GitHub(userID, ownerRepo string, prNumber int) string {
	return build(userID, ChannelGitHub, ownerRepo, "pr", strconv.Itoa(prNumber))
}

// API composes "user:{id}:api:{idempotencyKey}" for direct API-driven sessions.
func API(userID, idempotencyKey string) string {
	return build(userID, ChannelAPI, idempotencyKey)
}

// Telegram composes "user:{id}:telegram:{chatId}".
func Telegram(userID, chatID string) string {
	return build(userID, ChannelTelegram, chatID)
}

// Parts is the decomposed (channelType, channelID) pair of a scope key; an
// adapter's ScopeKeyParts returns the same two values unbundled.
type Parts struct {
	ChannelType ChannelType
	ChannelID   string
}

// Compose joins a resolved internal userID with the (channelType, channelID)
// pair an Adapter's ScopeKeyParts returns into the canonical scope key. It
// and the per-channel helpers above are the exported entry points into
// build, so an adapter never needs to know the separator or field order
// itself.
func Compose(userID string, ct ChannelType, channelID string) string {
	return build(userID, ct, channelID)
}
