// Package github is the GitHub channel adapter: inbound issue_comment /
// pull_request_review_comment webhooks become prompts addressed at the PR's
// scope key, and outbound replies post back as PR comments via
// google/go-github. Signature verification follows the same
// X-Hub-Signature-256 HMAC-SHA256 scheme the pack's tombee-conductor webhook
// handler implements, adapted to this adapter's channel.Adapter contract.
package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/go-github/v68/github"

	"github.com/fluxrelay/fluxrelay/pkg/channel"
	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
)

// Adapter is the GitHub channel.Adapter implementation.
type Adapter struct {
	client *github.Client
}

// New builds a GitHub adapter authenticated with an installation or
// personal access token.
func New(token string) *Adapter {
	return &Adapter{client: github.NewClient(nil).WithAuthToken(token)}
}

func (a *Adapter) ChannelType() scopekey.ChannelType { return scopekey.ChannelGitHub }

// VerifySignature checks X-Hub-Signature-256: "sha256=" + hex(hmac-sha256(body, secret)).
func (a *Adapter) VerifySignature(headers map[string][]string, rawBody []byte, secret string) bool {
	sig := firstHeader(headers, "X-Hub-Signature-256")
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	sig = strings.TrimPrefix(sig, "sha256=")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}

// deliveryEvent mirrors only the fields this adapter cares about across
// issue_comment and pull_request_review_comment payloads.
type deliveryEvent struct {
	Action     string `json:"action"`
	Comment    *struct {
		Body string `json:"body"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"comment"`
	Issue *struct {
		Number int `json:"number"`
	} `json:"issue"`
	PullRequest *struct {
		Number int `json:"number"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// ParseInbound accepts only newly created comments on an issue/PR; all other
// deliveries (opened PRs, pushes, reviews without a body, edits/deletes)
// return (nil, nil) — this adapter only turns "someone commented" into a
// prompt, matching the webhook delivery-id idempotency feeding pkg/trigger.
func (a *Adapter) ParseInbound(ctx context.Context, headers map[string][]string, rawBody []byte) (*channel.InboundMessage, error) {
	eventType := firstHeader(headers, "X-GitHub-Event")
	if eventType != "issue_comment" && eventType != "pull_request_review_comment" {
		return nil, nil
	}
	var evt deliveryEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil {
		return nil, fmt.Errorf("channel/github: decode webhook body: %w", err)
	}
	if evt.Action != "created" || evt.Comment == nil {
		return nil, nil
	}
	number := 0
	switch {
	case evt.Issue != nil:
		number = evt.Issue.Number
	case evt.PullRequest != nil:
		number = evt.PullRequest.Number
	default:
		return nil, nil
	}
	return &channel.InboundMessage{
		ExternalID: evt.Comment.User.Login,
		SenderName: evt.Comment.User.Login,
		Text:       evt.Comment.Body,
		ChannelID:  evt.Repository.FullName,
		ThreadID:   strconv.Itoa(number),
	}, nil
}

func (a *Adapter) ScopeKeyParts(msg channel.InboundMessage, userID string) (scopekey.ChannelType, string) {
	return scopekey.ChannelGitHub, msg.ChannelID + ":pr:" + msg.ThreadID
}

// FormatMarkdown is a passthrough: GitHub's comment body is plain GFM
// markdown already, the journal's native format.
func (a *Adapter) FormatMarkdown(markdown string) string { return markdown }

// SendMessage posts a new issue/PR comment. channelID is "owner/repo",
// threadID is the issue or PR number.
func (a *Adapter) SendMessage(ctx context.Context, channelID, threadID, text string, attachments []channel.Attachment) (string, error) {
	owner, repo, err := splitRepo(channelID)
	if err != nil {
		return "", err
	}
	number, err := strconv.Atoi(threadID)
	if err != nil {
		return "", fmt.Errorf("channel/github: invalid issue/PR number %q: %w", threadID, err)
	}
	comment, _, err := a.client.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{Body: &text})
	if err != nil {
		return "", fmt.Errorf("channel/github: create comment: %w", err)
	}
	return strconv.FormatInt(comment.GetID(), 10), nil
}

func (a *Adapter) EditMessage(ctx context.Context, channelID, messageID, text string) error {
	owner, repo, err := splitRepo(channelID)
	if err != nil {
		return err
	}
	commentID, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return fmt.Errorf("channel/github: invalid comment id %q: %w", messageID, err)
	}
	_, _, err = a.client.Issues.EditComment(ctx, owner, repo, commentID, &github.IssueComment{Body: &text})
	if err != nil {
		return fmt.Errorf("channel/github: edit comment: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	owner, repo, err := splitRepo(channelID)
	if err != nil {
		return err
	}
	commentID, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return fmt.Errorf("channel/github: invalid comment id %q: %w", messageID, err)
	}
	if _, err := a.client.Issues.DeleteComment(ctx, owner, repo, commentID); err != nil {
		return fmt.Errorf("channel/github: delete comment: %w", err)
	}
	return nil
}

// SendTypingIndicator has no GitHub equivalent.
func (a *Adapter) SendTypingIndicator(ctx context.Context, channelID string) error { return nil }

// RegisterWebhook/UnregisterWebhook are no-ops: repository webhooks are
// configured by the repository owner out of band, not per-session.
func (a *Adapter) RegisterWebhook(ctx context.Context, callbackURL, secret string) error { return nil }
func (a *Adapter) UnregisterWebhook(ctx context.Context) error                          { return nil }

func splitRepo(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("channel/github: invalid repository %q, expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}

func firstHeader(headers map[string][]string, key string) string {
	for k, vs := range headers {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}
