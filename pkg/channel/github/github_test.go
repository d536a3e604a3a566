package github

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	a := New("token")
	body := []byte(`{"action":"created"}`)
	secret := "whsec"

	assert.True(t, a.VerifySignature(map[string][]string{"X-Hub-Signature-256": {sign(secret, body)}}, body, secret))
	assert.False(t, a.VerifySignature(map[string][]string{"X-Hub-Signature-256": {sign("wrong", body)}}, body, secret))
	assert.False(t, a.VerifySignature(map[string][]string{}, body, secret))
}

func TestParseInbound_NewIssueComment(t *testing.T) {
	a := New("token")
	body := []byte(`{
		"action": "created",
		"comment": {"body": "please re-run this", "user": {"login": "octocat"}},
		"issue": {"number": 42},
		"repository": {"full_name": "acme/widgets"}
	}`)
	headers := map[string][]string{"X-GitHub-Event": {"issue_comment"}}

	msg, err := a.ParseInbound(context.Background(), headers, body)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "please re-run this", msg.Text)
	assert.Equal(t, "acme/widgets", msg.ChannelID)
	assert.Equal(t, "42", msg.ThreadID)
}

func TestParseInbound_IgnoresNonCommentEvents(t *testing.T) {
	a := New("token")
	headers := map[string][]string{"X-GitHub-Event": {"push"}}

	msg, err := a.ParseInbound(context.Background(), headers, []byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestParseInbound_IgnoresEditedComments(t *testing.T) {
	a := New("token")
	body := []byte(`{"action":"edited","comment":{"body":"x","user":{"login":"o"}},"issue":{"number":1},"repository":{"full_name":"a/b"}}`)
	headers := map[string][]string{"X-GitHub-Event": {"issue_comment"}}

	msg, err := a.ParseInbound(context.Background(), headers, body)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestSplitRepo(t *testing.T) {
	owner, repo, err := splitRepo("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)

	_, _, err = splitRepo("not-a-repo-slug")
	assert.Error(t, err)
}
