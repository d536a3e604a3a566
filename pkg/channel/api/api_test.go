package api

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
	a := New()
	body := []byte(`{"text":"hi"}`)
	secret := "shared"

	assert.True(t, a.VerifySignature(map[string][]string{"X-Signature": {sign(secret, body)}}, body, secret))
	assert.False(t, a.VerifySignature(map[string][]string{"X-Signature": {sign("wrong", body)}}, body, secret))
}

func TestParseInbound_UsesSuppliedIdempotencyKey(t *testing.T) {
	a := New()
	body := []byte(`{"userId":"u1","text":"deploy it","idempotencyKey":"req-42"}`)

	msg, err := a.ParseInbound(context.Background(), nil, body)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "u1", msg.UserID)
	assert.Equal(t, "deploy it", msg.Text)
	assert.Equal(t, "req-42", msg.ChannelID)
}

func TestParseInbound_DerivesDigestWhenKeyMissing(t *testing.T) {
	a := New()
	body := []byte(`{"userId":"u1","text":"deploy it"}`)

	msg, err := a.ParseInbound(context.Background(), nil, body)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Len(t, msg.ChannelID, 64) // hex sha256 digest
}

func TestParseInbound_EmptyTextIgnored(t *testing.T) {
	a := New()
	msg, err := a.ParseInbound(context.Background(), nil, []byte(`{"userId":"u1","text":"  "}`))
	require.NoError(t, err)
	assert.Nil(t, msg)
}
