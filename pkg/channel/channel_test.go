package channel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxrelay/fluxrelay/pkg/channel"
	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
)

type fakeAdapter struct{ ct scopekey.ChannelType }

func (f fakeAdapter) ChannelType() scopekey.ChannelType { return f.ct }
func (f fakeAdapter) VerifySignature(map[string][]string, []byte, string) bool { return true }
func (f fakeAdapter) ParseInbound(context.Context, map[string][]string, []byte) (*channel.InboundMessage, error) {
	return nil, nil
}
func (f fakeAdapter) ScopeKeyParts(channel.InboundMessage, string) (scopekey.ChannelType, string) {
	return f.ct, ""
}
func (f fakeAdapter) FormatMarkdown(s string) string { return s }
func (f fakeAdapter) SendMessage(context.Context, string, string, string, []channel.Attachment) (string, error) {
	return "", nil
}
func (f fakeAdapter) EditMessage(context.Context, string, string, string) error   { return nil }
func (f fakeAdapter) DeleteMessage(context.Context, string, string) error        { return nil }
func (f fakeAdapter) SendTypingIndicator(context.Context, string) error          { return nil }
func (f fakeAdapter) RegisterWebhook(context.Context, string, string) error      { return nil }
func (f fakeAdapter) UnregisterWebhook(context.Context) error                    { return nil }

func TestRegistry_GetKnownAndUnknown(t *testing.T) {
	reg := channel.NewRegistry(fakeAdapter{ct: scopekey.ChannelWeb}, fakeAdapter{ct: scopekey.ChannelSlack})

	got, err := reg.Get(scopekey.ChannelWeb)
	require.NoError(t, err)
	assert.Equal(t, scopekey.ChannelWeb, got.ChannelType())

	_, err = reg.Get(scopekey.ChannelTelegram)
	assert.Error(t, err)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := channel.NewRegistry(fakeAdapter{ct: scopekey.ChannelAPI})
	reg.Register(fakeAdapter{ct: scopekey.ChannelAPI})

	got, err := reg.Get(scopekey.ChannelAPI)
	require.NoError(t, err)
	assert.Equal(t, scopekey.ChannelAPI, got.ChannelType())
}
