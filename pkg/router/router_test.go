package router

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/channel"
	"github.com/fluxrelay/fluxrelay/pkg/holder"
	"github.com/fluxrelay/fluxrelay/pkg/scopekey"
	"github.com/fluxrelay/fluxrelay/pkg/store/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubAdapter is a minimal channel.Adapter for one fixed channel type,
// parsing every inbound delivery into a fixed InboundMessage regardless of
// the raw body — enough to exercise Router without a real platform SDK.
type stubAdapter struct {
	ct         scopekey.ChannelType
	externalID string
	channelID  string
	text       string
	verifyOK   bool
	dropNext   bool
}

func (a *stubAdapter) ChannelType() scopekey.ChannelType { return a.ct }

func (a *stubAdapter) VerifySignature(headers map[string][]string, rawBody []byte, secret string) bool {
	return a.verifyOK
}

func (a *stubAdapter) ParseInbound(ctx context.Context, headers map[string][]string, rawBody []byte) (*channel.InboundMessage, error) {
	if a.dropNext {
		return nil, nil
	}
	return &channel.InboundMessage{
		ExternalID: a.externalID,
		Text:       a.text,
		ChannelID:  a.channelID,
	}, nil
}

func (a *stubAdapter) ScopeKeyParts(msg channel.InboundMessage, userID string) (scopekey.ChannelType, string) {
	return a.ct, msg.ChannelID
}

func (a *stubAdapter) FormatMarkdown(markdown string) string { return markdown }

func (a *stubAdapter) SendMessage(ctx context.Context, channelID, threadID, text string, attachments []channel.Attachment) (string, error) {
	return "", nil
}
func (a *stubAdapter) EditMessage(ctx context.Context, channelID, messageID, text string) error {
	return nil
}
func (a *stubAdapter) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return nil
}
func (a *stubAdapter) SendTypingIndicator(ctx context.Context, channelID string) error { return nil }
func (a *stubAdapter) RegisterWebhook(ctx context.Context, callbackURL, secret string) error {
	return nil
}
func (a *stubAdapter) UnregisterWebhook(ctx context.Context) error { return nil }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatal("condition not met before timeout")
	}
}

func TestDispatch_FirstContact_ProvisionsIdentityBindingAndSubmitsPrompt(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	holders := holder.NewRegistry(st, testLogger())

	adapter := &stubAdapter{ct: scopekey.ChannelTelegram, externalID: "tg-external-1", channelID: "chat-1", text: "hello", verifyOK: true}
	registry := channel.NewRegistry(adapter)
	r := New(registry, holders, &st)

	accepted, err := r.Dispatch(context.Background(), scopekey.ChannelTelegram, nil, []byte(`{}`), "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !accepted {
		t.Fatal("expected first-contact delivery to be accepted")
	}

	link, err := st.IdentityLinks.Resolve(context.Background(), string(scopekey.ChannelTelegram), "tg-external-1")
	if err != nil {
		t.Fatalf("expected identity link to be provisioned: %v", err)
	}

	key := scopekey.Compose(link.UserID, scopekey.ChannelTelegram, "chat-1")
	binding, err := st.ChannelBindings.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("expected channel binding to be provisioned: %v", err)
	}
	if binding.QueueMode != DefaultQueueMode {
		t.Fatalf("expected default queue mode, got %s", binding.QueueMode)
	}

	// No runner is attached in this test, so the holder queues the prompt
	// without journaling it (mirrored by pkg/holder's own
	// TestSubmitPrompt_NoRunner_StaysQueued) — the observable proof that
	// Dispatch got as far as handing the prompt to a live holder is that
	// GetOrCreate actually started one for this session.
	waitFor(t, time.Second, func() bool {
		_, ok := holders.Get(binding.SessionID)
		return ok
	})
}

func TestDispatch_SecondContact_ReusesIdentityAndBinding(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	holders := holder.NewRegistry(st, testLogger())

	adapter := &stubAdapter{ct: scopekey.ChannelSlack, externalID: "slack-user-1", channelID: "C123", text: "first", verifyOK: true}
	registry := channel.NewRegistry(adapter)
	r := New(registry, holders, &st)

	ctx := context.Background()
	if _, err := r.Dispatch(ctx, scopekey.ChannelSlack, nil, []byte(`{}`), "secret"); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	link1, err := st.IdentityLinks.Resolve(ctx, string(scopekey.ChannelSlack), "slack-user-1")
	if err != nil {
		t.Fatalf("resolve after first dispatch: %v", err)
	}
	key := scopekey.Compose(link1.UserID, scopekey.ChannelSlack, "C123")
	binding1, err := st.ChannelBindings.Get(ctx, key)
	if err != nil {
		t.Fatalf("binding after first dispatch: %v", err)
	}

	adapter.text = "second"
	if _, err := r.Dispatch(ctx, scopekey.ChannelSlack, nil, []byte(`{}`), "secret"); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	link2, err := st.IdentityLinks.Resolve(ctx, string(scopekey.ChannelSlack), "slack-user-1")
	if err != nil {
		t.Fatalf("resolve after second dispatch: %v", err)
	}
	if link1.UserID != link2.UserID {
		t.Fatalf("expected identity link reuse, got %s vs %s", link1.UserID, link2.UserID)
	}
	binding2, err := st.ChannelBindings.Get(ctx, key)
	if err != nil {
		t.Fatalf("binding after second dispatch: %v", err)
	}
	if binding1.SessionID != binding2.SessionID {
		t.Fatalf("expected the same session to be reused, got %s vs %s", binding1.SessionID, binding2.SessionID)
	}

	waitFor(t, time.Second, func() bool {
		_, ok := holders.Get(binding1.SessionID)
		return ok
	})
}

func TestDispatch_RejectsBadSignature(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	holders := holder.NewRegistry(st, testLogger())

	adapter := &stubAdapter{ct: scopekey.ChannelGitHub, externalID: "gh-1", channelID: "owner/repo#1", text: "x", verifyOK: false}
	registry := channel.NewRegistry(adapter)
	r := New(registry, holders, &st)

	_, err := r.Dispatch(context.Background(), scopekey.ChannelGitHub, nil, []byte(`{}`), "secret")
	if err == nil {
		t.Fatal("expected a signature verification error")
	}
}

func TestDispatch_DroppedUpdate_ReturnsFalseNotError(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	holders := holder.NewRegistry(st, testLogger())

	adapter := &stubAdapter{ct: scopekey.ChannelTelegram, verifyOK: true, dropNext: true}
	registry := channel.NewRegistry(adapter)
	r := New(registry, holders, &st)

	accepted, err := r.Dispatch(context.Background(), scopekey.ChannelTelegram, nil, []byte(`{}`), "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted {
		t.Fatal("expected a recognized-but-dropped update to report not-accepted")
	}
}

func TestDispatch_UnknownChannelType_Errors(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	holders := holder.NewRegistry(st, testLogger())
	registry := channel.NewRegistry()
	r := New(registry, holders, &st)

	_, err := r.Dispatch(context.Background(), scopekey.ChannelAPI, nil, []byte(`{}`), "secret")
	if err == nil {
		t.Fatal("expected an error for an unregistered channel type")
	}
}

