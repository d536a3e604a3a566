package scopekey

import "testing"

func TestSlackOmitsThreadWhenEmpty(t *testing.T) {
	withThread := Slack("u1", "T1", "C1", "171234.5678")
	withoutThread := Slack("u1", "T1", "C1", "")

	if withThread == withoutThread {
		t.Fatalf("expected thread-qualified and channel-level keys to differ")
	}
	if withoutThread != "user:u1:slack:T1:C1" {
		t.Fatalf("unexpected key: %s", withoutThread)
	}
	if withThread != "user:u1:slack:T1:C1:171234.5678" {
		t.Fatalf("unexpected key: %s", withThread)
	}
}

func TestAdaptersAgreeOnEquivalentInputs(t *testing.T) {
	a := Telegram("u1", "999")
	b := build("u1", ChannelTelegram, "999")
	if a != b {
		t.Fatalf("two constructions of the same logical key diverged: %s != %s", a, b)
	}
}

func TestGitHubScopeKey(t *testing.T) {
	got := GitHub("u1", "acme/widgets", 42)
	want := "user:u1:github:acme/widgets:pr:42"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestAPIScopeKey(t *testing.T) {
	got := API("u1", "idem-123")
	want := "user:u1:api:idem-123"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}
