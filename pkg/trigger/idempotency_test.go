package trigger

import "testing"

func TestIdempotencyKeys_AreStableAndDistinct(t *testing.T) {
	keys := []string{
		ManualRunKey("wf-1", "user-1", "req-1"),
		ManualTriggerRunKey("trig-1", "user-1", "req-1"),
		WebhookRunKey("trig-1", "delivery-1"),
		ScheduleRunKey("trig-1", 1_700_000_000),
	}

	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("duplicate idempotency key produced: %s", k)
		}
		seen[k] = true
	}

	if got := ManualRunKey("wf-1", "user-1", "req-1"); got != keys[0] {
		t.Fatalf("ManualRunKey not stable: got %s, want %s", got, keys[0])
	}
	if got := ScheduleRunKey("trig-1", 1_700_000_000); got != keys[3] {
		t.Fatalf("ScheduleRunKey not stable: got %s, want %s", got, keys[3])
	}
}

func TestScheduleRunKey_DistinctTicksDistinctKeys(t *testing.T) {
	a := ScheduleRunKey("trig-1", 1000)
	b := ScheduleRunKey("trig-1", 1060)
	if a == b {
		t.Fatalf("expected distinct keys for distinct ticks, got %s == %s", a, b)
	}
}
