package trigger

import (
	"strings"
	"testing"

	"github.com/fluxrelay/fluxrelay/pkg/store"
)

func TestDecodeWebhookConfig_DefaultsMethodToPOST(t *testing.T) {
	cfg, err := decodeWebhookConfig([]byte(`{"path":"/hooks/deploy"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Method != "POST" {
		t.Fatalf("expected default method POST, got %s", cfg.Method)
	}
}

func TestDecodeWebhookConfig_RejectsEmptyPath(t *testing.T) {
	if _, err := decodeWebhookConfig([]byte(`{"path":""}`)); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestDecodeWebhookConfig_RejectsUnsupportedMethod(t *testing.T) {
	if _, err := decodeWebhookConfig([]byte(`{"path":"/x","method":"PUT"}`)); err == nil {
		t.Fatal("expected error for PUT method")
	}
}

func TestDecodeScheduleConfig_DefaultsTimezoneAndTarget(t *testing.T) {
	cfg, err := decodeScheduleConfig([]byte(`{"cron":"0 0 * * * *"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Timezone != "UTC" {
		t.Fatalf("expected default timezone UTC, got %s", cfg.Timezone)
	}
	if cfg.Target != store.TargetWorkflow {
		t.Fatalf("expected default target workflow, got %s", cfg.Target)
	}
}

func TestDecodeScheduleConfig_RequiresPromptForOrchestratorTarget(t *testing.T) {
	_, err := decodeScheduleConfig([]byte(`{"cron":"0 0 * * * *","target":"orchestrator"}`))
	if err == nil {
		t.Fatal("expected error when orchestrator target has no prompt")
	}
}

func TestDecodeScheduleConfig_RejectsOversizedPrompt(t *testing.T) {
	huge := strings.Repeat("a", maxOrchestratorPromptLen+1)
	_, err := decodeScheduleConfig([]byte(`{"cron":"0 0 * * * *","target":"orchestrator","prompt":"` + huge + `"}`))
	if err == nil {
		t.Fatal("expected error for oversized prompt")
	}
}

func TestDecodeScheduleConfig_RejectsEmptyCron(t *testing.T) {
	if _, err := decodeScheduleConfig([]byte(`{"cron":""}`)); err == nil {
		t.Fatal("expected error for empty cron expression")
	}
}

func TestDecodeScheduleConfig_RejectsUnknownTarget(t *testing.T) {
	if _, err := decodeScheduleConfig([]byte(`{"cron":"0 0 * * * *","target":"nowhere"}`)); err == nil {
		t.Fatal("expected error for unknown target")
	}
}
