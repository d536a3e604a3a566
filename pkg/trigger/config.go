// Package trigger implements trigger CRUD, admission control, idempotent
// dispatch, and the cron-driven schedule-trigger firing loop. It sits above
// pkg/store (persistence) and pkg/holder (orchestrator-session delivery),
// and is the one component that decides whether an inbound webhook,
// schedule tick, or manual run becomes a new WorkflowExecution row or a
// prompt posted straight into a user's orchestrator session.
package trigger

import (
	"encoding/json"
	"fmt"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// WebhookConfig is the ConfigJSON shape for a webhook trigger.
type WebhookConfig struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

// ScheduleConfig is the ConfigJSON shape for a schedule trigger.
type ScheduleConfig struct {
	Cron     string               `json:"cron"`
	Timezone string               `json:"timezone,omitempty"`
	Target   store.TriggerTarget  `json:"target"`
	Prompt   string               `json:"prompt,omitempty"`
}

// ManualConfig is the (empty) ConfigJSON shape for a manual trigger.
type ManualConfig struct{}

const maxOrchestratorPromptLen = 100_000

// decodeWebhookConfig unmarshals and validates a webhook trigger's config.
func decodeWebhookConfig(raw []byte) (WebhookConfig, error) {
	var c WebhookConfig
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, relayerr.NewValidationError("config", "invalid webhook config JSON: "+err.Error())
	}
	if c.Path == "" {
		return c, relayerr.NewValidationError("config.path", "must be non-empty")
	}
	if c.Method == "" {
		c.Method = "POST"
	}
	if c.Method != "GET" && c.Method != "POST" {
		return c, relayerr.NewValidationError("config.method", "must be GET or POST")
	}
	return c, nil
}

// decodeScheduleConfig unmarshals and validates a schedule trigger's config.
func decodeScheduleConfig(raw []byte) (ScheduleConfig, error) {
	var c ScheduleConfig
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, relayerr.NewValidationError("config", "invalid schedule config JSON: "+err.Error())
	}
	if c.Cron == "" {
		return c, relayerr.NewValidationError("config.cron", "must be non-empty")
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	switch c.Target {
	case store.TargetWorkflow, store.TargetOrchestrator:
	case "":
		c.Target = store.TargetWorkflow
	default:
		return c, relayerr.NewValidationError("config.target", "must be workflow or orchestrator")
	}
	if c.Target == store.TargetOrchestrator {
		if c.Prompt == "" {
			return c, relayerr.NewValidationError("config.prompt", "required when target=orchestrator")
		}
		if len(c.Prompt) > maxOrchestratorPromptLen {
			return c, relayerr.NewValidationError("config.prompt", fmt.Sprintf("exceeds %d characters", maxOrchestratorPromptLen))
		}
	}
	return c, nil
}
