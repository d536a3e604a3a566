package trigger

import (
	"context"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// validateCreate enforces the per-type CRUD invariants and the webhook path
// uniqueness check before a trigger is persisted. excludeID is the
// trigger's own id on update (empty on create).
func (s *Service) validateCreate(ctx context.Context, t store.TriggerRecord, excludeID string) error {
	if t.Name == "" {
		return relayerr.NewValidationError("name", "must be non-empty")
	}

	switch t.Type {
	case store.TriggerWebhook:
		cfg, err := decodeWebhookConfig(t.ConfigJSON)
		if err != nil {
			return err
		}
		inUse, err := s.store.Triggers.PathInUse(ctx, t.UserID, cfg.Path, excludeID)
		if err != nil {
			return err
		}
		if inUse {
			return relayerr.NewValidationError("config.path", "already in use by another trigger")
		}
		if t.WorkflowID == nil {
			return relayerr.NewValidationError("workflowId", "required for non-schedule triggers")
		}

	case store.TriggerSchedule:
		cfg, err := decodeScheduleConfig(t.ConfigJSON)
		if err != nil {
			return err
		}
		if cfg.Target == store.TargetWorkflow && t.WorkflowID == nil {
			return relayerr.NewValidationError("workflowId", "required when target=workflow")
		}

	case store.TriggerManual:
		if t.WorkflowID == nil {
			return relayerr.NewValidationError("workflowId", "required for manual triggers")
		}

	default:
		return relayerr.NewValidationError("type", "must be webhook, schedule, or manual")
	}

	return nil
}
