package trigger

import "fmt"

// ManualRunKey builds the idempotency key for a direct workflow run not
// tied to any trigger.
func ManualRunKey(workflowID, userID, clientRequestID string) string {
	return fmt.Sprintf("manual:%s:%s:%s", workflowID, userID, clientRequestID)
}

// ManualTriggerRunKey builds the idempotency key for a manual run of a
// stored trigger.
func ManualTriggerRunKey(triggerID, userID, clientRequestID string) string {
	return fmt.Sprintf("manual-trigger:%s:%s:%s", triggerID, userID, clientRequestID)
}

// WebhookRunKey builds the idempotency key for a webhook delivery —
// source-defined, keyed on the delivery identifier the channel/HTTP caller
// supplies so redelivery of the same webhook never double-dispatches.
func WebhookRunKey(triggerID, deliveryID string) string {
	return fmt.Sprintf("webhook:%s:%s", triggerID, deliveryID)
}

// ScheduleRunKey builds the idempotency key for one cron tick — keyed on
// the tick's own scheduled time so a missed-then-caught-up tick, or a
// scheduler restart replaying the same minute, never double-dispatches.
func ScheduleRunKey(triggerID string, tickUnixSeconds int64) string {
	return fmt.Sprintf("schedule:%s:%d", triggerID, tickUnixSeconds)
}
