// Package store defines the persistence contracts for every durable entity
// the platform manages — sessions, messages, audit entries, channel
// bindings, identity links, triggers, workflows, executions, steps, and
// mutation proposals. Callers (pkg/holder, pkg/trigger, pkg/workflow)
// depend only on these interfaces, never on a concrete driver, the same way
// a catch-up query depends on an interface rather than a concrete client.
//
// Two implementations are provided: store/memstore (in-process, used by
// tests and as the reference/default runtime implementation) and
// store/pgstore (a jackc/pgx/v5-backed adapter with golang-migrate schema
// migrations, for deployments that need the row store to survive process
// restarts independently of any one holder's replay log).
package store

import (
	"context"
	"time"
)

// SessionPurpose distinguishes interactive, orchestrator, and workflow
// sessions.
type SessionPurpose string

const (
	PurposeInteractive  SessionPurpose = "interactive"
	PurposeOrchestrator SessionPurpose = "orchestrator"
	PurposeWorkflow     SessionPurpose = "workflow"
)

// SessionStatus is the session-level status machine.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusRunning       SessionStatus = "running"
	StatusIdle          SessionStatus = "idle"
	StatusHibernating   SessionStatus = "hibernating"
	StatusHibernated    SessionStatus = "hibernated"
	StatusRestoring     SessionStatus = "restoring"
	StatusTerminated    SessionStatus = "terminated"
	StatusArchived      SessionStatus = "archived"
	StatusError         SessionStatus = "error"
)

// Terminal reports whether a status is final: no further transitions apply.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusTerminated, StatusArchived, StatusError:
		return true
	default:
		return false
	}
}

// SessionRecord is the persisted representation of a Session.
type SessionRecord struct {
	ID              string
	OwnerID         string
	Workspace       string
	Status          SessionStatus
	Purpose         SessionPurpose
	ParentID        *string
	PersonaID       *string
	GatewayURL      string
	SandboxID       string
	RunnerTokenHash string
	CreatedAt       time.Time
	LastActiveAt    time.Time
}

// SessionStore persists Session rows.
type SessionStore interface {
	Create(ctx context.Context, s SessionRecord) (SessionRecord, error)
	Get(ctx context.Context, id string) (SessionRecord, error)
	// GetByOwnerAndPurpose finds a session owned by ownerID with the given
	// purpose — used to find-or-create the user's orchestrator session.
	GetByOwnerAndPurpose(ctx context.Context, ownerID string, purpose SessionPurpose) (SessionRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]SessionRecord, error)
	UpdateStatus(ctx context.Context, id string, status SessionStatus) error
	TouchLastActive(ctx context.Context, id string, at time.Time) error
	SetRunnerTokenHash(ctx context.Context, id, hash string) error
	// ListByStatuses returns sessions in any of the given statuses —
	// used by the stale-execution reconciler.
	ListByStatuses(ctx context.Context, statuses []SessionStatus) ([]SessionRecord, error)
}

// MessageStore persists journal.Message rows (kept untyped here — []byte
// JSON — to avoid pkg/store depending on pkg/journal; pkg/holder marshals).
type MessageRow struct {
	SessionID string
	ID        string
	CreatedAt time.Time
	Payload   []byte // JSON-encoded journal.Message
}

type MessageStore interface {
	Append(ctx context.Context, row MessageRow) error
	Update(ctx context.Context, sessionID, messageID string, payload []byte) error
	Remove(ctx context.Context, sessionID string, ids []string) error
	List(ctx context.Context, sessionID string) ([]MessageRow, error)
}

// AuditEntry is one row of a session's bounded audit log.
type AuditEntry struct {
	SessionID string
	Seq       int64
	At        time.Time
	Kind      string
	Detail    string
}

// AuditLogStore persists a per-session ring of audit entries.
type AuditLogStore interface {
	Append(ctx context.Context, entry AuditEntry) error
	// Recent returns up to limit most-recent entries, oldest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]AuditEntry, error)
}

// ChannelBinding maps a scope key to the session that owns it, plus the
// queue policy applied to prompts arriving on that lane.
type ChannelBinding struct {
	ScopeKey          string
	SessionID         string
	QueueMode         string
	CollectDebounceMs int
}

type ChannelBindingStore interface {
	Get(ctx context.Context, scopeKey string) (ChannelBinding, error)
	Upsert(ctx context.Context, b ChannelBinding) error
}

// IdentityLink maps an external channel identity to an internal user.
type IdentityLink struct {
	UserID       string
	Provider     string
	ExternalID   string
	ExternalName string
	TeamID       string
}

type IdentityLinkStore interface {
	Resolve(ctx context.Context, provider, externalID string) (IdentityLink, error)
	Upsert(ctx context.Context, link IdentityLink) error
}

// TriggerType enumerates the trigger kinds.
type TriggerType string

const (
	TriggerWebhook  TriggerType = "webhook"
	TriggerSchedule TriggerType = "schedule"
	TriggerManual   TriggerType = "manual"
)

// TriggerTarget is only meaningful for schedule triggers.
type TriggerTarget string

const (
	TargetWorkflow     TriggerTarget = "workflow"
	TargetOrchestrator TriggerTarget = "orchestrator"
)

// TriggerRecord is the persisted representation of a Trigger.
type TriggerRecord struct {
	ID               string
	UserID           string
	WorkflowID       *string
	Name             string
	Enabled          bool
	Type             TriggerType
	ConfigJSON       []byte // webhook{path,method} | schedule{cron,timezone,target,prompt} | manual{}
	VariableMapping  map[string]string
	LastRunAt        *time.Time
}

type TriggerStore interface {
	Create(ctx context.Context, t TriggerRecord) (TriggerRecord, error)
	Get(ctx context.Context, id string) (TriggerRecord, error)
	Update(ctx context.Context, t TriggerRecord) error
	Delete(ctx context.Context, id string) error
	ListEnabled(ctx context.Context, triggerType TriggerType) ([]TriggerRecord, error)
	// FindByWebhookPath looks up the enabled webhook trigger whose
	// config.path matches, scoped to the owning user (path uniqueness is
	// per-user,).
	FindByWebhookPath(ctx context.Context, userID, path string) (TriggerRecord, error)
	// PathInUse checks the uniqueness invariant at create/update time,
	// excluding excludeID (used when updating a trigger's own path).
	PathInUse(ctx context.Context, userID, path, excludeID string) (bool, error)
	SetLastRunAt(ctx context.Context, id string, at time.Time) error
}

// WorkflowRecord is a minimal workflow definition: just enough of the
// "workflow engine" surface for the trigger dispatcher and execution
// runtime to operate on — the step-graph DSL itself is an external
// collaborator's concern (the declarative step graph format is out of scope;
// only its snapshot/hash/version envelope is specified here).
type WorkflowRecord struct {
	ID          string
	OwnerID     string
	Name        string
	Data        []byte // opaque step-graph snapshot
	Version     string // major.minor.patch
	AllowSelfModification bool
	ApprovalTTL time.Duration
}

type WorkflowStore interface {
	Get(ctx context.Context, id string) (WorkflowRecord, error)
	Update(ctx context.Context, w WorkflowRecord) error
	// ArchiveVersion records (workflowId, workflowHash) -> snapshot with
	// ON CONFLICT DO NOTHING semantics.
	ArchiveVersion(ctx context.Context, workflowID, hash string, snapshot []byte, source string) error
	LookupVersion(ctx context.Context, workflowID, hash string) (WorkflowVersionRecord, error)
}

// WorkflowVersionRecord is one row of workflow_version_history.
type WorkflowVersionRecord struct {
	WorkflowID string
	Hash       string
	Snapshot   []byte
	Source     string // sync|update|proposal_apply|rollback|system
	ArchivedAt time.Time
}

// ExecutionStatus is the workflow execution state machine.
type ExecutionStatus string

const (
	ExecPending          ExecutionStatus = "pending"
	ExecRunning          ExecutionStatus = "running"
	ExecWaitingApproval  ExecutionStatus = "waiting_approval"
	ExecCompleted        ExecutionStatus = "completed"
	ExecFailed           ExecutionStatus = "failed"
	ExecCancelled        ExecutionStatus = "cancelled"
)

// Terminal reports whether the execution status is final.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecCompleted, ExecFailed, ExecCancelled:
		return true
	default:
		return false
	}
}

// ExecutionRecord is the persisted WorkflowExecution row.
type ExecutionRecord struct {
	ID               string
	WorkflowID       string
	UserID           string
	TriggerID        *string
	Status           ExecutionStatus
	TriggerType      TriggerType
	TriggerMetadata  []byte
	Variables        []byte
	Outputs          []byte
	Error            string
	StartedAt        time.Time
	CompletedAt      *time.Time
	WorkflowVersion  string
	WorkflowHash     string
	WorkflowSnapshot []byte
	IdempotencyKey   string
	SessionID        string
	ResumeToken      *string
	RuntimeState     []byte
	InitiatorType    string
	InitiatorUserID  string
	AttemptCount     int
}

type ExecutionStore interface {
	Create(ctx context.Context, e ExecutionRecord) (ExecutionRecord, error)
	Get(ctx context.Context, id string) (ExecutionRecord, error)
	// FindByIdempotencyKey implements the dedup lookup.
	FindByIdempotencyKey(ctx context.Context, workflowID, key string) (ExecutionRecord, bool, error)
	Update(ctx context.Context, e ExecutionRecord) error
	ListNonTerminal(ctx context.Context) ([]ExecutionRecord, error)
	// CountActive returns (perUser, global) counts of executions in
	// pending|running|waiting_approval, for admission control.
	CountActive(ctx context.Context, userID string) (perUser int, global int, err error)
	ListWaitingApprovalOlderThan(ctx context.Context, cutoff time.Time) ([]ExecutionRecord, error)
}

// StepStatus mirrors the execution status vocabulary for individual steps.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepRecord is one workflow_execution_steps row, keyed by
// (executionId, stepId, attempt).
type StepRecord struct {
	ExecutionID string
	StepID      string
	Attempt     int
	Status      StepStatus
	Input       []byte
	Output      []byte
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

type StepStore interface {
	// Upsert applies the COALESCE semantics from: startedAt and input
	// never regress once set; status/error/output/completedAt always
	// reflect the latest call.
	Upsert(ctx context.Context, s StepRecord) error
	ListForExecution(ctx context.Context, executionID string) ([]StepRecord, error)
}

// MutationProposalRecord is a workflow_mutation_proposals row.
type MutationProposalRecord struct {
	ID              string
	WorkflowID      string
	ExecutionID     string
	BaseWorkflowHash string
	ProposedData    []byte
	Status          string // pending|approved|rejected|applied|expired
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

type ProposalStore interface {
	Create(ctx context.Context, p MutationProposalRecord) (MutationProposalRecord, error)
	Get(ctx context.Context, id string) (MutationProposalRecord, error)
	Update(ctx context.Context, p MutationProposalRecord) error
	ListPendingExpiredBefore(ctx context.Context, cutoff time.Time) ([]MutationProposalRecord, error)
}

// Store bundles every repository the platform needs. Components take the
// narrowest interface they actually use (e.g. pkg/trigger takes
// TriggerStore + ExecutionStore + WorkflowStore), but wiring code in cmd/
// constructs one concrete Store and passes its fields through.
type Store struct {
	Sessions        SessionStore
	Messages        MessageStore
	AuditLog        AuditLogStore
	ChannelBindings ChannelBindingStore
	IdentityLinks   IdentityLinkStore
	Triggers        TriggerStore
	Workflows       WorkflowStore
	Executions      ExecutionStore
	Steps           StepStore
	Proposals       ProposalStore
}
