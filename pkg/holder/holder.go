package holder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/fluxrelay/fluxrelay/pkg/journal"
	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// childSessionPattern extracts a child session id from a spawn_session tool
// part, accepting either a prefixed message or a bare UUID.
var childSessionPattern = regexp.MustCompile(`(?:Child session spawned:\s*)?([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`)

const questionSweepInterval = 30 * time.Second

// inboxMsg is the sum type of everything that can mutate a Holder. Only the
// actor goroutine running Run ever processes these, so no field on Holder
// needs its own lock.
type inboxMsg interface{ isInboxMsg() }

type connectClientMsg struct {
	conn   *clientConn
	result chan<- error
}

func (connectClientMsg) isInboxMsg() {}

type disconnectClientMsg struct{ id string }

func (disconnectClientMsg) isInboxMsg() {}

type connectRunnerMsg struct {
	conn         *runnerConn
	providedHash string
	result       chan<- error
}

func (connectRunnerMsg) isInboxMsg() {}

type disconnectRunnerMsg struct{ clean bool; reason string }

func (disconnectRunnerMsg) isInboxMsg() {}

type connectChannelMsg struct {
	conn   *channelConn
	result chan<- error
}

func (connectChannelMsg) isInboxMsg() {}

type disconnectChannelMsg struct{ id string }

func (disconnectChannelMsg) isInboxMsg() {}

type submitPromptMsg struct{ prompt Prompt }

func (submitPromptMsg) isInboxMsg() {}

type abortMsg struct {
	channelType string
	channelID   string
}

func (abortMsg) isInboxMsg() {}

type answerMsg struct {
	questionID string
	answer     string
}

func (answerMsg) isInboxMsg() {}

type diffMsg struct {
	channelType string
	channelID   string
}

func (diffMsg) isInboxMsg() {}

type reviewMsg struct {
	channelType string
	channelID   string
}

func (reviewMsg) isInboxMsg() {}

type commandMsg struct {
	command     string
	channelType string
	channelID   string
}

func (commandMsg) isInboxMsg() {}

type revertMsg struct{ messageID string }

func (revertMsg) isInboxMsg() {}

type runnerFrameMsg struct{ frame Frame }

func (runnerFrameMsg) isInboxMsg() {}

type requestTimeoutMsg struct{ requestID string }

func (requestTimeoutMsg) isInboxMsg() {}

type registerRequestMsg struct {
	requestID string
	op        string
	payload   any
	ready     chan<- (<-chan pendingResult)
}

func (registerRequestMsg) isInboxMsg() {}

type sweepQuestionsMsg struct{}

func (sweepQuestionsMsg) isInboxMsg() {}

type stopMsg struct{}

func (stopMsg) isInboxMsg() {}

// Holder is the single-writer session actor. Construct with New,
// start its actor loop with Run in its own goroutine, and interact with it
// only through its exported methods (which all funnel through inbox).
type Holder struct {
	sessionID string
	ownerID   string
	store     store.Store
	log       *slog.Logger

	inbox chan inboxMsg
	done  chan struct{}

	journal *journal.Journal
	queue   *PromptQueue
	pending *PendingRequests

	status      store.SessionStatus
	agentStatus AgentStatus

	clients  map[string]*clientConn
	runner   *runnerConn
	channels map[string]*channelConn

	runnerTokenHash string
	inFlight        *Prompt
	pendingQuestions map[string]*PendingQuestion
	childSessions    []string

	statusPublisher StatusPublisher
}

// StatusPublisher is an optional cross-process fan-out hook: when set, every
// session status change is also published outside this process (see
// pkg/feed) so dashboards attached to a different server process stay live.
// A Holder with no publisher set behaves exactly as before — this is never
// required for correctness, only for cross-process visibility.
type StatusPublisher interface {
	Publish(sessionID string, status store.SessionStatus, agentStatus AgentStatus)
}

// SetStatusPublisher wires p in. Safe to call at most once, before Run
// starts — Registry does this immediately after New, so no inbox message is
// needed.
func (h *Holder) SetStatusPublisher(p StatusPublisher) {
	h.statusPublisher = p
}

// New constructs a Holder for an existing or newly created session record.
// Call Replay after New (and before Run) to restore persisted state on
// process restart.
func New(sessionID, ownerID string, st store.Store, log *slog.Logger) *Holder {
	return &Holder{
		sessionID:        sessionID,
		ownerID:          ownerID,
		store:            st,
		log:              log.With("sessionId", sessionID),
		inbox:            make(chan inboxMsg, 64),
		done:             make(chan struct{}),
		journal:          journal.New(sessionID),
		queue:            NewPromptQueue(),
		pending:          NewPendingRequests(),
		status:           store.StatusInitializing,
		agentStatus:      AgentIdle,
		clients:          make(map[string]*clientConn),
		channels:         make(map[string]*channelConn),
		pendingQuestions: make(map[string]*PendingQuestion),
	}
}

// Replay rebuilds in-memory state from the store on holder init/restart: it
// reloads the journal, reconstructs childSessions by scanning tool parts
// for spawn_session calls, and restores the session status and runner token
// hash from the session record. Audit log entries are not reloaded.
func (h *Holder) Replay(ctx context.Context) error {
	rows, err := h.store.Messages.List(ctx, h.sessionID)
	if err != nil {
		return fmt.Errorf("holder: replay messages: %w", err)
	}
	messages := make([]journal.Message, 0, len(rows))
	for _, row := range rows {
		var m journal.Message
		if err := json.Unmarshal(row.Payload, &m); err != nil {
			h.log.Warn("skipping unparseable persisted message", "id", row.ID, "error", err)
			continue
		}
		messages = append(messages, m)
		h.scanForChildSessions(m)
	}
	h.journal.Load(messages)

	rec, err := h.store.Sessions.Get(ctx, h.sessionID)
	if err != nil {
		return fmt.Errorf("holder: replay session record: %w", err)
	}
	h.status = rec.Status
	h.runnerTokenHash = rec.RunnerTokenHash
	h.agentStatus = AgentQueued
	if h.queue.Len() == 0 {
		h.agentStatus = AgentIdle
	}
	return nil
}

// scanForChildSessions looks for tool parts recording a spawn_session call
// and extracts the child session id.
func (h *Holder) scanForChildSessions(m journal.Message) {
	for _, part := range m.Parts {
		if part.Type != journal.PartToolCall || part.ToolName != "spawn_session" {
			continue
		}
		resultText, ok := part.Result.(string)
		if !ok {
			continue
		}
		match := childSessionPattern.FindStringSubmatch(resultText)
		if match == nil {
			continue
		}
		h.childSessions = append(h.childSessions, match[1])
	}
}

// Run drains the inbox until Stop is called or ctx is cancelled. It must run
// in its own goroutine; it is the only goroutine permitted to mutate Holder
// fields.
func (h *Holder) Run(ctx context.Context) {
	defer close(h.done)
	sweep := time.NewTicker(questionSweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			h.handleSweepQuestions()
		case msg := <-h.inbox:
			if _, ok := msg.(stopMsg); ok {
				return
			}
			h.handle(ctx, msg)
		}
	}
}

// Stop requests the actor loop to exit and waits for it to do so.
func (h *Holder) Stop() {
	select {
	case h.inbox <- stopMsg{}:
	default:
	}
	<-h.done
}

func (h *Holder) send(msg inboxMsg) { h.inbox <- msg }

func (h *Holder) handle(ctx context.Context, msg inboxMsg) {
	switch m := msg.(type) {
	case connectClientMsg:
		m.result <- h.onConnectClient(ctx, m.conn)
	case disconnectClientMsg:
		h.onDisconnectClient(ctx, m.id)
	case connectRunnerMsg:
		m.result <- h.onConnectRunner(ctx, m.conn, m.providedHash)
	case disconnectRunnerMsg:
		h.onDisconnectRunner(ctx, m.clean, m.reason)
	case connectChannelMsg:
		m.result <- h.onConnectChannel(ctx, m.conn)
	case disconnectChannelMsg:
		h.onDisconnectChannel(m.id)
	case submitPromptMsg:
		h.onSubmitPrompt(ctx, m.prompt)
	case abortMsg:
		h.onAbort(ctx)
	case answerMsg:
		h.onAnswer(ctx, m.questionID, m.answer)
	case diffMsg:
		h.onDiff(ctx)
	case reviewMsg:
		h.onReview(ctx)
	case commandMsg:
		h.onCommand(ctx, m.command)
	case revertMsg:
		h.onRevert(ctx, m.messageID)
	case runnerFrameMsg:
		h.onRunnerFrame(ctx, m.frame)
	case registerRequestMsg:
		h.onRegisterRequest(ctx, m)
	case requestTimeoutMsg:
		h.pending.Timeout(m.requestID)
	case sweepQuestionsMsg:
		h.handleSweepQuestions()
	}
}

func newRequestID() string { return uuid.New().String() }
