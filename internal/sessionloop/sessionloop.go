// Package sessionloop runs the per-session state machine: coding →
// continuation → verification → revision, milestone detection over the
// accumulated PTY output, usage-threshold monitoring, and quota-driven
// provider handover. One Loop drives exactly one task to a terminal state.
package sessionloop

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iondrive-co/chad/internal/agentcmd"
	"github.com/iondrive-co/chad/internal/eventlog"
	"github.com/iondrive-co/chad/internal/ptystream"
	"github.com/iondrive-co/chad/internal/quota"
)

// State is one node of the session state machine's alphabet.
type State string

const (
	StateIdle          State = "idle"
	StateCoding        State = "coding"
	StateContinuation  State = "continuation"
	StateVerification  State = "verification"
	StateRevision      State = "revision"
	StateDone          State = "done"
	StateFailed        State = "failed"
	StateCancelled     State = "cancelled"
	StateHandoverPending State = "handover_pending"
)

// Exit codes reserved for non-subprocess outcomes, mirroring the phase
// runner's contract with its caller.
const (
	ExitCancelled        = -1
	ExitIdleStalledFatal = -2
	ExitExplorationFatal = -3
)

const (
	tickInterval        = 500 * time.Millisecond
	usageCheckInterval  = 10 * time.Second
	maxContinuations    = 3
	defaultMaxVerifyTry = 5
)

// PhaseInput is what a PhaseRunner needs to spawn one child process.
type PhaseInput struct {
	Phase           agentcmd.Phase
	TaskDescription string
	PriorOutput     string
	NativeSessionID string
	AccountName     string
	Model           string
	Reasoning       string
}

// PhaseRunner spawns the agent for one phase (via AgentCommand + PTYStream,
// composed by the caller) and returns the new stream's id. The loop treats
// this as opaque: it only ever reads from, writes to, and terminates the
// stream id it gets back.
type PhaseRunner func(ctx context.Context, in PhaseInput) (streamID string, err error)

// ThresholdEvent names what a ThresholdRule watches.
type ThresholdEvent string

const (
	EventSessionUsage ThresholdEvent = "session_usage"
	EventWeeklyUsage  ThresholdEvent = "weekly_usage"
	EventContextUsage ThresholdEvent = "context_usage"
)

// ThresholdAction names what firing a ThresholdRule does.
type ThresholdAction string

const (
	ActionNotify         ThresholdAction = "notify"
	ActionSwitchProvider ThresholdAction = "switch_provider"
	ActionAwaitReset     ThresholdAction = "await_reset"
)

// ThresholdRule fires exactly once per crossing of Threshold (percent,
// 0-100) from below to at-or-above.
type ThresholdRule struct {
	Event         ThresholdEvent
	Threshold     float64
	Action        ThresholdAction
	TargetAccount string
}

// UsageReading is one sample of the three percentages a ThresholdRule can
// watch, supplied by an external usage-API collaborator.
type UsageReading struct {
	SessionPercent float64
	WeeklyPercent  float64
	ContextPercent float64
}

// UsageFunc fetches the latest usage reading for the account currently
// running the coding phase.
type UsageFunc func(ctx context.Context, accountName string) (UsageReading, error)

// PendingAction records a threshold rule's fired action, to be acted on by
// the task executor once the current child has exited.
type PendingAction struct {
	Action        ThresholdAction
	TargetAccount string
	Reason        string
}

// VerificationVerdict is the JSON object a verification agent is asked to
// return.
type VerificationVerdict struct {
	Passed  bool   `json:"passed"`
	Summary string `json:"summary"`
	Issues  string `json:"issues,omitempty"`
}

// Outcome is the loop's final result.
type Outcome struct {
	State         State
	Reason        string
	PendingAction *PendingAction
}

// Config wires a Loop to its collaborators. CodingAccount/Model/Reasoning
// describe the account driving the coding phase; VerificationRunner is nil
// when no verifier is configured.
type Config struct {
	SessionID               string
	TaskDescription         string
	Log                     *eventlog.EventLog
	Streams                 *ptystream.Manager
	CodingRunner            PhaseRunner
	VerificationRunner      PhaseRunner
	CodingAccount           string
	VerificationAccount     string
	CodingProviderKind      string
	MaxVerificationAttempts int
	Rules                   []ThresholdRule
	UsageFn                 UsageFunc
	QuotaFn                 func(string) quota.Result
	PhaseTimeout            time.Duration
}

// Loop drives one task through its state machine.
type Loop struct {
	cfg Config

	mu              sync.Mutex
	state           State
	currentStreamID string
	cancelRequested bool
	lastThresholds  []float64
	pendingAction   *PendingAction
	inbound         []string

	explorationScan explorationState
	codingScan      codingCompleteState
	quotaFired      map[quota.Result]bool

	bufMu                   sync.Mutex
	rawBuf                  strings.Builder
	textBuf                 strings.Builder
	lastActivity            time.Time
	lastEventKind           agentcmd.NormalizedEventKind
	stalledOnce             bool
	forcedExit              *int
	nativeSessionIDs        map[string]string
	explorationCmdCount     int
	implementationCmdCount  int
}

// New constructs a Loop in state idle. MaxVerificationAttempts defaults to
// 5 when left at zero, and QuotaFn defaults to quota.Detect.
func New(cfg Config) *Loop {
	if cfg.MaxVerificationAttempts <= 0 {
		cfg.MaxVerificationAttempts = defaultMaxVerifyTry
	}
	if cfg.QuotaFn == nil {
		cfg.QuotaFn = quota.Detect
	}
	thresholds := make([]float64, len(cfg.Rules))
	for i := range thresholds {
		thresholds[i] = belowAnyThreshold
	}
	return &Loop{
		cfg:            cfg,
		state:          StateIdle,
		lastThresholds: thresholds,
		quotaFired:     make(map[quota.Result]bool),
	}
}

// State returns the loop's current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Terminal reports whether the loop has reached a terminal state, for
// eventmux.SessionSource.
func (l *Loop) Terminal() bool {
	switch l.State() {
	case StateDone, StateFailed, StateCancelled, StateHandoverPending:
		return true
	default:
		return false
	}
}

// CurrentStream returns the id of the PTY stream currently backing the
// loop's active phase, for eventmux.SessionSource.
func (l *Loop) CurrentStream() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentStreamID, l.currentStreamID != ""
}

// EventLog satisfies eventmux.SessionSource.
func (l *Loop) EventLog() *eventlog.EventLog { return l.cfg.Log }

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loop) setStream(id string) {
	l.mu.Lock()
	l.currentStreamID = id
	l.mu.Unlock()
}

// Cancel sets the cancel-requested flag. Idempotent; safe after terminal
// state.
func (l *Loop) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelRequested = true
}

func (l *Loop) cancelled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelRequested
}

// EnqueueMessage appends a user message to the inbound FIFO queue, to be
// delivered to the currently-active PTY (or the next one, if none is
// active right now) by the tick worker.
func (l *Loop) EnqueueMessage(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inbound = append(l.inbound, text)
}

func (l *Loop) dequeueMessage() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.inbound) == 0 {
		return "", false
	}
	msg := l.inbound[0]
	l.inbound = l.inbound[1:]
	return msg, true
}

func (l *Loop) PendingAction() *PendingAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingAction
}

func (l *Loop) setPendingAction(a *PendingAction) {
	l.mu.Lock()
	l.pendingAction = a
	l.mu.Unlock()
}

func (l *Loop) appendEvent(e eventlog.Event) error {
	_, err := l.cfg.Log.Append(e)
	if err != nil {
		return fmt.Errorf("sessionloop: appending event: %w", err)
	}
	return nil
}

func (l *Loop) emitMilestone(mType eventlog.MilestoneType, summary string, details map[string]any) error {
	return l.appendEvent(eventlog.Event{
		Type: eventlog.TypeMilestone,
		Milestone: &eventlog.Milestone{
			Type:    mType,
			Summary: summary,
			Details: details,
		},
	})
}
