// Package executor is the thin composition layer that turns a task
// request into a running SessionEventLoop: it validates inputs, allocates
// a worktree, builds the phase-runner closures the loop spawns children
// through, and owns the task registry used for status polling. It also
// reacts to a loop's handover_pending outcome by restarting the coding
// phase on the target account with a handoff summary, or by parking the
// task awaiting a quota reset.
package executor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iondrive-co/chad/internal/agentcmd"
	"github.com/iondrive-co/chad/internal/config"
	"github.com/iondrive-co/chad/internal/handoff"
	"github.com/iondrive-co/chad/internal/logging"
	"github.com/iondrive-co/chad/internal/sessionloop"
	"github.com/iondrive-co/chad/internal/sessionmgr"
	"github.com/iondrive-co/chad/internal/telemetry"
)

// Validation errors surfaced to the HTTP layer as 400s.
var (
	ErrProjectPathMissing = fmt.Errorf("executor: project path does not exist")
	ErrAccountNotFound    = fmt.Errorf("executor: account not found")
	ErrAccountHasNoRole   = fmt.Errorf("executor: account has no assigned role")
)

// maxHandoverAttempts bounds how many times one task will hop accounts on
// repeated quota exhaustion before giving up, so a misconfigured rule
// table (every account routes to the next) can't loop forever.
const maxHandoverAttempts = 4

// Request is everything needed to start one task on an existing session.
type Request struct {
	TaskDescription         string
	CodingAccount           string
	CodingModel             string
	CodingReasoning         string
	VerificationAccount     string
	VerificationModel       string
	VerificationReasoning   string
	TerminalRows            int
	TerminalCols            int
	Screenshots             []string
	OverridePrompt          string
	MaxVerificationAttempts int
	Rules                   []sessionloop.ThresholdRule
	UsageFn                 sessionloop.UsageFunc
}

// Status is a task's externally-visible lifecycle state.
type Status string

const (
	StatusRunning       Status = "running"
	StatusDone          Status = "done"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
	StatusAwaitingReset Status = "awaiting_reset"
)

// Task tracks one StartTask call for status polling.
type Task struct {
	ID        string
	SessionID string
	Request   Request
	StartedAt time.Time

	mu      sync.Mutex
	status  Status
	reason  string
	endedAt time.Time
}

// Snapshot is a point-in-time, lock-free copy of a Task's status.
type Snapshot struct {
	ID        string
	SessionID string
	Status    Status
	Reason    string
	StartedAt time.Time
	EndedAt   time.Time
}

func (t *Task) setStatus(s Status, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	t.reason = reason
	if s != StatusRunning {
		t.endedAt = time.Now()
	}
}

// Snapshot returns the task's current status.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:        t.ID,
		SessionID: t.SessionID,
		Status:    t.status,
		Reason:    t.reason,
		StartedAt: t.StartedAt,
		EndedAt:   t.endedAt,
	}
}

// Executor wires task requests to sessionloop.Loop runs.
type Executor struct {
	accounts  *config.Store
	telemetry telemetry.Client

	mu    sync.RWMutex
	tasks map[string]*Task
}

// New constructs an Executor backed by accounts. tel may be nil (treated
// as telemetry.NoOpClient).
func New(accounts *config.Store, tel telemetry.Client) *Executor {
	if tel == nil {
		tel = telemetry.NoOpClient{}
	}
	return &Executor{accounts: accounts, telemetry: tel, tasks: make(map[string]*Task)}
}

// Task looks up a previously started task by id.
func (e *Executor) Task(id string) (*Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[id]
	return t, ok
}

func (e *Executor) validate(sess *sessionmgr.Session, req Request) (config.Account, config.Account, error) {
	if _, err := os.Stat(sess.ProjectPath); err != nil {
		return config.Account{}, config.Account{}, fmt.Errorf("%w: %s", ErrProjectPathMissing, sess.ProjectPath)
	}
	if sess.Active() {
		return config.Account{}, config.Account{}, sessionmgr.ErrTaskActive
	}

	codingAccount, ok := e.accounts.Account(req.CodingAccount)
	if !ok {
		return config.Account{}, config.Account{}, fmt.Errorf("%w: %q", ErrAccountNotFound, req.CodingAccount)
	}
	if codingAccount.Role == "" {
		return config.Account{}, config.Account{}, fmt.Errorf("%w: %q", ErrAccountHasNoRole, req.CodingAccount)
	}

	var verificationAccount config.Account
	if req.VerificationAccount != "" {
		verificationAccount, ok = e.accounts.Account(req.VerificationAccount)
		if !ok {
			return config.Account{}, config.Account{}, fmt.Errorf("%w: %q", ErrAccountNotFound, req.VerificationAccount)
		}
		if verificationAccount.Role == "" {
			return config.Account{}, config.Account{}, fmt.Errorf("%w: %q", ErrAccountHasNoRole, req.VerificationAccount)
		}
	}

	return codingAccount, verificationAccount, nil
}

// StartTask validates req against sess, allocates a worktree, and runs
// the session loop in the background. It returns immediately with the
// Task handle for polling; the loop's terminal state is reflected in
// Task.Snapshot once it finishes.
func (e *Executor) StartTask(ctx context.Context, sess *sessionmgr.Session, req Request) (*Task, error) {
	codingAccount, verificationAccount, err := e.validate(sess, req)
	if err != nil {
		return nil, err
	}

	_, baseCommit, err := sess.Worktree.CreateWorktree(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("executor: allocating worktree: %w", err)
	}
	sess.SetBaseCommit(baseCommit)

	task := &Task{ID: uuid.NewString(), SessionID: sess.ID, Request: req, StartedAt: time.Now(), status: StatusRunning}
	e.mu.Lock()
	e.tasks[task.ID] = task
	e.mu.Unlock()

	loop := e.buildLoop(sess, req, codingAccount, verificationAccount)
	if err := sess.BeginTask(loop); err != nil {
		task.setStatus(StatusFailed, err.Error())
		return task, err
	}

	e.telemetry.TrackTaskStarted(sess.ID, codingAccount.ProviderKind)
	go e.drive(ctx, sess, task, loop, codingAccount, verificationAccount)

	return task, nil
}

func (e *Executor) buildLoop(sess *sessionmgr.Session, req Request, codingAccount, verificationAccount config.Account) *sessionloop.Loop {
	cfg := sessionloop.Config{
		SessionID:               sess.ID,
		TaskDescription:         firstNonEmpty(req.OverridePrompt, req.TaskDescription),
		Log:                     sess.Log,
		Streams:                 sess.Streams,
		CodingRunner:            e.phaseRunner(sess, codingAccount, req.CodingModel, req.CodingReasoning, req.Screenshots),
		CodingAccount:           codingAccount.Name,
		CodingProviderKind:      codingAccount.ProviderKind,
		MaxVerificationAttempts: req.MaxVerificationAttempts,
		Rules:                   req.Rules,
		UsageFn:                 req.UsageFn,
	}
	if verificationAccount.Name != "" {
		cfg.VerificationRunner = e.phaseRunner(sess, verificationAccount, req.VerificationModel, req.VerificationReasoning, nil)
		cfg.VerificationAccount = verificationAccount.Name
	}
	return sessionloop.New(cfg)
}

// phaseRunner composes agentcmd.Build with sess.Streams.Start: the
// concrete collaborator sessionloop.PhaseRunner leaves abstract.
func (e *Executor) phaseRunner(sess *sessionmgr.Session, account config.Account, model, reasoning string, screenshots []string) sessionloop.PhaseRunner {
	return func(ctx context.Context, in sessionloop.PhaseInput) (string, error) {
		cmd, err := agentcmd.Build(agentcmd.Request{
			ProviderKind:    account.ProviderKind,
			AccountName:     account.Name,
			ProjectPath:     sess.Worktree.Path(sess.ID),
			Phase:           in.Phase,
			TaskDescription: in.TaskDescription,
			PriorOutput:     in.PriorOutput,
			Screenshots:     screenshots,
			Model:           model,
			Reasoning:       reasoning,
			NativeSessionID: in.NativeSessionID,
		})
		if err != nil {
			return "", fmt.Errorf("executor: building agent command: %w", err)
		}
		return sess.Streams.Start(ctx, cmd.Argv, cmd.Env, sess.Worktree.Path(sess.ID), cmd.InitialStdin)
	}
}

// drive runs loop to completion, handling a handover_pending outcome by
// restarting the coding phase on the rule's target account, up to
// maxHandoverAttempts times, before giving up.
func (e *Executor) drive(ctx context.Context, sess *sessionmgr.Session, task *Task, loop *sessionloop.Loop, codingAccount, verificationAccount config.Account) {
	defer sess.EndTask()

	attempts := 0
	for {
		outcome := loop.Run(ctx)

		switch outcome.State {
		case sessionloop.StateDone:
			task.setStatus(StatusDone, "")
			e.telemetry.TrackTaskCompleted(sess.ID, codingAccount.ProviderKind, "done", attempts+1)
			return
		case sessionloop.StateCancelled:
			task.setStatus(StatusCancelled, outcome.Reason)
			e.telemetry.TrackTaskCompleted(sess.ID, codingAccount.ProviderKind, "cancelled", attempts+1)
			return
		case sessionloop.StateFailed:
			task.setStatus(StatusFailed, outcome.Reason)
			e.telemetry.TrackTaskCompleted(sess.ID, codingAccount.ProviderKind, "failed", attempts+1)
			return
		case sessionloop.StateHandoverPending:
			attempts++
			if outcome.PendingAction == nil || attempts > maxHandoverAttempts {
				task.setStatus(StatusFailed, "handover_exhausted")
				return
			}
			if outcome.PendingAction.Action == sessionloop.ActionAwaitReset {
				task.setStatus(StatusAwaitingReset, outcome.PendingAction.Reason)
				return
			}

			target, ok := e.accounts.Account(outcome.PendingAction.TargetAccount)
			if !ok {
				task.setStatus(StatusFailed, fmt.Sprintf("handover target %q not configured", outcome.PendingAction.TargetAccount))
				return
			}
			logging.Info(ctx, "executor: handing over to target account", "session_id", sess.ID, "from", codingAccount.Name, "to", target.Name, "reason", outcome.PendingAction.Reason)
			e.telemetry.TrackProviderSwitched(sess.ID, codingAccount.Name, target.Name, outcome.PendingAction.Reason)

			summary, err := handoff.BuildResumePrompt(sess.Log, "", target.ProviderKind)
			if err != nil {
				task.setStatus(StatusFailed, fmt.Sprintf("building handoff: %v", err))
				return
			}

			codingAccount = target
			handoverReq := task.Request
			handoverReq.CodingAccount = target.Name
			handoverReq.OverridePrompt = summary
			handoverReq.CodingModel = ""
			handoverReq.CodingReasoning = ""

			loop = e.buildLoop(sess, handoverReq, codingAccount, verificationAccount)
			sess.SetLoop(loop)
		default:
			task.setStatus(StatusFailed, fmt.Sprintf("unexpected terminal state %q", outcome.State))
			return
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
