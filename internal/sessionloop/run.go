package sessionloop

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/iondrive-co/chad/internal/agentcmd"
	"github.com/iondrive-co/chad/internal/eventlog"
	"github.com/iondrive-co/chad/internal/quota"
)

// exitCodeFromErr unwraps a child process's exit status, defaulting to 1
// for an error that carries no exit code (the process never started, or
// was killed by a signal without one).
func exitCodeFromErr(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// Run drives the task to a terminal state: coding, up to maxContinuations
// continuation rounds if no change summary appeared, then a verification/
// revision loop if a verifier is configured. It blocks until the task
// reaches done, failed, cancelled, or handover_pending.
func (l *Loop) Run(ctx context.Context) Outcome {
	if err := l.appendEvent(eventlog.Event{
		Type: eventlog.TypeSessionStarted,
		SessionStarted: &eventlog.SessionStarted{
			TaskDescription: l.cfg.TaskDescription,
			CodingAgent:     l.cfg.CodingProviderKind,
		},
	}); err != nil {
		return l.fail(err.Error())
	}

	l.setState(StateCoding)
	exitCode, priorOutput, err := l.runCodingPhase(ctx, agentcmd.PhaseCombined, l.cfg.TaskDescription, "")
	if outcome, done := l.handleEarlyExit(exitCode, err); done {
		return outcome
	}

	for attempt := 0; !l.codingScan.emitted && exitCode == 0 && attempt < maxContinuations; attempt++ {
		l.setState(StateContinuation)
		exitCode, priorOutput, err = l.runCodingPhase(ctx, agentcmd.PhaseContinuation, l.cfg.TaskDescription, priorOutput)
		if outcome, done := l.handleEarlyExit(exitCode, err); done {
			return outcome
		}
	}

	if pending := l.PendingAction(); pending != nil {
		l.setState(StateHandoverPending)
		return Outcome{State: StateHandoverPending, Reason: pending.Reason, PendingAction: pending}
	}

	if !l.codingScan.emitted {
		l.setState(StateFailed)
		l.endSession(false, "no_change_summary")
		return Outcome{State: StateFailed, Reason: "no_change_summary"}
	}

	if l.cfg.VerificationRunner == nil {
		l.setState(StateDone)
		l.endSession(true, "")
		return Outcome{State: StateDone}
	}

	return l.runVerificationLoop(ctx, priorOutput)
}

func (l *Loop) fail(reason string) Outcome {
	l.setState(StateFailed)
	l.endSession(false, reason)
	return Outcome{State: StateFailed, Reason: reason}
}

func (l *Loop) endSession(success bool, reason string) {
	_ = l.appendEvent(eventlog.Event{
		Type:         eventlog.TypeSessionEnded,
		SessionEnded: &eventlog.SessionEnded{Success: success, Reason: reason},
	})
}

// handleEarlyExit converts a reserved negative exit code or a genuine
// operational error into a terminal Outcome. A plain nonzero exit code
// (the agent's own failure signal) is not handled here — callers decide
// what that means in context (break a continuation loop, fail a
// verification attempt).
func (l *Loop) handleEarlyExit(exitCode int, err error) (Outcome, bool) {
	if l.cancelled() {
		l.setState(StateCancelled)
		l.endSession(false, "cancelled")
		return Outcome{State: StateCancelled, Reason: "cancelled"}, true
	}
	switch exitCode {
	case ExitIdleStalledFatal:
		return l.fail("idle_stalled"), true
	case ExitExplorationFatal:
		return l.fail("exploration_loop"), true
	}
	if err != nil {
		return l.fail(err.Error()), true
	}
	return Outcome{}, false
}

func (l *Loop) runCodingPhase(ctx context.Context, phase agentcmd.Phase, taskDescription, priorOutput string) (int, string, error) {
	return l.runPhase(ctx, l.cfg.CodingRunner, phase, taskDescription, priorOutput, l.cfg.CodingAccount, true)
}

func (l *Loop) runVerificationLoop(ctx context.Context, codingOutput string) Outcome {
	priorOutput := codingOutput
	for attempt := 1; attempt <= l.cfg.MaxVerificationAttempts; attempt++ {
		l.setState(StateVerification)
		if err := l.emitMilestone(eventlog.MilestoneVerificationStarted, fmt.Sprintf("verification attempt %d", attempt), map[string]any{"attempt": attempt}); err != nil {
			return l.fail(err.Error())
		}

		exitCode, verifyOutput, err := l.runPhase(ctx, l.cfg.VerificationRunner, agentcmd.PhaseVerification, l.cfg.TaskDescription, priorOutput, l.cfg.VerificationAccount, false)
		if outcome, done := l.handleEarlyExit(exitCode, err); done {
			return outcome
		}

		verdict, parsed := parseVerdict(verifyOutput)
		if !parsed {
			_ = l.emitMilestone(eventlog.MilestoneVerificationFailed, "aborted", map[string]any{"attempt": attempt})
			return l.fail("verification_aborted")
		}

		if verdict.Passed {
			_ = l.emitMilestone(eventlog.MilestoneVerificationPassed, verdict.Summary, map[string]any{"attempt": attempt})
			l.setState(StateDone)
			l.endSession(true, "")
			return Outcome{State: StateDone}
		}

		_ = l.emitMilestone(eventlog.MilestoneVerificationFailed, verdict.Summary, map[string]any{"attempt": attempt, "issues": verdict.Issues})
		if attempt == l.cfg.MaxVerificationAttempts {
			break
		}

		l.setState(StateRevision)
		if err := l.emitMilestone(eventlog.MilestoneRevisionStarted, "revising based on verification feedback", map[string]any{"attempt": attempt}); err != nil {
			return l.fail(err.Error())
		}
		revisionPrompt := fmt.Sprintf("%s\n\nVerification feedback:\n%s", verdict.Summary, verdict.Issues)
		exitCode, priorOutput, err = l.runPhase(ctx, l.cfg.CodingRunner, agentcmd.PhaseRevision, revisionPrompt, priorOutput, l.cfg.CodingAccount, true)
		if outcome, done := l.handleEarlyExit(exitCode, err); done {
			return outcome
		}
	}

	return l.fail("verification_exhausted")
}

// runPhase spawns one child via runner, feeds its PTY output to the event
// log and (when trackMilestones) the exploration/coding-complete scanners,
// runs the tick worker alongside, and blocks until the stream closes.
func (l *Loop) runPhase(ctx context.Context, runner PhaseRunner, phase agentcmd.Phase, taskDescription, priorOutput, accountName string, trackMilestones bool) (int, string, error) {
	l.bufMu.Lock()
	l.rawBuf.Reset()
	l.forcedExit = nil
	l.stalledOnce = false
	l.lastActivity = time.Now()
	l.lastEventKind = ""
	l.bufMu.Unlock()

	streamID, err := runner(ctx, PhaseInput{
		Phase:           phase,
		TaskDescription: taskDescription,
		PriorOutput:     priorOutput,
		NativeSessionID: l.nativeSessionIDFor(accountName),
		AccountName:     accountName,
	})
	if err != nil {
		return 0, "", fmt.Errorf("sessionloop: starting %s phase: %w", phase, err)
	}
	l.setStream(streamID)
	defer l.setStream("")

	ch, subID, err := l.cfg.Streams.Subscribe(streamID)
	if err != nil {
		return 0, "", fmt.Errorf("sessionloop: subscribing to %s phase stream: %w", phase, err)
	}
	defer func() { _ = l.cfg.Streams.Unsubscribe(streamID, subID) }()

	tickCtx, stopTick := context.WithCancel(ctx)
	defer stopTick()
	go l.tick(tickCtx, streamID, trackMilestones)

	var localText strings.Builder
	var lineBuf []byte

readLoop:
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				break readLoop
			}
			if err := l.ingestChunk(chunk, &localText, &lineBuf, trackMilestones, accountName); err != nil {
				return 0, "", err
			}
		case <-ctx.Done():
			break readLoop
		}
	}

	if len(lineBuf) > 0 {
		l.consumeLine(lineBuf, &localText, trackMilestones, accountName)
	}

	if trackMilestones {
		l.bufMu.Lock()
		snapshot := l.textBuf.String()
		l.bufMu.Unlock()
		for _, p := range scanExploration(snapshot, true, &l.explorationScan) {
			_ = l.emitMilestone(eventlog.MilestoneExploration, p, nil)
		}
	}

	exitErr, lookupErr := l.cfg.Streams.ExitErr(streamID)
	exitCode := 0
	if lookupErr == nil && exitErr != nil {
		exitCode = exitCodeFromErr(exitErr)
	}

	l.bufMu.Lock()
	forced := l.forcedExit
	l.bufMu.Unlock()
	if forced != nil {
		exitCode = *forced
	}

	return exitCode, localText.String(), nil
}

func (l *Loop) ingestChunk(chunk []byte, localText *strings.Builder, lineBuf *[]byte, trackMilestones bool, accountName string) error {
	l.bufMu.Lock()
	l.rawBuf.Write(chunk)
	l.bufMu.Unlock()

	if err := l.appendEvent(eventlog.Event{
		Type: eventlog.TypeTerminalOutput,
		TerminalOutput: &eventlog.TerminalOutput{
			Data:        base64.StdEncoding.EncodeToString(chunk),
			DecodedText: string(chunk),
		},
	}); err != nil {
		return err
	}

	*lineBuf = append(*lineBuf, chunk...)
	for {
		idx := bytes.IndexByte(*lineBuf, '\n')
		if idx < 0 {
			break
		}
		line := (*lineBuf)[:idx]
		*lineBuf = (*lineBuf)[idx+1:]
		l.consumeLine(line, localText, trackMilestones, accountName)
	}
	return nil
}

func (l *Loop) consumeLine(line []byte, localText *strings.Builder, trackMilestones bool, accountName string) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return
	}
	ev, ok, err := agentcmd.ParseLine(l.cfg.CodingProviderKind, trimmed)
	if err != nil || !ok {
		return
	}

	l.bufMu.Lock()
	l.lastActivity = time.Now()
	l.lastEventKind = ev.Kind
	l.bufMu.Unlock()

	if ev.NativeSessionID != "" {
		l.setNativeSessionID(accountName, ev.NativeSessionID)
	}

	switch ev.Kind {
	case agentcmd.EventSessionInfo:
		return

	case agentcmd.EventText, agentcmd.EventThinking:
		if ev.Text == "" {
			return
		}
		localText.WriteString(ev.Text)
		localText.WriteByte('\n')
		if trackMilestones {
			l.bufMu.Lock()
			l.textBuf.WriteString(ev.Text)
			l.textBuf.WriteByte('\n')
			l.bufMu.Unlock()
		}
		_ = l.appendEvent(eventlog.Event{
			Type: eventlog.TypeAssistantMessage,
			AssistantMessage: &eventlog.AssistantMessage{
				Blocks: []eventlog.MessageBlock{{Kind: string(ev.Kind), Text: ev.Text}},
			},
		})

	case agentcmd.EventToolCall:
		if trackMilestones {
			l.bufMu.Lock()
			if isImplementationTool(ev.ToolName) {
				l.implementationCmdCount++
			} else {
				l.explorationCmdCount++
			}
			l.bufMu.Unlock()
		}
		_ = l.appendEvent(eventlog.Event{
			Type:            eventlog.TypeToolCallStarted,
			ToolCallStarted: &eventlog.ToolCallStarted{ToolName: ev.ToolName},
		})

	case agentcmd.EventToolResult:
		if ev.Text != "" {
			localText.WriteString(ev.Text)
			localText.WriteByte('\n')
			if trackMilestones {
				l.bufMu.Lock()
				l.textBuf.WriteString(ev.Text)
				l.textBuf.WriteByte('\n')
				l.bufMu.Unlock()
			}
		}
		_ = l.appendEvent(eventlog.Event{
			Type:             eventlog.TypeToolCallFinished,
			ToolCallFinished: &eventlog.ToolCallFinished{},
		})

	case agentcmd.EventResult:
		if ev.Text != "" {
			localText.WriteString(ev.Text)
			localText.WriteByte('\n')
			if trackMilestones {
				l.bufMu.Lock()
				l.textBuf.WriteString(ev.Text)
				l.textBuf.WriteByte('\n')
				l.bufMu.Unlock()
			}
		}
	}
}

// tick runs the ~2Hz background worker for one phase: inbound message
// forwarding, output analysis, quota/usage checks, and idle/cancellation
// handling.
func (l *Loop) tick(ctx context.Context, streamID string, trackMilestones bool) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var lastUsageCheck time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.forwardMessage(streamID)

			if trackMilestones {
				l.scanMilestones(streamID)
			}

			l.bufMu.Lock()
			tail := l.rawBuf.String()
			l.bufMu.Unlock()
			if tail != "" {
				l.checkQuota(tail, streamID)
			}

			if time.Since(lastUsageCheck) >= usageCheckInterval {
				lastUsageCheck = time.Now()
				l.runUsageCheck(ctx)
			}

			l.checkIdle(streamID)

			if l.cancelled() {
				l.forceExit(ExitCancelled, streamID)
			}
		}
	}
}

func (l *Loop) forwardMessage(streamID string) {
	msg, ok := l.dequeueMessage()
	if !ok {
		return
	}
	if _, active := l.CurrentStream(); !active {
		l.mu.Lock()
		l.inbound = append([]string{msg}, l.inbound...)
		l.mu.Unlock()
		return
	}
	_ = l.cfg.Streams.SendInput(streamID, []byte(ensureNewline(msg)), false)
}

func (l *Loop) scanMilestones(streamID string) {
	l.bufMu.Lock()
	snapshot := l.textBuf.String()
	l.bufMu.Unlock()

	for _, p := range scanExploration(snapshot, false, &l.explorationScan) {
		_ = l.emitMilestone(eventlog.MilestoneExploration, p, nil)
	}
	if cs, ok := scanCodingComplete(snapshot, &l.codingScan); ok {
		_ = l.emitMilestone(eventlog.MilestoneCodingComplete, cs.ChangeSummary, map[string]any{
			"files_changed": cs.FilesChanged,
			"status":        cs.Status,
		})
	}

	l.bufMu.Lock()
	explCount, implCount := l.explorationCmdCount, l.implementationCmdCount
	l.bufMu.Unlock()
	if explCount > explorationLoopLimit && implCount == 0 {
		l.forceExit(ExitExplorationFatal, streamID)
	}
}

func (l *Loop) checkQuota(tail, streamID string) {
	result := l.cfg.QuotaFn(tail)
	if result == quota.None {
		return
	}

	l.mu.Lock()
	already := l.quotaFired[result]
	l.quotaFired[result] = true
	l.mu.Unlock()
	if already {
		return
	}

	summary := quota.Summarize(tail)
	var mType eventlog.MilestoneType
	switch result {
	case quota.SessionLimit:
		mType = eventlog.MilestoneSessionLimitReached
	case quota.WeeklyLimit:
		mType = eventlog.MilestoneWeeklyLimitReached
	default:
		mType = eventlog.MilestoneUsageThreshold
	}
	_ = l.emitMilestone(mType, summary, map[string]any{"quota_reason": string(result)})
	l.setPendingAction(&PendingAction{Action: ActionSwitchProvider, Reason: summary})
	_ = l.cfg.Streams.Terminate(streamID)
}

func (l *Loop) runUsageCheck(ctx context.Context) {
	if l.cfg.UsageFn == nil {
		return
	}
	reading, err := l.cfg.UsageFn(ctx, l.cfg.CodingAccount)
	if err != nil {
		return
	}
	_ = l.checkThresholds(reading)
}

func (l *Loop) checkIdle(streamID string) {
	l.bufMu.Lock()
	idle := time.Since(l.lastActivity)
	kind := l.lastEventKind
	already := l.stalledOnce
	l.bufMu.Unlock()

	if idle < idleThreshold(kind) {
		return
	}

	if !already && agentcmd.ResumeSupported(l.cfg.CodingProviderKind) {
		l.bufMu.Lock()
		l.stalledOnce = true
		l.lastActivity = time.Now()
		l.bufMu.Unlock()
		_ = l.cfg.Streams.SendInput(streamID, []byte("continue\n"), false)
		return
	}
	l.forceExit(ExitIdleStalledFatal, streamID)
}

func (l *Loop) forceExit(code int, streamID string) {
	l.bufMu.Lock()
	if l.forcedExit == nil {
		c := code
		l.forcedExit = &c
	}
	l.bufMu.Unlock()
	_ = l.cfg.Streams.Terminate(streamID)
}

func (l *Loop) nativeSessionIDFor(account string) string {
	l.bufMu.Lock()
	defer l.bufMu.Unlock()
	if l.nativeSessionIDs == nil {
		return ""
	}
	return l.nativeSessionIDs[account]
}

func (l *Loop) setNativeSessionID(account, id string) {
	l.bufMu.Lock()
	if l.nativeSessionIDs == nil {
		l.nativeSessionIDs = make(map[string]string)
	}
	l.nativeSessionIDs[account] = id
	l.bufMu.Unlock()
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
