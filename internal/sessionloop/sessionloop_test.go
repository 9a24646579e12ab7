package sessionloop

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iondrive-co/chad/internal/agentcmd"
	"github.com/iondrive-co/chad/internal/eventlog"
	"github.com/iondrive-co/chad/internal/ptystream"
	"github.com/iondrive-co/chad/internal/quota"
)

func newTestLoop(t *testing.T, queueLines []string, rules []ThresholdRule) (*Loop, *ptystream.Manager) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	logDir := t.TempDir()
	log, err := eventlog.Open(logDir, "sess-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	streams := ptystream.NewManager()

	queueFile := t.TempDir() + "/queue.jsonl"
	content := ""
	for _, l := range queueLines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(queueFile, []byte(content), 0o644))

	runner := func(ctx context.Context, in PhaseInput) (string, error) {
		cmd, err := agentcmd.Build(agentcmd.Request{
			ProviderKind:    "mock",
			AccountName:     in.AccountName,
			Phase:           in.Phase,
			TaskDescription: in.TaskDescription,
			PriorOutput:     in.PriorOutput,
		})
		if err != nil {
			return "", err
		}
		cmd.Env = append(cmd.Env, "CHAD_MOCK_QUEUE_FILE="+queueFile)
		return streams.Start(ctx, cmd.Argv, cmd.Env, "", cmd.InitialStdin)
	}

	loop := New(Config{
		SessionID:          "sess-1",
		TaskDescription:    "do the thing",
		Log:                log,
		Streams:            streams,
		CodingRunner:       runner,
		CodingAccount:      "acct-a",
		CodingProviderKind: "mock",
		Rules:              rules,
		QuotaFn:            quota.Detect,
	})
	return loop, streams
}

func cannedLine(t *testing.T, fields map[string]any) string {
	t.Helper()
	b, err := json.Marshal(fields)
	require.NoError(t, err)
	return string(b)
}

func TestRun_CompletesWithoutVerifier(t *testing.T) {
	summary := cannedLine(t, map[string]any{"change_summary": "added a widget", "files_changed": []string{"a.go"}})
	line := cannedLine(t, map[string]any{"type": "result", "text": summary, "exit_code": 0})
	loop, _ := newTestLoop(t, []string{line}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outcome := loop.Run(ctx)
	require.Equal(t, StateDone, outcome.State)
}

func TestRun_FailsWhenNoChangeSummaryAfterContinuations(t *testing.T) {
	line := cannedLine(t, map[string]any{"type": "result", "text": "nothing useful here", "exit_code": 0})
	loop, _ := newTestLoop(t, []string{line}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outcome := loop.Run(ctx)
	require.Equal(t, StateFailed, outcome.State)
	require.Equal(t, "no_change_summary", outcome.Reason)
}

func TestRun_CancelBeforeStartYieldsCancelled(t *testing.T) {
	line := cannedLine(t, map[string]any{"type": "result", "text": "x", "exit_code": 0})
	loop, _ := newTestLoop(t, []string{line}, nil)
	loop.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	outcome := loop.Run(ctx)
	require.Equal(t, StateCancelled, outcome.State)
	require.True(t, loop.Terminal())
}

func TestScanExploration_IdempotentAcrossRepeatedScans(t *testing.T) {
	var state explorationState
	buf := "EXPLORATION_RESULT: found the config loader\n\nmore text\n"

	first := scanExploration(buf, false, &state)
	require.Equal(t, []string{"found the config loader"}, first)

	second := scanExploration(buf, false, &state)
	require.Empty(t, second)

	grown := buf + "EXPLORATION_RESULT: found the second thing\n\n"
	third := scanExploration(grown, false, &state)
	require.Equal(t, []string{"found the second thing"}, third)
}

func TestScanCodingComplete_OnlyEmitsOnce(t *testing.T) {
	var state codingCompleteState
	buf := `here is my summary: {"change_summary": "did the work", "files_changed": ["x.go"]} done`

	cs, ok := scanCodingComplete(buf, &state)
	require.True(t, ok)
	require.Equal(t, "did the work", cs.ChangeSummary)

	_, ok = scanCodingComplete(buf, &state)
	require.False(t, ok)
}

func TestCheckThresholds_IndependentRulesOnSameEvent(t *testing.T) {
	loop, _ := newTestLoop(t, nil, []ThresholdRule{
		{Event: EventSessionUsage, Threshold: 50, Action: ActionNotify},
		{Event: EventSessionUsage, Threshold: 90, Action: ActionSwitchProvider, TargetAccount: "acct-b"},
	})

	require.NoError(t, loop.checkThresholds(UsageReading{SessionPercent: 60}))
	require.Nil(t, loop.PendingAction())

	require.NoError(t, loop.checkThresholds(UsageReading{SessionPercent: 95}))
	pending := loop.PendingAction()
	require.NotNil(t, pending)
	require.Equal(t, ActionSwitchProvider, pending.Action)
	require.Equal(t, "acct-b", pending.TargetAccount)

	require.NoError(t, loop.checkThresholds(UsageReading{SessionPercent: 96}))
}

func TestParseVerdict_RejectsUnparseableOutput(t *testing.T) {
	_, ok := parseVerdict("I looked around but couldn't find anything conclusive.")
	require.False(t, ok)
}

func TestParseVerdict_AcceptsFencedJSON(t *testing.T) {
	out := "Here's my verdict:\n```json\n{\"passed\": false, \"summary\": \"bug found\", \"issues\": \"off by one\"}\n```\n"
	v, ok := parseVerdict(out)
	require.True(t, ok)
	require.False(t, v.Passed)
	require.Equal(t, "off by one", v.Issues)
}

func TestIsImplementationTool(t *testing.T) {
	require.True(t, isImplementationTool("str_replace_edit"))
	require.True(t, isImplementationTool("write_file"))
	require.False(t, isImplementationTool("grep"))
	require.False(t, isImplementationTool("read_file"))
}

func TestIdleThreshold_BucketsByLastEventKind(t *testing.T) {
	require.Equal(t, 60*time.Second, idleThreshold(agentcmd.EventThinking))
	require.Equal(t, 420*time.Second, idleThreshold(agentcmd.EventToolCall))
	require.Equal(t, 420*time.Second, idleThreshold(agentcmd.EventToolResult))
	require.Equal(t, 240*time.Second, idleThreshold(agentcmd.EventText))
}
