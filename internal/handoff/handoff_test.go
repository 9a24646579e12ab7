package handoff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iondrive-co/chad/internal/eventlog"
)

func newTestLog(t *testing.T) *eventlog.EventLog {
	t.Helper()
	log, err := eventlog.Open(t.TempDir(), "sess-1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func seedSession(t *testing.T, log *eventlog.EventLog, task string) {
	t.Helper()
	_, err := log.Append(eventlog.Event{
		Type:           eventlog.TypeSessionStarted,
		SessionStarted: &eventlog.SessionStarted{TaskDescription: task, ProjectPath: "/tmp/proj"},
	})
	require.NoError(t, err)
}

func appendToolCall(t *testing.T, log *eventlog.EventLog, toolName string, args map[string]any) {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	_, err = log.Append(eventlog.Event{
		Type:            eventlog.TypeToolCallStarted,
		ToolCallStarted: &eventlog.ToolCallStarted{ToolName: toolName, Input: raw},
	})
	require.NoError(t, err)
}

func TestExtractProgress_CollectsFilesAndCommands(t *testing.T) {
	log := newTestLog(t)
	appendToolCall(t, log, "write", map[string]any{"file_path": "new.go"})
	appendToolCall(t, log, "edit", map[string]any{"file_path": "main.go"})
	appendToolCall(t, log, "bash", map[string]any{"command": "go test ./..."})
	appendToolCall(t, log, "bash", map[string]any{"command": "ls -la"})

	progress, err := ExtractProgress(log, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"new.go"}, progress.FilesCreated)
	require.Equal(t, []string{"main.go"}, progress.FilesChanged)
	require.Equal(t, []string{"go test ./..."}, progress.KeyCommands)
}

func TestBuildSummary_IncludesTaskAndFiles(t *testing.T) {
	log := newTestLog(t)
	seedSession(t, log, "add a feature")
	appendToolCall(t, log, "write", map[string]any{"file_path": "feature.go"})

	summary, err := BuildSummary("add a feature", log, "anthropic", 0, "polish error messages")
	require.NoError(t, err)
	require.Contains(t, summary, "add a feature")
	require.Contains(t, summary, "Created: `feature.go`")
	require.Contains(t, summary, "polish error messages")
	require.Contains(t, summary, "<previous_session>")
	require.Contains(t, summary, "</previous_session>")
}

func TestFormatForProvider_ClaudeOmitsThinkingCodexKeepsIt(t *testing.T) {
	turns := []turn{
		{role: "assistant", blocks: []eventlog.MessageBlock{
			{Kind: "thinking", Text: "pondering the approach"},
			{Kind: "text", Text: "done thinking, made the change"},
		}},
	}

	claude := formatForProvider(turns, "anthropic", "")
	require.NotContains(t, claude, "pondering")
	require.Contains(t, claude, "made the change")

	codex := formatForProvider(turns, "openai", "")
	require.Contains(t, codex, "[Reasoning]: pondering the approach")
}

func TestLogCheckpoint_RecordsNativeSessionID(t *testing.T) {
	log := newTestLog(t)
	seedSession(t, log, "fix the bug")

	seq, err := LogCheckpoint(log, "fix the bug", "thread-abc123", "run the linter", "openai")
	require.NoError(t, err)
	require.Greater(t, seq, uint64(0))

	id, ok := LastCheckpointNativeSessionID(log)
	require.True(t, ok)
	require.Equal(t, "thread-abc123", id)
}

func TestBuildResumePrompt_FallsBackToSessionStartedTask(t *testing.T) {
	log := newTestLog(t)
	seedSession(t, log, "refactor the parser")

	prompt, err := BuildResumePrompt(log, "also add tests", "gemini")
	require.NoError(t, err)
	require.Contains(t, prompt, "refactor the parser")
	require.Contains(t, prompt, "Continue with: also add tests")
}
