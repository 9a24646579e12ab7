package mock

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuild_VerificationPromptProducesPassedVerdict(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, _, stdin, err := Build("acct", "verification", "please review.\n"+verificationMarker)
	require.NoError(t, err)
	require.Contains(t, string(stdin), verificationMarker)
}

func TestBuild_QueueFileOverridesDefaultOutput(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	queue := t.TempDir() + "/queue.jsonl"
	require.NoError(t, os.WriteFile(queue, []byte(`{"type":"text","text":"scripted"}`+"\n"), 0o644))
	t.Setenv(EnvQueueFile, queue)

	argv, env, _, err := Build("acct", "combined", "do a thing")
	require.NoError(t, err)
	require.Equal(t, "/bin/sh", argv[0])
	require.Contains(t, env, "CHAD_MOCK_PHASE=combined")
}

func TestParseLine_Result(t *testing.T) {
	line, err := json.Marshal(map[string]any{"type": "result", "text": "ok", "exit_code": 0})
	require.NoError(t, err)

	kind, text, _, exitCode, ok, err := ParseLine(line)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "result", kind)
	require.Equal(t, "ok", text)
	require.NotNil(t, exitCode)
	require.Equal(t, 0, *exitCode)
}
