package anthropic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLine_AssistantText(t *testing.T) {
	line := []byte(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hello"}]}}`)
	kind, text, toolName, nativeSessionID, ok, err := ParseLine(line)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "text", kind)
	require.Equal(t, "hello", text)
	require.Empty(t, toolName)
	require.Empty(t, nativeSessionID)
}

func TestParseLine_ToolUse(t *testing.T) {
	line := []byte(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Bash"}]}}`)
	kind, _, toolName, _, ok, err := ParseLine(line)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tool_call", kind)
	require.Equal(t, "Bash", toolName)
}

func TestParseLine_Result(t *testing.T) {
	line := []byte(`{"type":"result","result":"done"}`)
	kind, text, _, _, ok, err := ParseLine(line)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "result", kind)
	require.Equal(t, "done", text)
}

func TestParseLine_NonJSONLineIgnored(t *testing.T) {
	_, _, _, _, ok, err := ParseLine([]byte("plain terminal noise"))
	require.NoError(t, err)
	require.False(t, ok)
}
