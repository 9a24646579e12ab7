package openai

import (
	"bytes"
	"encoding/json"
)

type eventLine struct {
	Type   string `json:"type"`
	Msg    string `json:"message"`
	Text   string `json:"text"`
	Name   string `json:"name"`
	Output string `json:"output"`

	ThreadID string `json:"thread_id"`
	SessionID string `json:"session_id"`
}

// ParseLine decodes one line of `codex exec --json` output: a flat JSON
// object per event rather than Claude's nested content-block shape.
func ParseLine(line []byte) (kind, text, toolName, nativeSessionID string, ok bool, err error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", "", "", "", false, nil
	}

	var e eventLine
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return "", "", "", "", false, nil
	}

	id := e.ThreadID
	if id == "" {
		id = e.SessionID
	}

	switch e.Type {
	case "agent_message", "item.completed":
		if e.Msg != "" {
			return "text", e.Msg, "", id, true, nil
		}
		if e.Text != "" {
			return "text", e.Text, "", id, true, nil
		}
	case "agent_reasoning", "reasoning":
		return "thinking", e.Text, "", id, true, nil
	case "tool_call", "function_call":
		return "tool_call", "", e.Name, id, true, nil
	case "tool_result", "function_call_output":
		return "tool_result", e.Output, "", id, true, nil
	case "turn.completed", "task_complete":
		return "result", e.Msg, "", id, true, nil
	case "session_configured", "thread_started":
		if id != "" {
			return "session_info", "", "", id, true, nil
		}
	}
	return "", "", "", "", false, nil
}
