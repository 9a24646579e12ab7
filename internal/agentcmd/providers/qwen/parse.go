package qwen

import (
	"bytes"
	"encoding/json"
)

type eventLine struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Thought   string `json:"thought"`
	Name      string `json:"name"`
	Output    string `json:"output"`
}

// ParseLine decodes one line of `qwen --output-format stream-json` output.
func ParseLine(line []byte) (kind, text, nativeSessionID string, ok bool, err error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", "", "", false, nil
	}

	var e eventLine
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return "", "", "", false, nil
	}

	switch e.Type {
	case "system":
		if e.SessionID != "" {
			return "session_info", "", e.SessionID, true, nil
		}
	case "text", "content":
		return "text", e.Text, "", true, nil
	case "thought", "thinking":
		return "thinking", e.Thought, "", true, nil
	case "tool_call":
		return "tool_call", e.Name, "", true, nil
	case "tool_result":
		return "tool_result", e.Output, "", true, nil
	case "result", "done":
		return "result", e.Text, "", true, nil
	}
	return "", "", "", false, nil
}
