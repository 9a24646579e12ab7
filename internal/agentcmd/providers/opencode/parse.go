package opencode

import (
	"bytes"
	"encoding/json"
)

type eventLine struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	ID        string `json:"id"`
	Text      string `json:"text"`
	Name      string `json:"name"`
	Output    string `json:"output"`
}

// ParseLine decodes one line of `opencode -p ... -f json` output.
func ParseLine(line []byte) (kind, text, nativeSessionID string, ok bool, err error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", "", "", false, nil
	}

	var e eventLine
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return "", "", "", false, nil
	}

	id := e.SessionID
	if id == "" {
		id = e.ID
	}

	switch e.Type {
	case "system", "session":
		if id != "" {
			return "session_info", "", id, true, nil
		}
	case "text", "message":
		return "text", e.Text, "", true, nil
	case "thinking":
		return "thinking", e.Text, "", true, nil
	case "tool_call":
		return "tool_call", e.Name, "", true, nil
	case "tool_result":
		return "tool_result", e.Output, "", true, nil
	case "result":
		return "result", e.Text, "", true, nil
	}
	return "", "", "", false, nil
}
