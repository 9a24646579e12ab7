package mock

import (
	"bytes"
	"encoding/json"
)

type eventLine struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Name     string `json:"name"`
	ExitCode *int   `json:"exit_code"`
}

// ParseLine decodes one line of the mock script's canned JSON events.
func ParseLine(line []byte) (kind, text, toolName string, exitCode *int, ok bool, err error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", "", "", nil, false, nil
	}

	var e eventLine
	if jsonErr := json.Unmarshal(trimmed, &e); jsonErr != nil {
		return "", "", "", nil, false, nil
	}

	switch e.Type {
	case "text", "thinking", "tool_result":
		return e.Type, e.Text, "", nil, true, nil
	case "tool_call":
		return "tool_call", "", e.Name, nil, true, nil
	case "result":
		return "result", e.Text, "", e.ExitCode, true, nil
	}
	return "", "", "", nil, false, nil
}
