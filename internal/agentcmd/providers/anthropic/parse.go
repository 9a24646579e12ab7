package anthropic

import (
	"bytes"
	"encoding/json"
)

type contentBlock struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Thinking string `json:"thinking"`
	Name    string `json:"name"`
}

type streamLine struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Message struct {
		Role    string         `json:"role"`
		Content []contentBlock `json:"content"`
	} `json:"message"`
	Result string `json:"result"`
}

// ParseLine decodes one line of `claude ... --output-format stream-json`
// output. Claude Code emits one JSON object per line, each wrapping either
// an assistant message (a list of content blocks: text, thinking, or
// tool_use) or a top-level result object.
func ParseLine(line []byte) (kind, text, toolName, nativeSessionID string, ok bool, err error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", "", "", "", false, nil
	}

	var sl streamLine
	if err := json.Unmarshal(trimmed, &sl); err != nil {
		return "", "", "", "", false, nil
	}

	switch sl.Type {
	case "result":
		return "result", sl.Result, "", "", true, nil
	case "assistant", "user":
		for _, block := range sl.Message.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					return "text", block.Text, "", "", true, nil
				}
			case "thinking":
				if block.Thinking != "" {
					return "thinking", block.Thinking, "", "", true, nil
				}
			case "tool_use":
				return "tool_call", "", block.Name, "", true, nil
			case "tool_result":
				return "tool_result", block.Text, "", "", true, nil
			}
		}
	}
	return "", "", "", "", false, nil
}
