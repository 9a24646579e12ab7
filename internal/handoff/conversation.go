package handoff

import (
	"fmt"
	"strings"

	"github.com/iondrive-co/chad/internal/eventlog"
)

type turn struct {
	role   string // "user" | "assistant"
	blocks []eventlog.MessageBlock
}

// extractConversation scans user_message and assistant_message events
// after sinceSeq into a chronological list of turns.
func extractConversation(log *eventlog.EventLog, sinceSeq uint64) ([]turn, error) {
	events, err := log.ReadEvents(sinceSeq, []eventlog.Type{eventlog.TypeUserMessage, eventlog.TypeAssistantMessage})
	if err != nil {
		return nil, fmt.Errorf("handoff: reading conversation events: %w", err)
	}

	turns := make([]turn, 0, len(events))
	for _, e := range events {
		switch {
		case e.UserMessage != nil && e.UserMessage.Text != "":
			turns = append(turns, turn{role: "user", blocks: []eventlog.MessageBlock{{Kind: "text", Text: e.UserMessage.Text}}})
		case e.AssistantMessage != nil && len(e.AssistantMessage.Blocks) > 0:
			turns = append(turns, turn{role: "assistant", blocks: e.AssistantMessage.Blocks})
		}
	}
	return turns, nil
}

// formatForProvider renders turns the way the target provider expects its
// handoff context: Claude omits thinking blocks (it regenerates its own
// reasoning), Codex keeps them under a [Reasoning] label, everything else
// gets a generic XML-tagged rendering.
func formatForProvider(turns []turn, providerKind, newMessage string) string {
	switch providerKind {
	case "anthropic":
		return formatForClaude(turns, newMessage)
	case "openai":
		return formatForCodex(turns, newMessage)
	default:
		return formatGeneric(turns, newMessage)
	}
}

func formatForClaude(turns []turn, newMessage string) string {
	var lines []string
	for _, t := range turns {
		if t.role == "user" {
			if text := extractText(t.blocks); text != "" {
				lines = append(lines, "[User]: "+text, "")
			}
			continue
		}
		var parts []string
		for _, b := range t.blocks {
			switch b.Kind {
			case "text":
				if b.Text != "" {
					parts = append(parts, b.Text)
				}
			case "tool_call":
				if summary := formatToolCallCompact(b); summary != "" {
					parts = append(parts, fmt.Sprintf("[Tool: %s] %s", b.ToolName, summary))
				}
			case "tool_result":
				if b.Text != "" {
					parts = append(parts, "[Result]: "+truncate(b.Text, 500))
				}
			}
		}
		if len(parts) > 0 {
			lines = append(lines, "[Assistant]:")
			lines = append(lines, parts...)
			lines = append(lines, "")
		}
	}
	result := strings.TrimSpace(strings.Join(lines, "\n"))
	if newMessage != "" {
		result += "\n\n[User]: " + newMessage
	}
	return result
}

func formatForCodex(turns []turn, newMessage string) string {
	var lines []string
	for _, t := range turns {
		if t.role == "user" {
			if text := extractText(t.blocks); text != "" {
				lines = append(lines, "[User]: "+text, "")
			}
			continue
		}
		var parts []string
		for _, b := range t.blocks {
			switch b.Kind {
			case "thinking":
				if b.Text != "" {
					parts = append(parts, "[Reasoning]: "+truncate(b.Text, 1000))
				}
			case "text":
				if b.Text != "" {
					parts = append(parts, b.Text)
				}
			case "tool_call":
				if summary := formatToolCallCompact(b); summary != "" {
					parts = append(parts, fmt.Sprintf("[Tool: %s] %s", b.ToolName, summary))
				}
			case "tool_result":
				if b.Text != "" {
					parts = append(parts, "[Result]: "+truncate(b.Text, 500))
				}
			}
		}
		if len(parts) > 0 {
			lines = append(lines, "[Assistant]:")
			lines = append(lines, parts...)
			lines = append(lines, "")
		}
	}
	result := strings.TrimSpace(strings.Join(lines, "\n"))
	if newMessage != "" {
		result += "\n\n[User]: " + newMessage
	}
	return result
}

func formatGeneric(turns []turn, newMessage string) string {
	var lines []string
	for _, t := range turns {
		if t.role == "user" {
			if text := extractText(t.blocks); text != "" {
				lines = append(lines, fmt.Sprintf(`<turn role="user">%s</turn>`, text), "")
			}
			continue
		}
		lines = append(lines, `<turn role="assistant">`)
		for _, b := range t.blocks {
			switch b.Kind {
			case "thinking":
				if b.Text != "" {
					lines = append(lines, fmt.Sprintf("<thinking>%s</thinking>", truncate(b.Text, 1000)))
				}
			case "text":
				if b.Text != "" {
					lines = append(lines, fmt.Sprintf("<response>%s</response>", b.Text))
				}
			case "tool_call":
				if summary := formatToolCallCompact(b); summary != "" {
					lines = append(lines, fmt.Sprintf(`<tool name="%s">%s</tool>`, b.ToolName, summary))
				}
			case "tool_result":
				if b.Text != "" {
					lines = append(lines, fmt.Sprintf("<result>%s</result>", truncate(b.Text, 500)))
				}
			}
		}
		lines = append(lines, "</turn>", "")
	}
	result := strings.TrimSpace(strings.Join(lines, "\n"))
	if newMessage != "" {
		result += fmt.Sprintf(`%s<turn role="user">%s</turn>`, "\n\n", newMessage)
	}
	return result
}

func extractText(blocks []eventlog.MessageBlock) string {
	var texts []string
	for _, b := range blocks {
		if b.Kind == "text" && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// formatToolCallCompact renders a tool call's most salient argument: the
// path for file tools, a trimmed command for Bash, the pattern for
// Glob/Grep, and so on, falling back to the first string field in Input.
func formatToolCallCompact(b eventlog.MessageBlock) string {
	args := decodeArgs(b.Input)
	switch b.ToolName {
	case "Read", "Write", "Edit":
		return stringArg(args, "file_path", "path")
	case "Bash":
		return truncate(stringArg(args, "command"), 80)
	case "Glob", "Grep":
		return stringArg(args, "pattern")
	case "Task":
		return stringArg(args, "description")
	case "WebSearch":
		return stringArg(args, "query")
	case "WebFetch":
		return stringArg(args, "url")
	default:
		for _, v := range args {
			if s, ok := v.(string); ok && s != "" {
				return truncate(s, 50)
			}
		}
		return ""
	}
}
