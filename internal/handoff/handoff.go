// Package handoff builds the markdown context summary carried across a
// provider switch, so a freshly-spawned agent on a different account
// picks up roughly where the last one left off.
//
// Grounded on original_source's util/handoff.py (extract_progress_from_events,
// build_handoff_summary, log_handoff_checkpoint, build_resume_prompt,
// get_last_checkpoint_provider_session_id) and util/message_converter.py
// (extract_conversation_from_events, format_for_provider and its three
// per-provider renderers).
package handoff

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/iondrive-co/chad/internal/eventlog"
)

// Progress summarizes what a phase run did, scraped from its tool calls.
type Progress struct {
	FilesChanged []string
	FilesCreated []string
	KeyCommands  []string
}

var commandKeywords = []string{"pytest", "npm", "make", "cargo", "go ", "yarn", "pnpm", "gradle", "mvn", "go test", "go build"}

// ExtractProgress scans tool_call_started events after sinceSeq for file
// writes/edits and notable shell commands (test/build runners).
func ExtractProgress(log *eventlog.EventLog, sinceSeq uint64) (Progress, error) {
	events, err := log.ReadEvents(sinceSeq, []eventlog.Type{eventlog.TypeToolCallStarted})
	if err != nil {
		return Progress{}, fmt.Errorf("handoff: reading tool call events: %w", err)
	}

	changed := map[string]struct{}{}
	created := map[string]struct{}{}
	var commands []string

	for _, e := range events {
		if e.ToolCallStarted == nil {
			continue
		}
		tc := e.ToolCallStarted
		args := decodeArgs(tc.Input)

		switch strings.ToLower(tc.ToolName) {
		case "write":
			if p := stringArg(args, "file_path", "path"); p != "" {
				created[p] = struct{}{}
			}
		case "edit":
			if p := stringArg(args, "file_path", "path"); p != "" {
				changed[p] = struct{}{}
			}
		case "bash":
			cmd := stringArg(args, "command")
			if cmd == "" {
				continue
			}
			lower := strings.ToLower(cmd)
			for _, kw := range commandKeywords {
				if strings.Contains(lower, kw) {
					commands = append(commands, truncate(cmd, 100))
					break
				}
			}
		}
	}

	if len(commands) > 10 {
		commands = commands[len(commands)-10:]
	}

	return Progress{
		FilesChanged: sortedKeys(changed),
		FilesCreated: sortedKeys(created),
		KeyCommands:  commands,
	}, nil
}

func decodeArgs(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func stringArg(args map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := args[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BuildSummary renders the markdown handoff block: original task,
// conversation history formatted for targetProvider, files touched, key
// commands run, and any remaining work.
func BuildSummary(originalTask string, log *eventlog.EventLog, targetProvider string, sinceSeq uint64, remainingWork string) (string, error) {
	progress, err := ExtractProgress(log, sinceSeq)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("<previous_session>\n")
	fmt.Fprintf(&b, "## Original Task\n%s\n\n", originalTask)

	turns, err := extractConversation(log, sinceSeq)
	if err != nil {
		return "", err
	}
	if len(turns) > 0 {
		conv := formatForProvider(turns, targetProvider, "")
		if conv != "" {
			b.WriteString("## Conversation History\n")
			b.WriteString(conv)
			b.WriteString("\n\n")
		}
	}

	if len(progress.FilesChanged) > 0 || len(progress.FilesCreated) > 0 {
		b.WriteString("## Files Modified\n")
		for _, f := range progress.FilesCreated {
			fmt.Fprintf(&b, "- Created: `%s`\n", f)
		}
		for _, f := range progress.FilesChanged {
			fmt.Fprintf(&b, "- Modified: `%s`\n", f)
		}
		b.WriteString("\n")
	}

	if len(progress.KeyCommands) > 0 {
		b.WriteString("## Commands Run\n")
		for _, c := range progress.KeyCommands {
			fmt.Fprintf(&b, "- `%s`\n", c)
		}
		b.WriteString("\n")
	}

	if remainingWork != "" {
		fmt.Fprintf(&b, "## Remaining Work\n%s\n\n", remainingWork)
	}

	b.WriteString("</previous_session>")
	return b.String(), nil
}

// LogCheckpoint builds a handoff summary and appends it as a
// context_condensed event, recording the provider-native session id (if
// any) so a resume-capable provider can skip the markdown and resume
// natively instead.
func LogCheckpoint(log *eventlog.EventLog, originalTask, providerSessionID, remainingWork, targetProvider string) (uint64, error) {
	summary, err := BuildSummary(originalTask, log, targetProvider, 0, remainingWork)
	if err != nil {
		return 0, err
	}
	progress, err := ExtractProgress(log, 0)
	if err != nil {
		return 0, err
	}

	event, err := log.Append(eventlog.Event{
		Type: eventlog.TypeContextCondensed,
		ContextCondensed: &eventlog.ContextCondensed{
			Policy:            "provider_handoff",
			Markdown:          summary,
			ModifiedFiles:     progress.FilesChanged,
			CreatedFiles:      progress.FilesCreated,
			KeyCommands:       progress.KeyCommands,
			PriorNativeSessID: providerSessionID,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("handoff: logging checkpoint: %w", err)
	}
	return event.Seq, nil
}

// BuildResumePrompt assembles the prompt for continuing a session on a
// (possibly different) provider: the original task description plus a
// fresh summary formatted for targetProvider, with an optional new
// instruction appended.
func BuildResumePrompt(log *eventlog.EventLog, newMessage, targetProvider string) (string, error) {
	task := "Continue previous work"
	started, err := log.ReadEvents(0, []eventlog.Type{eventlog.TypeSessionStarted})
	if err != nil {
		return "", fmt.Errorf("handoff: reading session_started: %w", err)
	}
	if len(started) > 0 && started[0].SessionStarted != nil && started[0].SessionStarted.TaskDescription != "" {
		task = started[0].SessionStarted.TaskDescription
	}

	context, err := BuildSummary(task, log, targetProvider, 0, "")
	if err != nil {
		return "", err
	}
	if newMessage != "" {
		return fmt.Sprintf("%s\n\nContinue with: %s", context, newMessage), nil
	}
	return context, nil
}

// LastCheckpointNativeSessionID returns the provider-native session id
// recorded by the most recent provider_handoff checkpoint, for providers
// that support resuming a native thread instead of replaying markdown.
func LastCheckpointNativeSessionID(log *eventlog.EventLog) (string, bool) {
	events, err := log.ReadEvents(0, []eventlog.Type{eventlog.TypeContextCondensed})
	if err != nil {
		return "", false
	}
	for i := len(events) - 1; i >= 0; i-- {
		cc := events[i].ContextCondensed
		if cc != nil && cc.Policy == "provider_handoff" && cc.PriorNativeSessID != "" {
			return cc.PriorNativeSessID, true
		}
	}
	return "", false
}
