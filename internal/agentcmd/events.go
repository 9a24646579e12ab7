package agentcmd

import (
	"fmt"

	"github.com/iondrive-co/chad/internal/agentcmd/providers/anthropic"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/gemini"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/kimi"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/mistral"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/mock"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/opencode"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/openai"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/qwen"
)

// NormalizedEventKind is the provider-agnostic shape every per-kind JSON or
// text parser reduces its raw line to, so the session loop never branches
// on provider kind.
type NormalizedEventKind string

const (
	EventText       NormalizedEventKind = "text"
	EventThinking   NormalizedEventKind = "thinking"
	EventToolCall   NormalizedEventKind = "tool_call"
	EventToolResult NormalizedEventKind = "tool_result"
	EventResult     NormalizedEventKind = "result"

	// EventSessionInfo carries no user-visible text; it exists only to
	// surface a provider's native session/thread id the moment it appears
	// in the stream, for later resume. Not one of the spec's five visible
	// kinds, but the session loop needs it and the visible stream doesn't
	// have anywhere else to put it.
	EventSessionInfo NormalizedEventKind = "session_info"
)

// NormalizedEvent is one parsed line of a provider's output stream.
type NormalizedEvent struct {
	Kind NormalizedEventKind
	Text string

	ToolName string

	// NativeSessionID is set when the line carries the provider's own
	// session/thread identifier, used to resume a later phase.
	NativeSessionID string

	// ExitCode is set on EventResult when the provider reports one inline
	// (some providers surface pass/fail in the final JSON line rather than
	// only via process exit status).
	ExitCode *int
}

// ParseLine decodes one raw output line from a provider's child process
// into a NormalizedEvent. ok is false for lines that carry no event (blank
// lines, ANSI-only lines, lines that fail to parse as the provider's
// expected format).
func ParseLine(providerKind string, line []byte) (NormalizedEvent, bool, error) {
	var kind, text, toolName, nativeSessionID string
	var exitCode *int
	var ok bool
	var err error

	switch providerKind {
	case "anthropic":
		kind, text, toolName, nativeSessionID, ok, err = anthropic.ParseLine(line)
	case "openai":
		kind, text, toolName, nativeSessionID, ok, err = openai.ParseLine(line)
	case "gemini":
		kind, text, nativeSessionID, ok, err = gemini.ParseLine(line)
	case "qwen":
		kind, text, nativeSessionID, ok, err = qwen.ParseLine(line)
	case "mistral":
		kind, text, ok = mistral.ParseLine(line)
	case "opencode":
		kind, text, nativeSessionID, ok, err = opencode.ParseLine(line)
	case "kimi":
		kind, text, nativeSessionID, ok, err = kimi.ParseLine(line)
	case "mock":
		kind, text, toolName, exitCode, ok, err = mock.ParseLine(line)
	default:
		return NormalizedEvent{}, false, fmt.Errorf("agentcmd: unknown provider kind %q", providerKind)
	}
	if err != nil || !ok {
		return NormalizedEvent{}, false, err
	}
	return NormalizedEvent{
		Kind:            NormalizedEventKind(kind),
		Text:            text,
		ToolName:        toolName,
		NativeSessionID: nativeSessionID,
		ExitCode:        exitCode,
	}, true, nil
}
