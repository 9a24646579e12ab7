// Package eventlog implements the append-only, per-session event journal:
// one JSON object per line, sequence-numbered, with large payloads spilled
// to sidecar artifact files.
package eventlog

import (
	"encoding/json"
	"time"
)

// Type tags the kind of payload an Event carries.
type Type string

const (
	TypeSessionStarted      Type = "session_started"
	TypeSessionEnded        Type = "session_ended"
	TypeUserMessage         Type = "user_message"
	TypeAssistantMessage    Type = "assistant_message"
	TypeToolCallStarted     Type = "tool_call_started"
	TypeToolCallFinished    Type = "tool_call_finished"
	TypeTerminalOutput      Type = "terminal_output"
	TypeMilestone           Type = "milestone"
	TypeModelSelected       Type = "model_selected"
	TypeProviderSwitched    Type = "provider_switched"
	TypeVerificationAttempt Type = "verification_attempt"
	TypeContextCondensed    Type = "context_condensed"
)

// MilestoneType enumerates the closed set of milestone kinds.
type MilestoneType string

const (
	MilestoneExploration          MilestoneType = "exploration"
	MilestoneCodingComplete       MilestoneType = "coding_complete"
	MilestoneSessionLimitReached  MilestoneType = "session_limit_reached"
	MilestoneWeeklyLimitReached   MilestoneType = "weekly_limit_reached"
	MilestoneUsageThreshold       MilestoneType = "usage_threshold"
	MilestoneVerificationStarted  MilestoneType = "verification_started"
	MilestoneVerificationPassed   MilestoneType = "verification_passed"
	MilestoneVerificationFailed   MilestoneType = "verification_failed"
	MilestoneRevisionStarted      MilestoneType = "revision_started"
)

// milestoneTitles gives each milestone type a fixed, user-facing title.
var milestoneTitles = map[MilestoneType]string{
	MilestoneExploration:         "Exploring",
	MilestoneCodingComplete:      "Coding complete",
	MilestoneSessionLimitReached: "Session limit reached",
	MilestoneWeeklyLimitReached:  "Weekly limit reached",
	MilestoneUsageThreshold:      "Usage threshold",
	MilestoneVerificationStarted: "Verification started",
	MilestoneVerificationPassed:  "Verification passed",
	MilestoneVerificationFailed:  "Verification failed",
	MilestoneRevisionStarted:     "Revision started",
}

// MilestoneTitle returns the fixed title for a milestone type.
func MilestoneTitle(t MilestoneType) string {
	if title, ok := milestoneTitles[t]; ok {
		return title
	}
	return string(t)
}

// Milestone is a typed, titled sub-event tracking session phase transitions.
// It carries its own per-session sequence, independent of Event.Seq, used
// for cheap polling catch-up by clients that only care about milestones.
type Milestone struct {
	MilestoneSeq uint64         `json:"milestone_seq"`
	Type         MilestoneType  `json:"milestone_type"`
	Title        string         `json:"title"`
	Summary      string         `json:"summary"`
	Details      map[string]any `json:"details,omitempty"`
}

// ArtifactRef points at a sidecar file holding a large payload that was too
// big to inline into the event stream.
type ArtifactRef struct {
	RelativePath string `json:"relative_path"`
	SHA256       string `json:"sha256"`
	ByteLength   int64  `json:"byte_length"`
	Truncated    bool   `json:"truncated"`
}

// Event is the append-only, tagged-union record written to a session's
// JSONL log. Exactly one of the typed payload fields is populated,
// matching Type.
type Event struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	TurnID    string    `json:"turn_id,omitempty"`
	Type      Type      `json:"type"`

	SessionStarted      *SessionStarted      `json:"session_started,omitempty"`
	SessionEnded        *SessionEnded        `json:"session_ended,omitempty"`
	UserMessage         *UserMessage         `json:"user_message,omitempty"`
	AssistantMessage    *AssistantMessage    `json:"assistant_message,omitempty"`
	ToolCallStarted     *ToolCallStarted     `json:"tool_call_started,omitempty"`
	ToolCallFinished    *ToolCallFinished    `json:"tool_call_finished,omitempty"`
	TerminalOutput      *TerminalOutput      `json:"terminal_output,omitempty"`
	Milestone           *Milestone           `json:"milestone,omitempty"`
	ModelSelected       *ModelSelected       `json:"model_selected,omitempty"`
	ProviderSwitched    *ProviderSwitched    `json:"provider_switched,omitempty"`
	VerificationAttempt *VerificationAttempt `json:"verification_attempt,omitempty"`
	ContextCondensed    *ContextCondensed    `json:"context_condensed,omitempty"`
}

// SessionStarted records the task description that kicked off a task.
type SessionStarted struct {
	TaskDescription string `json:"task_description"`
	ProjectPath     string `json:"project_path"`
	CodingAgent     string `json:"coding_agent"`
}

// SessionEnded records the terminal outcome of a task.
type SessionEnded struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// UserMessage is a message enqueued by the user for delivery to the PTY.
type UserMessage struct {
	Text string `json:"text"`
}

// MessageBlock is one block of an AssistantMessage.
type MessageBlock struct {
	Kind       string          `json:"kind"` // text | thinking | tool_call | tool_result | error
	Text       string          `json:"text,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// AssistantMessage holds one or more content blocks from an agent turn.
type AssistantMessage struct {
	Blocks []MessageBlock `json:"blocks"`
}

// ToolCallStarted records the start of a tool invocation.
type ToolCallStarted struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Input      json.RawMessage `json:"input,omitempty"`
}

// ToolCallFinished records the completion of a tool invocation.
type ToolCallFinished struct {
	ToolCallID string          `json:"tool_call_id"`
	Output     json.RawMessage `json:"output,omitempty"`
	Artifact   *ArtifactRef    `json:"artifact,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// TerminalOutput is a chunk of raw PTY bytes, base64-encoded, plus a
// best-effort UTF-8 decode for display.
type TerminalOutput struct {
	Data          string       `json:"data"`
	DecodedText   string       `json:"decoded_text,omitempty"`
	Artifact      *ArtifactRef `json:"artifact,omitempty"`
}

// ModelSelected records which model a phase run used.
type ModelSelected struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// ProviderSwitched records a handover from one provider account to another.
type ProviderSwitched struct {
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Reason      string `json:"reason"`
}

// VerificationAttempt records one verification round's verdict.
type VerificationAttempt struct {
	Attempt int    `json:"attempt"`
	Passed  bool   `json:"passed"`
	Summary string `json:"summary"`
	Issues  string `json:"issues,omitempty"`
}

// ContextCondensed records a handoff summary produced for cross-provider
// continuation.
type ContextCondensed struct {
	Policy            string   `json:"policy"`
	Markdown          string   `json:"markdown"`
	ModifiedFiles     []string `json:"modified_files,omitempty"`
	CreatedFiles      []string `json:"created_files,omitempty"`
	KeyCommands       []string `json:"key_commands,omitempty"`
	PriorNativeSessID string   `json:"prior_native_session_id,omitempty"`
}
