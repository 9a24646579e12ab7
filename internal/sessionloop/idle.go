package sessionloop

import (
	"time"

	"github.com/iondrive-co/chad/internal/agentcmd"
)

// idleThreshold maps the last observed normalized event kind to how long a
// silence after it is tolerated before the child is considered stalled.
// Thinking output is expected densely (60s), ordinary assistant text can
// lag behind a large model's latency (240s), and tool calls may be
// genuinely long-running commands (420s).
func idleThreshold(kind agentcmd.NormalizedEventKind) time.Duration {
	switch kind {
	case agentcmd.EventThinking:
		return 60 * time.Second
	case agentcmd.EventToolCall, agentcmd.EventToolResult:
		return 420 * time.Second
	default:
		return 240 * time.Second
	}
}

const explorationLoopLimit = 40
