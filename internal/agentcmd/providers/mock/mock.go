// Package mock builds the argv/env/stdin for the test-only "mock"
// provider: a tiny shell script, not a real coding-agent CLI, that prints
// canned JSON-line events so the session loop, quota detector, and handoff
// logic can be exercised without real API costs or a real account. It
// mirrors the role of original_source's MockProvider (queueable canned
// responses, a quota-exhaustion simulation, verification-prompt
// detection) but as an actual spawnable child process, since AgentCommand
// only ever hands ptystream an argv to run.
package mock

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/iondrive-co/chad/internal/paths"
)

// EnvQueueFile points the mock script at a file of newline-delimited JSON
// events to print verbatim instead of its built-in canned response. Tests
// populate this file to script a scenario (e.g. a quota-exhaustion error
// partway through, or a specific verification verdict).
const EnvQueueFile = "CHAD_MOCK_QUEUE_FILE"

// verificationMarker is the substring original_source's MockProvider used
// to detect a verification-phase prompt; kept so a handwritten queue file
// can rely on the same convention.
const verificationMarker = "DO NOT modify or create any files"

// Build returns a shell one-liner that either cats a pre-scripted queue
// file (one JSON event per line, see EnvQueueFile) or prints a single
// canned event appropriate to the phase.
func Build(account, phase, prompt string) (argv, env []string, stdin []byte, err error) {
	credDir, err := paths.CredentialDir("mock", account)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := os.MkdirAll(credDir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("mock: creating credential dir: %w", err)
	}

	fallback, err := defaultCannedLine(phase, prompt)
	if err != nil {
		return nil, nil, nil, err
	}

	script := fmt.Sprintf(
		`if [ -n "$%s" ] && [ -f "$%s" ]; then cat "$%s"; else printf '%%s\n' %s; fi`,
		EnvQueueFile, EnvQueueFile, EnvQueueFile, shellQuote(string(fallback)),
	)

	argv = []string{"/bin/sh", "-c", script}
	env = append(os.Environ(), "CHAD_MOCK_PHASE="+phase)
	stdin = []byte(prompt)
	return argv, env, stdin, nil
}

func defaultCannedLine(phase, prompt string) ([]byte, error) {
	if strings.Contains(prompt, verificationMarker) {
		verdict := map[string]any{"passed": true, "summary": "mock verification: no issues found"}
		verdictJSON, err := json.Marshal(verdict)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"type": "result", "text": string(verdictJSON), "exit_code": 0})
	}
	if phase == "exploration" {
		return json.Marshal(map[string]any{"type": "text", "text": "EXPLORATION_RESULT: nothing further to investigate"})
	}
	return json.Marshal(map[string]any{"type": "result", "text": "mock: applied a trivial canned change", "exit_code": 0})
}

// shellQuote wraps s in single quotes for safe use inside a POSIX sh -c
// script, escaping any embedded single quote. Canned JSON we generate
// ourselves never contains one, but a hand-edited queue path might.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
