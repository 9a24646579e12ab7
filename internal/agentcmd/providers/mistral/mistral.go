// Package mistral builds the argv/env for Mistral Vibe and parses its
// plain-text output into the normalized event shape agentcmd exposes.
// Vibe is the one provider kind with no JSON output mode: every line is
// either ANSI-decorated terminal text or, on the final line, a plain
// pass/fail summary.
package mistral

import (
	"bytes"
	"os"
	"regexp"

	"github.com/iondrive-co/chad/internal/paths"
)

// Build returns the command to run vibe for one phase. continued asks vibe
// to extend its last conversation (--continue) instead of starting fresh;
// vibe has no native session id to pass explicitly, the flag alone is
// enough since credentials (and so conversation state) are shared.
func Build(prompt string, continued bool) (argv, env []string, err error) {
	bin, err := paths.BinaryPath("mistral")
	if err != nil {
		return nil, nil, err
	}

	argv = []string{bin, "-p", prompt, "--output", "text"}
	if continued {
		argv = append(argv, "--continue")
	}

	env = append(os.Environ(), "TERM=xterm-256color")
	return argv, env, nil
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// ParseLine strips ANSI escapes from one line of vibe's plain-text output
// and reports it as a text event; vibe has no structured tool-call or
// result framing to distinguish.
func ParseLine(line []byte) (kind, text string, ok bool) {
	stripped := ansiEscape.ReplaceAll(line, nil)
	stripped = bytes.TrimRight(stripped, "\r\n")
	if len(bytes.TrimSpace(stripped)) == 0 {
		return "", "", false
	}
	return "text", string(stripped), true
}
