// Package gemini builds the argv/env for Gemini Code Assist and parses its
// stream-json output into the normalized event shape agentcmd exposes.
package gemini

import (
	"os"

	"github.com/iondrive-co/chad/internal/paths"
)

// Build returns the command to run gemini for one phase. Credentials are
// shared across accounts (no per-account isolation directory), so only
// TERM is added to the environment. When nativeSessionID is non-empty the
// prior session is resumed with --resume.
func Build(prompt, model, nativeSessionID string) (argv, env []string, err error) {
	bin, err := paths.BinaryPath("gemini")
	if err != nil {
		return nil, nil, err
	}

	argv = []string{bin, "-y", "--output-format", "stream-json"}
	if model != "" {
		argv = append(argv, "-m", model)
	}
	if nativeSessionID != "" {
		argv = append(argv, "--resume", nativeSessionID)
	}
	argv = append(argv, prompt)

	env = append(os.Environ(), "TERM=xterm-256color")
	return argv, env, nil
}
