// Package qwen builds the argv/env for Qwen Code and parses its
// stream-json output into the normalized event shape agentcmd exposes.
package qwen

import (
	"os"

	"github.com/iondrive-co/chad/internal/paths"
)

// Build returns the command to run qwen for one phase. The prompt is
// passed via -p rather than stdin: qwen reads stdin at startup before a
// PTY can deliver data to it, so an on-stdin prompt would be missed.
func Build(prompt, model, nativeSessionID string) (argv, env []string, err error) {
	bin, err := paths.BinaryPath("qwen")
	if err != nil {
		return nil, nil, err
	}

	argv = []string{bin, "--output-format", "stream-json", "--yolo"}
	if nativeSessionID != "" {
		argv = append(argv, "--resume", nativeSessionID)
	}
	argv = append(argv, "-p", prompt)
	if model != "" {
		argv = append(argv, "-m", model)
	}

	env = append(os.Environ(), "TERM=xterm-256color")
	return argv, env, nil
}
