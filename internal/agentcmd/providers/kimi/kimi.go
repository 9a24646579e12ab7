// Package kimi builds the argv/env for the Kimi CLI and parses its
// stream-json output into the normalized event shape agentcmd exposes.
package kimi

import (
	"os"

	"github.com/iondrive-co/chad/internal/paths"
)

// Build returns the command to run kimi for one phase, with HOME isolated
// per account.
func Build(account, prompt, model, nativeSessionID string) (argv, env []string, err error) {
	bin, err := paths.BinaryPath("kimi")
	if err != nil {
		return nil, nil, err
	}

	home, err := paths.CredentialDir("kimi", account)
	if err != nil {
		return nil, nil, err
	}

	argv = []string{bin, "-p", prompt, "--output-format", "stream-json", "--print"}
	if model != "" {
		argv = append(argv, "-m", model)
	}
	if nativeSessionID != "" {
		argv = append(argv, "--session", nativeSessionID)
	}

	env = append(os.Environ(), "HOME="+home, "TERM=xterm-256color")
	return argv, env, nil
}
