// Package opencode builds the argv/env for the OpenCode CLI and parses its
// JSON output into the normalized event shape agentcmd exposes.
package opencode

import (
	"os"

	"github.com/iondrive-co/chad/internal/paths"
)

// Build returns the command to run opencode for one phase, with its data
// directory isolated per account via XDG_DATA_HOME.
func Build(account, prompt, model, nativeSessionID string) (argv, env []string, err error) {
	bin, err := paths.BinaryPath("opencode")
	if err != nil {
		return nil, nil, err
	}

	dataDir, err := paths.CredentialDir("opencode", account)
	if err != nil {
		return nil, nil, err
	}

	argv = []string{bin, "-p", prompt, "-f", "json", "-q"}
	if model != "" {
		argv = append(argv, "--model", model)
	}
	if nativeSessionID != "" {
		argv = append(argv, "--session", nativeSessionID)
	}

	env = append(os.Environ(), "XDG_DATA_HOME="+dataDir, "TERM=xterm-256color")
	return argv, env, nil
}
