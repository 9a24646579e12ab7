// Package openai builds the argv/env/stdin for Codex exec and parses its
// --json output into the normalized event shape agentcmd exposes.
package openai

import (
	"fmt"
	"os"
	"runtime"

	"github.com/iondrive-co/chad/internal/paths"
)

// Build returns the command to run `codex exec` for one phase. When
// nativeThreadID is non-empty the prior thread is resumed instead of
// starting a fresh one.
func Build(account, projectPath, prompt, model, reasoning, nativeThreadID string) (argv, env []string, stdin []byte, err error) {
	bin, err := paths.BinaryPath("openai")
	if err != nil {
		return nil, nil, nil, err
	}

	home, err := resolveHome(account)
	if err != nil {
		return nil, nil, nil, err
	}

	if nativeThreadID != "" {
		argv = []string{bin, "exec", "--json", "--dangerously-bypass-approvals-and-sandbox", "resume", nativeThreadID, "-"}
	} else {
		argv = []string{bin, "exec", "--dangerously-bypass-approvals-and-sandbox", "--skip-git-repo-check", "--json", "-C", projectPath, "-"}
	}
	if model != "" {
		argv = append(argv, "-m", model)
	}
	if reasoning != "" {
		argv = append(argv, "-c", fmt.Sprintf("model_reasoning_effort=%q", reasoning))
	}

	env = append(os.Environ(),
		"HOME="+home,
		"PYTHONUNBUFFERED=1",
		"PYTHONIOENCODING=utf-8",
		"TERM=xterm-256color",
	)
	if runtime.GOOS == "windows" {
		env = append(env,
			"USERPROFILE="+home,
			"APPDATA="+home,
			"LOCALAPPDATA="+home,
		)
	}

	return argv, env, []byte(prompt), nil
}

func resolveHome(account string) (string, error) {
	if account == "" {
		return os.UserHomeDir()
	}
	return paths.CredentialDir("openai", account)
}
