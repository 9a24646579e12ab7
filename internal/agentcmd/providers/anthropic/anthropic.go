// Package anthropic builds the argv/env/stdin for Claude Code and parses
// its stream-json output into the normalized event shape agentcmd exposes.
package anthropic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iondrive-co/chad/internal/paths"
)

// Build returns the command to run claude for one phase. account may be
// empty, in which case the real ~/.claude config is used instead of an
// isolated directory (useful for a developer's own default account).
func Build(account, projectPath, phase, prompt, model string) (argv, env []string, stdin []byte, err error) {
	bin, err := paths.BinaryPath("anthropic")
	if err != nil {
		return nil, nil, nil, err
	}

	configDir, err := resolveConfigDir(account)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := ensureMCPPermissions(configDir); err != nil {
		return nil, nil, nil, err
	}

	argv = []string{
		bin, "-p",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--permission-mode", "bypassPermissions",
		"--verbose",
	}
	if model != "" && model != "default" {
		argv = append(argv, "--model", model)
	}

	env = append(os.Environ(),
		"CLAUDE_CONFIG_DIR="+configDir,
		"PYTHONIOENCODING=utf-8",
		"TERM=xterm-256color",
	)

	turn := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role": "user",
			"content": []map[string]any{
				{"type": "text", "text": prompt},
			},
		},
	}
	stdin, err = json.Marshal(turn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("anthropic: encoding initial turn: %w", err)
	}
	stdin = append(stdin, '\n')

	return argv, env, stdin, nil
}

func resolveConfigDir(account string) (string, error) {
	if account == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("anthropic: resolving home directory: %w", err)
		}
		return filepath.Join(home, ".claude"), nil
	}
	return paths.CredentialDir("anthropic", account)
}

// ensureMCPPermissions writes settings.local.json enabling all
// project-declared MCP servers, so a fresh config directory doesn't stall
// on an interactive MCP permission prompt.
func ensureMCPPermissions(configDir string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("anthropic: creating config dir: %w", err)
	}
	settingsPath := filepath.Join(configDir, "settings.local.json")
	if _, err := os.Stat(settingsPath); err == nil {
		return nil
	}
	body, err := json.MarshalIndent(map[string]any{"enableAllProjectMcpServers": true}, "", "  ")
	if err != nil {
		return fmt.Errorf("anthropic: encoding settings: %w", err)
	}
	return os.WriteFile(settingsPath, body, 0o644)
}
