// Package paths centralizes the on-disk layout of the engine: where event
// logs, artifacts, worktrees, and per-provider credential directories live.
// Keeping this in one place mirrors the teacher repo's own paths package,
// which is the single source of truth other components import rather than
// constructing paths ad hoc.
package paths

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
)

// WorktreeDirName is the directory (relative to a project) holding all
// session worktrees.
const WorktreeDirName = ".chad-worktrees"

// TaskBranchPrefix prefixes every task branch name.
const TaskBranchPrefix = "chad-task-"

// EnvLogDir overrides the default event-log root when set.
const EnvLogDir = "CHAD_LOG_DIR"

// EnvBinaryCache points at a directory where provider CLIs are installed,
// checked before falling back to the process's PATH.
const EnvBinaryCache = "CHAD_BINARY_CACHE"

// canonicalBinaryNames maps a provider kind to the executable name its
// installer produces.
var canonicalBinaryNames = map[string]string{
	"anthropic": "claude",
	"openai":    "codex",
	"gemini":    "gemini",
	"qwen":      "qwen",
	"mistral":   "vibe",
	"opencode":  "opencode",
	"kimi":      "kimi",
}

// ErrBinaryNotFound is returned when a provider's CLI cannot be located in
// the installation cache or on PATH.
var ErrBinaryNotFound = fmt.Errorf("provider binary not found")

// BinaryPath resolves the executable for a provider kind: first under
// CHAD_BINARY_CACHE (if set), then via PATH lookup of the canonical name.
func BinaryPath(providerKind string) (string, error) {
	name, ok := canonicalBinaryNames[providerKind]
	if !ok {
		return "", fmt.Errorf("unknown provider kind %q", providerKind)
	}
	if cache := os.Getenv(EnvBinaryCache); cache != "" {
		candidate := filepath.Join(cache, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	resolved, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s (install it or set %s)", ErrBinaryNotFound, name, EnvBinaryCache)
	}
	return resolved, nil
}

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// ValidateSessionID rejects session IDs that could be used for path
// traversal when interpolated into a filename.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}

// LogDir returns the root directory for event logs, honoring CHAD_LOG_DIR.
func LogDir() (string, error) {
	if env := os.Getenv(EnvLogDir); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".chad", "logs"), nil
}

// ArtifactsDir returns the sidecar artifact directory for a session.
func ArtifactsDir(logDir, sessionID string) string {
	return filepath.Join(logDir, "artifacts", sessionID)
}

// WorktreePath returns the path a session's worktree lives at, given the
// project's root path.
func WorktreePath(projectPath, sessionID string) string {
	return filepath.Join(projectPath, WorktreeDirName, sessionID)
}

// TaskBranch returns the branch name used for a session's task worktree.
func TaskBranch(sessionID string) string {
	return TaskBranchPrefix + sessionID
}

// CredentialDir returns the isolated, per-account credential directory for
// a provider kind, relative to the user's home directory. Shared-credential
// providers (gemini, qwen, mistral) ignore account and return a fixed path.
func CredentialDir(providerKind, account string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	switch providerKind {
	case "anthropic":
		return filepath.Join(home, ".chad", "claude-configs", account), nil
	case "openai":
		return filepath.Join(home, ".chad", "codex-homes", account), nil
	case "gemini":
		return filepath.Join(home, ".gemini"), nil
	case "qwen":
		return filepath.Join(home, ".qwen"), nil
	case "mistral":
		return filepath.Join(home, ".vibe"), nil
	case "opencode":
		return filepath.Join(home, ".chad", "opencode-data", account), nil
	case "kimi":
		return filepath.Join(home, ".chad", "kimi-homes", account), nil
	case "mock":
		return filepath.Join(home, ".chad", "mock-homes", account), nil
	default:
		return "", fmt.Errorf("unknown provider kind %q", providerKind)
	}
}
