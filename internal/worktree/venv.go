package worktree

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// findMainVenv returns the main project's virtual environment directory,
// checking .venv then venv, accepting only real directories so a worktree
// symlinking back to it never creates a cycle.
func findMainVenv(projectPath string) string {
	for _, name := range []string{".venv", "venv"} {
		candidate := filepath.Join(projectPath, name)
		info, err := os.Lstat(candidate)
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if info.IsDir() {
			return candidate
		}
	}
	return ""
}

// cleanupStalePthEntries drops lines from every .pth file under venvPath's
// site-packages that reference a worktree under worktreeBase which either
// no longer exists on disk, or isn't currentWorktreeID (when given). Shared
// venvs otherwise accumulate editable-install paths from deleted or
// unrelated worktrees, which makes Python resolve imports from the wrong
// checkout. Returns the number of entries removed.
func cleanupStalePthEntries(venvPath, worktreeBase, currentWorktreeID string) int {
	sitePackagesDirs, err := filepath.Glob(filepath.Join(venvPath, "lib", "python*", "site-packages"))
	if err != nil || len(sitePackagesDirs) == 0 {
		return 0
	}

	pattern := regexp.MustCompile(regexp.QuoteMeta(worktreeBase) + `/([a-f0-9]+)/src`)
	removed := 0

	for _, sp := range sitePackagesDirs {
		pthFiles, err := filepath.Glob(filepath.Join(sp, "*.pth"))
		if err != nil {
			continue
		}
		for _, pthFile := range pthFiles {
			content, err := os.ReadFile(pthFile) //nolint:gosec // path comes from a controlled glob under the venv
			if err != nil {
				continue
			}

			lines := strings.Split(string(content), "\n")
			var newLines []string
			modified := false

			for _, line := range lines {
				m := pattern.FindStringSubmatch(line)
				if m != nil {
					worktreeID := m[1]
					worktreePath := filepath.Join(worktreeBase, worktreeID)
					_, statErr := os.Stat(worktreePath)
					stale := os.IsNotExist(statErr)
					conflicting := currentWorktreeID != "" && worktreeID != currentWorktreeID
					if stale || conflicting {
						removed++
						modified = true
						continue
					}
				}
				newLines = append(newLines, line)
			}

			if modified {
				out := ""
				if len(newLines) > 0 {
					out = strings.Join(newLines, "\n") + "\n"
				}
				_ = os.WriteFile(pthFile, []byte(out), 0o600)
			}
		}
	}

	return removed
}
