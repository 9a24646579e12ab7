package worktree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func osStat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func removeFile(path string) error {
	return os.Remove(path)
}

func gitDirPath(projectPath, name string) string {
	return filepath.Join(projectPath, ".git", name)
}

// parseConflicts finds every file still marked unmerged (diff-filter=U)
// and parses its conflict markers into a WorktreeConflict.
func (g *GitWorktree) parseConflicts() ([]WorktreeConflict, error) {
	r, err := g.runGit(g.projectPath, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}

	var conflicts []WorktreeConflict
	for _, rel := range strings.Split(strings.TrimSpace(r.Stdout), "\n") {
		if rel == "" {
			continue
		}
		full := filepath.Join(g.projectPath, rel)
		content, err := os.ReadFile(full) //nolint:gosec // path derived from git's own conflict listing
		if err != nil {
			continue
		}
		hunks := parseConflictHunks(string(content))
		if len(hunks) > 0 {
			conflicts = append(conflicts, WorktreeConflict{FilePath: rel, Hunks: hunks})
		}
	}
	return conflicts, nil
}

// parseConflictHunks scans file content for <<<<<<< / ======= / >>>>>>>
// marker triples, collecting up to 3 lines of context on either side of
// each hunk.
func parseConflictHunks(content string) []ConflictHunk {
	lines := strings.Split(content, "\n")
	var hunks []ConflictHunk
	hunkIndex := 0

	for i := 0; i < len(lines); i++ {
		if !strings.HasPrefix(lines[i], "<<<<<<<") {
			continue
		}
		start := i + 1
		contextBefore := lines[max0(i-3):i]

		var original, incoming []string
		i++
		for i < len(lines) && !strings.HasPrefix(lines[i], "=======") {
			original = append(original, lines[i])
			i++
		}
		i++ // skip =======
		for i < len(lines) && !strings.HasPrefix(lines[i], ">>>>>>>") {
			incoming = append(incoming, lines[i])
			i++
		}
		end := i + 1
		contextAfter := lines[minInt(len(lines), i+1):minInt(len(lines), i+4)]

		hunks = append(hunks, ConflictHunk{
			HunkIndex:     hunkIndex,
			OriginalLines: original,
			IncomingLines: incoming,
			ContextBefore: contextBefore,
			ContextAfter:  contextAfter,
			StartLine:     start,
			EndLine:       end,
		})
		hunkIndex++
	}
	return hunks
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ResolveConflict rewrites filePath with the chosen side of exactly the
// hunk at hunkIndex, leaving every other unresolved conflict in the file
// untouched.
func (g *GitWorktree) ResolveConflict(filePath string, hunkIndex int, useIncoming bool) error {
	full := filepath.Join(g.projectPath, filePath)
	content, err := os.ReadFile(full) //nolint:gosec // path is project-relative, caller-controlled
	if err != nil {
		return fmt.Errorf("reading conflicted file: %w", err)
	}

	lines := strings.Split(string(content), "\n")
	var result []string
	currentHunk := 0
	i := 0
	for i < len(lines) {
		if strings.HasPrefix(lines[i], "<<<<<<<") {
			if currentHunk == hunkIndex {
				var original, incoming []string
				i++
				for i < len(lines) && !strings.HasPrefix(lines[i], "=======") {
					original = append(original, lines[i])
					i++
				}
				i++ // skip =======
				for i < len(lines) && !strings.HasPrefix(lines[i], ">>>>>>>") {
					incoming = append(incoming, lines[i])
					i++
				}
				chosen := original
				if useIncoming {
					chosen = incoming
				}
				result = append(result, chosen...)
				currentHunk++
			} else {
				result = append(result, lines[i])
				currentHunk++
			}
		} else {
			result = append(result, lines[i])
		}
		i++
	}

	return os.WriteFile(full, []byte(strings.Join(result, "\n")), 0o600)
}

// ResolveAllConflicts chooses one side for every conflicted file, via
// `git checkout --ours|--theirs` per file, then stages it.
func (g *GitWorktree) ResolveAllConflicts(useIncoming bool) error {
	r, err := g.runGit(g.projectPath, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return err
	}
	for _, rel := range strings.Split(strings.TrimSpace(r.Stdout), "\n") {
		if rel == "" {
			continue
		}
		side := "--ours"
		if useIncoming {
			side = "--theirs"
		}
		if _, err := g.runGit(g.projectPath, "checkout", side, rel); err != nil {
			return err
		}
		if _, err := g.runGit(g.projectPath, "add", rel); err != nil {
			return err
		}
	}
	return nil
}
