package worktree

import (
	"fmt"
	"strings"
)

// WorktreeConflict is one conflicted file from a failed squash-merge, with
// its conflict markers parsed into structured hunks.
type WorktreeConflict struct {
	FilePath string         `json:"file_path"`
	Hunks    []ConflictHunk `json:"hunks"`
}

// ConflictHunk is one <<<<<<< / ======= / >>>>>>> region.
type ConflictHunk struct {
	HunkIndex      int      `json:"hunk_index"`
	OriginalLines  []string `json:"original_lines"`
	IncomingLines  []string `json:"incoming_lines"`
	ContextBefore  []string `json:"context_before,omitempty"`
	ContextAfter   []string `json:"context_after,omitempty"`
	StartLine      int      `json:"start_line"`
	EndLine        int      `json:"end_line"`
}

// MergeToMain is the canonical squash-merge flow:
//  1. commit any uncommitted worktree changes with a throwaway message
//  2. stash uncommitted changes on the target branch
//  3. checkout target
//  4. `git merge --squash <task_branch>`
//     - on conflict: parse markers into WorktreeConflict and return without
//       popping the stash (conflicts must be resolved or aborted first)
//     - on success: commit with the caller's message, then pop the stash
//  5. any other failure restores the stash and returns an error detail
//
// The whole sequence runs under the instance-wide merge lock so the shared
// main checkout is never touched by two merges concurrently.
func (g *GitWorktree) MergeToMain(sessionID, message, targetBranch string) (success bool, conflicts []WorktreeConflict, errDetail string) {
	g.mergeMu.Lock()
	defer g.mergeMu.Unlock()

	wtPath := g.worktreePath(sessionID)
	branch := g.branchName(sessionID)
	mergeTarget := targetBranch
	if mergeTarget == "" {
		mergeTarget = g.MainBranch()
	}

	if _, err := osStat(wtPath); err != nil {
		return false, nil, "Worktree not found"
	}

	hasChanges, err := g.HasChanges(sessionID)
	if err != nil {
		return false, nil, err.Error()
	}
	if !hasChanges {
		return false, nil, "No changes to merge"
	}

	if ok, detail := g.commitAllChanges(wtPath, "WIP"); !ok {
		status, _ := g.runGit(wtPath, "status", "--short")
		full := detail
		if s := strings.TrimSpace(status.Stdout); s != "" {
			if full != "" {
				full = full + ": " + s
			} else {
				full = s
			}
		}
		if full == "" {
			full = "Failed to commit worktree changes"
		}
		return false, nil, full
	}

	stashed := g.stashMainChanges()

	current, _ := g.CurrentBranch()
	if current != mergeTarget {
		r, err := g.runGit(g.projectPath, "checkout", mergeTarget)
		if err != nil {
			if stashed {
				g.popStash()
			}
			return false, nil, err.Error()
		}
		if r.ExitCode != 0 {
			if stashed {
				g.popStash()
			}
			return false, nil, r.Detail()
		}
	}

	finalMsg := message
	if finalMsg == "" {
		finalMsg = "Merge " + branch
	}

	squash, err := g.runGit(g.projectPath, "merge", "--squash", branch)
	if err != nil {
		if stashed {
			g.popStash()
		}
		return false, nil, err.Error()
	}
	if squash.ExitCode != 0 {
		if strings.Contains(squash.Stdout, "CONFLICT") || strings.Contains(squash.Stderr, "CONFLICT") {
			conflicts, parseErr := g.parseConflicts()
			if parseErr != nil {
				return false, nil, parseErr.Error()
			}
			// stash intentionally left untouched: conflicts must be resolved
			// (or AbortMerge called) before it is popped.
			return false, conflicts, ""
		}
		if stashed {
			g.popStash()
		}
		return false, nil, squash.Detail()
	}

	commit, err := g.runGit(g.projectPath, "commit", "-m", finalMsg)
	if err != nil {
		g.resetHardAndPop(stashed)
		return false, nil, err.Error()
	}
	if commit.ExitCode != 0 {
		g.resetHardAndPop(stashed)
		return false, nil, commit.Detail()
	}

	if stashed {
		g.popStash()
	}
	return true, nil, ""
}

func (g *GitWorktree) resetHardAndPop(stashed bool) {
	_, _ = g.runGit(g.projectPath, "reset", "--hard", "HEAD")
	if stashed {
		g.popStash()
	}
}

func (g *GitWorktree) commitAllChanges(wtPath, message string) (ok bool, detail string) {
	add, err := g.runGit(wtPath, "add", "-A")
	if err != nil {
		return false, err.Error()
	}
	if add.ExitCode != 0 {
		return false, add.Detail()
	}

	diff, err := g.runGit(wtPath, "diff", "--cached", "--quiet")
	if err != nil {
		return false, err.Error()
	}
	if diff.ExitCode == 0 {
		return true, "" // nothing to commit
	}

	commit, err := g.runGit(wtPath, "commit", "-m", message)
	if err != nil {
		return false, err.Error()
	}
	if commit.ExitCode != 0 {
		return false, commit.Detail()
	}
	return true, ""
}

func (g *GitWorktree) hasMainUncommittedChanges() bool {
	r, err := g.runGit(g.projectPath, "status", "--porcelain")
	return err == nil && strings.TrimSpace(r.Stdout) != ""
}

func (g *GitWorktree) stashMainChanges() bool {
	if !g.hasMainUncommittedChanges() {
		return false
	}
	r, err := g.runGit(g.projectPath, "stash", "push", "-m", mergeStashMessage)
	return err == nil && r.ExitCode == 0
}

func (g *GitWorktree) popStash() (ok, hadConflicts bool) {
	r, err := g.runGit(g.projectPath, "stash", "pop")
	if err != nil {
		return false, false
	}
	if r.ExitCode == 0 {
		return true, false
	}
	if strings.Contains(r.Stdout, "CONFLICT") || strings.Contains(r.Stderr, "CONFLICT") {
		return false, true
	}
	return false, false
}

func (g *GitWorktree) hasChadStash() bool {
	r, err := g.runGit(g.projectPath, "stash", "list")
	return err == nil && strings.Contains(r.Stdout, mergeStashMessage)
}

func (g *GitWorktree) popChadStashIfExists() {
	if g.hasChadStash() {
		g.popStash()
	}
}

func (g *GitWorktree) isSquashMergeInProgress() bool {
	squashMsg := gitDirPath(g.projectPath, "SQUASH_MSG")
	mergeHead := gitDirPath(g.projectPath, "MERGE_HEAD")
	return fileExists(squashMsg) && !fileExists(mergeHead)
}

func (g *GitWorktree) isRegularMergeInProgress() bool {
	return fileExists(gitDirPath(g.projectPath, "MERGE_HEAD"))
}

// AbortMerge handles both an in-progress squash merge (reset hard + delete
// SQUASH_MSG) and a regular merge (`git merge --abort`), then pops any
// merge-created stash.
func (g *GitWorktree) AbortMerge() error {
	switch {
	case g.isRegularMergeInProgress():
		r, err := g.runGit(g.projectPath, "merge", "--abort")
		if err != nil {
			return err
		}
		if r.ExitCode != 0 {
			return fmt.Errorf("aborting merge: %s", r.Detail())
		}
	case g.isSquashMergeInProgress():
		r, err := g.runGit(g.projectPath, "reset", "--hard", "HEAD")
		if err != nil {
			return err
		}
		if r.ExitCode != 0 {
			return fmt.Errorf("resetting after squash: %s", r.Detail())
		}
		_ = removeFile(gitDirPath(g.projectPath, "SQUASH_MSG"))
	default:
		return fmt.Errorf("no merge in progress")
	}
	g.popChadStashIfExists()
	return nil
}

// CompleteMerge stages resolved files and commits once every conflict is
// resolved. An empty net diff (conflicts resolved to no change) is
// tolerated and treated as success without creating a commit.
func (g *GitWorktree) CompleteMerge(commitMessage string) error {
	if r, err := g.runGit(g.projectPath, "add", "-A"); err != nil {
		return err
	} else if r.ExitCode != 0 {
		return fmt.Errorf("staging resolved files: %s", r.Detail())
	}

	if g.HasRemainingConflicts() {
		return fmt.Errorf("unresolved conflicts remain")
	}

	diff, err := g.runGit(g.projectPath, "diff", "--cached", "--quiet")
	if err != nil {
		return err
	}
	isSquash := g.isSquashMergeInProgress()

	if diff.ExitCode == 0 {
		if isSquash {
			_ = removeFile(gitDirPath(g.projectPath, "SQUASH_MSG"))
		}
		g.popChadStashIfExists()
		return nil
	}

	var commit gitResult
	if isSquash && commitMessage != "" {
		commit, err = g.runGit(g.projectPath, "commit", "-m", commitMessage)
	} else {
		commit, err = g.runGit(g.projectPath, "commit", "--no-edit")
	}
	if err != nil {
		return err
	}
	if commit.ExitCode != 0 {
		return fmt.Errorf("committing merge: %s", commit.Detail())
	}

	g.popChadStashIfExists()
	return nil
}

// HasRemainingConflicts reports whether any file still carries conflict
// markers in the index.
func (g *GitWorktree) HasRemainingConflicts() bool {
	r, err := g.runGit(g.projectPath, "diff", "--name-only", "--diff-filter=U")
	return err == nil && strings.TrimSpace(r.Stdout) != ""
}
