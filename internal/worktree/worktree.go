// Package worktree implements GitWorktree: a per-project manager of
// isolated per-session git worktrees and branches, their diffs, and their
// squash-merge back to a target branch. Every operation shells out to the
// local git executable (its own subprocess, stdout/stderr captured, exit
// code examined), following the teacher's own preference for the git CLI
// over go-git for stash, checkout, and merge — operations where go-git
// either doesn't respect global gitignore or carries known untracked-file
// bugs. go-git is used only for cheap read-only ref/branch inspection.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/iondrive-co/chad/internal/diffmodel"
	"github.com/iondrive-co/chad/internal/paths"
)

// ErrWorktreeNotFound is returned when an operation targets a session with
// no worktree on disk.
var ErrWorktreeNotFound = errors.New("worktree not found")

// ErrNoChangesToMerge is returned by MergeToMain when the task branch has
// nothing to contribute.
var ErrNoChangesToMerge = errors.New("no changes to merge")

const mergeStashMessage = "chad-merge-stash"

// GitWorktree manages all per-session worktrees for one project checkout.
// One instance per project path; MergeToMain takes the instance-wide merge
// lock for its full duration since it manipulates the shared main checkout.
type GitWorktree struct {
	projectPath string
	mergeMu     sync.Mutex
}

// New returns a GitWorktree rooted at projectPath (must be the main
// checkout, not a worktree itself).
func New(projectPath string) *GitWorktree {
	return &GitWorktree{projectPath: projectPath}
}

func (g *GitWorktree) worktreePath(sessionID string) string {
	return paths.WorktreePath(g.projectPath, sessionID)
}

// Path returns the on-disk path of a session's worktree, for callers that
// need to run a child process with it as cwd.
func (g *GitWorktree) Path(sessionID string) string {
	return g.worktreePath(sessionID)
}

func (g *GitWorktree) branchName(sessionID string) string {
	return paths.TaskBranch(sessionID)
}

type gitResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func (r gitResult) Detail() string {
	if d := strings.TrimSpace(r.Stderr); d != "" {
		return d
	}
	return strings.TrimSpace(r.Stdout)
}

// runGit runs `git <args>` in dir (defaulting to the project root), always
// capturing output and never returning a non-nil error for a non-zero exit
// — callers inspect ExitCode/Detail() themselves, mirroring the teacher's
// `check=False` git-CLI idiom.
func (g *GitWorktree) runGit(dir string, args ...string) (gitResult, error) {
	if dir == "" {
		dir = g.projectPath
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...) //nolint:gosec // args are fixed verbs plus validated session ids/paths
	cmd.Dir = dir
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	exitCode := 0
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return gitResult{}, fmt.Errorf("running git %s: %w", strings.Join(args, " "), err)
	}

	return gitResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}

// IsGitRepo reports whether the project path is inside a git repository.
func (g *GitWorktree) IsGitRepo() bool {
	r, err := g.runGit(g.projectPath, "rev-parse", "--git-dir")
	return err == nil && r.ExitCode == 0
}

// MainBranch prefers "main", then "master", else the current branch.
func (g *GitWorktree) MainBranch() string {
	for _, name := range []string{"main", "master"} {
		if r, err := g.runGit(g.projectPath, "rev-parse", "--verify", name); err == nil && r.ExitCode == 0 {
			return name
		}
	}
	if branch, err := g.CurrentBranch(); err == nil && branch != "" {
		return branch
	}
	return "main"
}

// CurrentBranch returns the name of the currently checked-out branch in
// the main project directory, via go-git.
func (g *GitWorktree) CurrentBranch() (string, error) {
	repo, err := git.PlainOpen(g.projectPath)
	if err != nil {
		return "", fmt.Errorf("opening repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", errors.New("detached HEAD")
	}
	return head.Name().Short(), nil
}

// CreateWorktree destroys any prior worktree for sessionID, creates branch
// chad-task-<session_id> from HEAD, and adds a worktree at
// <project>/.chad-worktrees/<session_id>. If the main project has a real
// (non-symlink) .venv or venv directory, it is symlinked into the new
// worktree after pruning stale .pth entries, so editable installs keep
// resolving.
func (g *GitWorktree) CreateWorktree(sessionID string) (path, baseCommit string, err error) {
	if err := paths.ValidateSessionID(sessionID); err != nil {
		return "", "", err
	}

	wtPath := g.worktreePath(sessionID)
	if _, statErr := os.Stat(wtPath); statErr == nil {
		if err := g.DeleteWorktree(sessionID); err != nil {
			return "", "", fmt.Errorf("removing stale worktree: %w", err)
		}
	}

	base := filepath.Dir(wtPath)
	if err := os.MkdirAll(base, 0o750); err != nil {
		return "", "", fmt.Errorf("creating worktree base dir: %w", err)
	}

	head, err := g.runGit(g.projectPath, "rev-parse", "HEAD")
	if err != nil {
		return "", "", err
	}
	if head.ExitCode != 0 {
		return "", "", fmt.Errorf("resolving HEAD: %s", head.Detail())
	}
	baseCommit = strings.TrimSpace(head.Stdout)

	branch := g.branchName(sessionID)
	add, err := g.runGit(g.projectPath, "worktree", "add", "-b", branch, wtPath, baseCommit)
	if err != nil {
		return "", "", err
	}
	if add.ExitCode != 0 {
		return "", "", fmt.Errorf("creating worktree: %s", add.Detail())
	}

	if venvPath := findMainVenv(g.projectPath); venvPath != "" {
		target := filepath.Join(wtPath, filepath.Base(venvPath))
		if _, err := os.Lstat(target); os.IsNotExist(err) {
			worktreeBase := filepath.Join(g.projectPath, paths.WorktreeDirName)
			cleanupStalePthEntries(venvPath, worktreeBase, sessionID)
			_ = os.Symlink(venvPath, target)
		}
	}

	return wtPath, baseCommit, nil
}

// HasChanges reports whether the session's worktree has uncommitted
// changes, or committed changes not yet on the main branch.
func (g *GitWorktree) HasChanges(sessionID string) (bool, error) {
	wtPath := g.worktreePath(sessionID)
	if _, err := os.Stat(wtPath); os.IsNotExist(err) {
		return false, nil
	}

	status, err := g.runGit(wtPath, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(status.Stdout) != "" {
		return true, nil
	}

	mainBranch := g.MainBranch()
	branch := g.branchName(sessionID)
	ahead, err := g.runGit(g.projectPath, "rev-list", "--count", mainBranch+".."+branch)
	if err != nil {
		return false, err
	}
	count, _ := strconv.Atoi(strings.TrimSpace(ahead.Stdout))
	return count > 0, nil
}

// DiffSummary returns a short textual summary of uncommitted worktree
// changes against HEAD, falling back to porcelain status for rename-only
// diffs where --stat produces no output.
func (g *GitWorktree) DiffSummary(sessionID string) (string, error) {
	wtPath := g.worktreePath(sessionID)
	if _, err := os.Stat(wtPath); os.IsNotExist(err) {
		return "", nil
	}

	stat, err := g.runGit(wtPath, "diff", "--stat", "HEAD")
	if err != nil {
		return "", err
	}
	status, err := g.runGit(wtPath, "status", "--porcelain")
	if err != nil {
		return "", err
	}

	statOut := strings.TrimSpace(stat.Stdout)
	statusOut := strings.TrimSpace(status.Stdout)
	if statOut == "" && statusOut == "" {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("**Uncommitted changes:**\n")
	if statOut != "" {
		b.WriteString("```\n" + statOut + "\n```")
	} else {
		b.WriteString("```\n" + statusOut + "\n```")
	}
	return b.String(), nil
}

// FullDiff returns the full unified diff text of uncommitted worktree
// changes against HEAD.
func (g *GitWorktree) FullDiff(sessionID string) (string, error) {
	wtPath := g.worktreePath(sessionID)
	if _, err := os.Stat(wtPath); os.IsNotExist(err) {
		return "", nil
	}
	r, err := g.runGit(wtPath, "diff", "HEAD")
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(r.Stdout)
	if out == "" {
		return "No changes", nil
	}
	return out, nil
}

// ParsedDiff returns structured diffs for uncommitted worktree changes,
// including untracked files (diffed against /dev/null).
func (g *GitWorktree) ParsedDiff(sessionID string) ([]diffmodel.FileDiff, error) {
	wtPath := g.worktreePath(sessionID)
	if _, err := os.Stat(wtPath); os.IsNotExist(err) {
		return nil, nil
	}

	var combined strings.Builder

	tracked, err := g.runGit(wtPath, "diff", "HEAD")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(tracked.Stdout) != "" {
		combined.WriteString(tracked.Stdout)
	}

	untracked, err := g.runGit(wtPath, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	for _, rel := range strings.Split(strings.TrimSpace(untracked.Stdout), "\n") {
		if rel == "" {
			continue
		}
		full := filepath.Join(wtPath, rel)
		if _, statErr := os.Stat(full); statErr != nil {
			continue
		}
		diff, err := g.runGit(wtPath, "diff", "--no-index", "--", os.DevNull, full)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(diff.Stdout) != "" {
			combined.WriteString(diff.Stdout)
		}
	}

	if combined.Len() == 0 {
		return nil, nil
	}
	return diffmodel.ParseUnifiedDiff(combined.String())
}

// ResetWorktree hard-resets the session's worktree to baseCommit and
// removes untracked files.
func (g *GitWorktree) ResetWorktree(sessionID, baseCommit string) error {
	wtPath := g.worktreePath(sessionID)
	if _, err := os.Stat(wtPath); os.IsNotExist(err) {
		return ErrWorktreeNotFound
	}
	if _, err := g.runGit(wtPath, "reset", "--hard", baseCommit); err != nil {
		return err
	}
	_, err := g.runGit(wtPath, "clean", "-fd")
	return err
}

// DeleteWorktree removes the worktree directory, falling back to prune +
// manual directory removal if `git worktree remove` fails, then deletes
// the task branch and cleans any .pth pollution left behind.
func (g *GitWorktree) DeleteWorktree(sessionID string) error {
	wtPath := g.worktreePath(sessionID)
	branch := g.branchName(sessionID)

	if _, err := os.Stat(wtPath); err == nil {
		remove, rErr := g.runGit(g.projectPath, "worktree", "remove", "--force", wtPath)
		if rErr != nil {
			return rErr
		}
		if remove.ExitCode != 0 {
			_, _ = g.runGit(g.projectPath, "worktree", "prune")
			_ = os.RemoveAll(wtPath)
		}
	}

	if venvPath := findMainVenv(g.projectPath); venvPath != "" {
		worktreeBase := filepath.Join(g.projectPath, paths.WorktreeDirName)
		cleanupStalePthEntries(venvPath, worktreeBase, "")
	}

	_, err := g.runGit(g.projectPath, "branch", "-D", branch)
	return err
}
