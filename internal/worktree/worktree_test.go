package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o600))
	run("add", "-A")
	run("commit", "-m", "initial")
	return dir
}

func TestCreateWorktree_AddsBranchAndDirectory(t *testing.T) {
	dir := initRepo(t)
	g := New(dir)

	path, base, err := g.CreateWorktree("sess-1")
	require.NoError(t, err)
	require.NotEmpty(t, base)
	require.DirExists(t, path)
}

func TestMergeToMain_CleanRoundTrip(t *testing.T) {
	dir := initRepo(t)
	g := New(dir)

	path, _, err := g.CreateWorktree("sess-1")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(path, "new.txt"), []byte("content\n"), 0o600))

	success, conflicts, detail := g.MergeToMain("sess-1", "adds new file", "main")
	require.True(t, success, detail)
	require.Empty(t, conflicts)
	require.FileExists(t, filepath.Join(dir, "new.txt"))
}

func TestMergeToMain_ConflictReturnsHunksAndKeepsStash(t *testing.T) {
	dir := initRepo(t)
	g := New(dir)

	path, _, err := g.CreateWorktree("sess-2")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(path, "README.md"), []byte("worktree change\n"), 0o600))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("main change\n"), 0o600))
	mainChangeCmd := exec.Command("git", "add", "-A")
	mainChangeCmd.Dir = dir
	require.NoError(t, mainChangeCmd.Run())
	commitCmd := exec.Command("git", "commit", "-m", "main edit")
	commitCmd.Dir = dir
	require.NoError(t, commitCmd.Run())

	success, conflicts, _ := g.MergeToMain("sess-2", "conflicting merge", "main")
	require.False(t, success)
	require.NotEmpty(t, conflicts)
	require.Equal(t, "README.md", conflicts[0].FilePath)
	require.NotEmpty(t, conflicts[0].Hunks)

	require.NoError(t, g.AbortMerge())
	require.False(t, g.HasRemainingConflicts())
}

func TestDeleteWorktree_RemovesBranchAndDirectory(t *testing.T) {
	dir := initRepo(t)
	g := New(dir)

	path, _, err := g.CreateWorktree("sess-3")
	require.NoError(t, err)
	require.DirExists(t, path)

	require.NoError(t, g.DeleteWorktree("sess-3"))
	require.NoDirExists(t, path)
}

func TestParsedDiff_IncludesUntrackedFiles(t *testing.T) {
	dir := initRepo(t)
	g := New(dir)

	path, _, err := g.CreateWorktree("sess-4")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(path, "untracked.txt"), []byte("new\n"), 0o600))

	files, err := g.ParsedDiff("sess-4")
	require.NoError(t, err)
	require.NotEmpty(t, files)
}
