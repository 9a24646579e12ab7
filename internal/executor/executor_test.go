package executor

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iondrive-co/chad/internal/config"
	"github.com/iondrive-co/chad/internal/sessionmgr"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@t.com", "GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@t.com")
		require.NoError(t, cmd.Run())
	}
	run("init", "-q")
	require.NoError(t, os.WriteFile(dir+"/README.md", []byte("hi\n"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "initial")
	return dir
}

func newTestAccounts(t *testing.T) *config.Store {
	t.Helper()
	store, err := config.Load(t.TempDir() + "/accounts.json")
	require.NoError(t, err)
	require.NoError(t, store.AddAccount(config.Account{Name: "coder", ProviderKind: "mock", Role: config.RoleCoding}))
	return store
}

func TestStartTask_RejectsMissingProjectPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	accounts := newTestAccounts(t)
	ex := New(accounts, nil)

	mgr := sessionmgr.NewManager(t.TempDir())
	sess, err := mgr.Create("s", "/does/not/exist")
	require.NoError(t, err)

	_, err = ex.StartTask(context.Background(), sess, Request{CodingAccount: "coder", TaskDescription: "x"})
	require.ErrorIs(t, err, ErrProjectPathMissing)
}

func TestStartTask_RejectsUnknownAccount(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	accounts := newTestAccounts(t)
	ex := New(accounts, nil)

	mgr := sessionmgr.NewManager(t.TempDir())
	sess, err := mgr.Create("s", initRepo(t))
	require.NoError(t, err)

	_, err = ex.StartTask(context.Background(), sess, Request{CodingAccount: "ghost", TaskDescription: "x"})
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestStartTask_RunsMockProviderToCompletion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	accounts := newTestAccounts(t)
	ex := New(accounts, nil)

	mgr := sessionmgr.NewManager(t.TempDir())
	sess, err := mgr.Create("s", initRepo(t))
	require.NoError(t, err)

	summary, err := json.Marshal(map[string]any{"change_summary": "did it", "files_changed": []string{"a.go"}})
	require.NoError(t, err)
	line, err := json.Marshal(map[string]any{"type": "result", "text": string(summary), "exit_code": 0})
	require.NoError(t, err)
	queueFile := t.TempDir() + "/queue.jsonl"
	require.NoError(t, os.WriteFile(queueFile, append(line, '\n'), 0o644))
	t.Setenv("CHAD_MOCK_QUEUE_FILE", queueFile)

	task, err := ex.StartTask(context.Background(), sess, Request{CodingAccount: "coder", TaskDescription: "do it"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return task.Snapshot().Status != StatusRunning
	}, 5*time.Second, 20*time.Millisecond)

	require.Equal(t, StatusDone, task.Snapshot().Status)
}

func TestStartTask_RejectsConcurrentTaskOnSameSession(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	accounts := newTestAccounts(t)
	ex := New(accounts, nil)

	mgr := sessionmgr.NewManager(t.TempDir())
	sess, err := mgr.Create("s", initRepo(t))
	require.NoError(t, err)

	queueFile := t.TempDir() + "/queue.jsonl"
	require.NoError(t, os.WriteFile(queueFile, []byte(`{"type":"text","text":"thinking forever"}`+"\n"), 0o644))
	t.Setenv("CHAD_MOCK_QUEUE_FILE", queueFile)

	_, err = ex.StartTask(context.Background(), sess, Request{CodingAccount: "coder", TaskDescription: "do it"})
	require.NoError(t, err)

	_, err = ex.StartTask(context.Background(), sess, Request{CodingAccount: "coder", TaskDescription: "do it again"})
	require.ErrorIs(t, err, sessionmgr.ErrTaskActive)
}
