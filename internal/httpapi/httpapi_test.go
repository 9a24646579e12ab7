package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iondrive-co/chad/internal/config"
	"github.com/iondrive-co/chad/internal/executor"
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

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	accounts, err := config.Load(t.TempDir() + "/accounts.json")
	require.NoError(t, err)
	require.NoError(t, accounts.AddAccount(config.Account{Name: "coder", ProviderKind: "mock", Role: config.RoleCoding}))

	mgr := sessionmgr.NewManager(t.TempDir())
	exec := executor.New(accounts, nil)
	srv := New(mgr, exec, accounts)
	return httptest.NewServer(srv.Routes())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestCreateAndGetSession(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/sessions", createSessionRequest{Name: "s1", ProjectPath: "/tmp"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created sessionResponse
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "s1", created.Name)

	getResp, err := http.Get(ts.URL + "/sessions/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	var fetched sessionResponse
	decodeBody(t, getResp, &fetched)
	require.Equal(t, created.ID, fetched.ID)
}

func TestGetSession_UnknownIDReturns404(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sessions/does-not-exist")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListSessions_ReflectsCreatedSessions(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	postJSON(t, ts.URL+"/sessions", createSessionRequest{Name: "a", ProjectPath: "/tmp"}).Body.Close()
	postJSON(t, ts.URL+"/sessions", createSessionRequest{Name: "b", ProjectPath: "/tmp"}).Body.Close()

	resp, err := http.Get(ts.URL + "/sessions")
	require.NoError(t, err)
	var list sessionListResponse
	decodeBody(t, resp, &list)
	require.Equal(t, 2, list.Total)
}

func TestDeleteSession_RemovesItFromFutureListings(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/sessions", createSessionRequest{Name: "s", ProjectPath: "/tmp"})
	var created sessionResponse
	decodeBody(t, resp, &created)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+created.ID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, delResp.StatusCode)

	getResp, err := http.Get(ts.URL + "/sessions/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestStartTask_RunsMockProviderToCompletion(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	projectPath := initRepo(t)
	resp := postJSON(t, ts.URL+"/sessions", createSessionRequest{Name: "s", ProjectPath: projectPath})
	var created sessionResponse
	decodeBody(t, resp, &created)

	summary, err := json.Marshal(map[string]any{"change_summary": "did it", "files_changed": []string{"a.go"}})
	require.NoError(t, err)
	line, err := json.Marshal(map[string]any{"type": "result", "text": string(summary), "exit_code": 0})
	require.NoError(t, err)
	queueFile := t.TempDir() + "/queue.jsonl"
	require.NoError(t, os.WriteFile(queueFile, append(line, '\n'), 0o644))
	t.Setenv("CHAD_MOCK_QUEUE_FILE", queueFile)

	taskResp := postJSON(t, ts.URL+"/sessions/"+created.ID+"/tasks", createTaskRequest{
		ProjectPath:     projectPath,
		TaskDescription: "do it",
		CodingAgent:     "coder",
	})
	require.Equal(t, http.StatusCreated, taskResp.StatusCode)
	var task taskStatusResponse
	decodeBody(t, taskResp, &task)
	require.NotEmpty(t, task.TaskID)

	require.Eventually(t, func() bool {
		statusResp, err := http.Get(ts.URL + "/sessions/" + created.ID + "/tasks/" + task.TaskID)
		require.NoError(t, err)
		var status taskStatusResponse
		decodeBody(t, statusResp, &status)
		return status.Status == "done"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWorktreeStatus_NonExistentWorktreeReportsNotExists(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	projectPath := initRepo(t)
	resp := postJSON(t, ts.URL+"/sessions", createSessionRequest{Name: "s", ProjectPath: projectPath})
	var created sessionResponse
	decodeBody(t, resp, &created)

	statusResp, err := http.Get(ts.URL + "/sessions/" + created.ID + "/worktree")
	require.NoError(t, err)
	var status worktreeStatusResponse
	decodeBody(t, statusResp, &status)
	require.False(t, status.Exists)
}
