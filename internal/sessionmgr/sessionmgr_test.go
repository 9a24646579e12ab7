package sessionmgr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreate_AssignsUniqueIDsAndOpensLog(t *testing.T) {
	mgr := NewManager(t.TempDir())

	a, err := mgr.Create("first", "/tmp/proj-a")
	require.NoError(t, err)
	b, err := mgr.Create("second", "/tmp/proj-b")
	require.NoError(t, err)

	require.NotEqual(t, a.ID, b.ID)
	require.NotNil(t, a.Log)
	require.NotNil(t, a.Worktree)
	require.NotNil(t, a.Streams)
}

func TestGet_UnknownIDReturnsErrSessionNotFound(t *testing.T) {
	mgr := NewManager(t.TempDir())
	_, err := mgr.Get("nonexistent")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestList_ReturnsAllCreatedSessions(t *testing.T) {
	mgr := NewManager(t.TempDir())
	_, err := mgr.Create("a", "/tmp/a")
	require.NoError(t, err)
	_, err = mgr.Create("b", "/tmp/b")
	require.NoError(t, err)

	require.Len(t, mgr.List(), 2)
}

func TestDelete_RemovesSessionAndClosesLog(t *testing.T) {
	mgr := NewManager(t.TempDir())
	sess, err := mgr.Create("a", "/tmp/a")
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(sess.ID))
	_, err = mgr.Get(sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.Error(t, mgr.Delete(sess.ID))
}

func TestSession_BeginTaskRejectsConcurrentTask(t *testing.T) {
	mgr := NewManager(t.TempDir())
	sess, err := mgr.Create("a", "/tmp/a")
	require.NoError(t, err)

	require.NoError(t, sess.BeginTask(nil))
	require.ErrorIs(t, sess.BeginTask(nil), ErrTaskActive)

	sess.EndTask()
	require.NoError(t, sess.BeginTask(nil))
}
