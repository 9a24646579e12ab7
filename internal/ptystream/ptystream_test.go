//go:build !windows

package ptystream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStart_ReadsChildOutput(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	id, err := m.Start(ctx, []string{"/bin/sh", "-c", "echo hello"}, nil, "", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		out, err := m.Snapshot(id)
		return err == nil && len(out) > 0
	}, 2*time.Second, 10*time.Millisecond)

	out, err := m.Snapshot(id)
	require.NoError(t, err)
	require.Contains(t, string(out), "hello")
}

func TestSubscribe_ReceivesLiveChunks(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	id, err := m.Start(ctx, []string{"/bin/sh", "-c", "sleep 0.1; echo chunk"}, nil, "", nil)
	require.NoError(t, err)

	ch, subID, err := m.Subscribe(id)
	require.NoError(t, err)
	defer m.Unsubscribe(id, subID)

	select {
	case data, ok := <-ch:
		require.True(t, ok)
		require.Contains(t, string(data), "chunk")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscriber chunk")
	}
}

func TestSendInput_EchoedBack(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	id, err := m.Start(ctx, []string{"/bin/cat"}, nil, "", nil)
	require.NoError(t, err)

	require.NoError(t, m.SendInput(id, []byte("ping\n"), false))

	require.Eventually(t, func() bool {
		out, err := m.Snapshot(id)
		return err == nil && len(out) > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Terminate(id))
}

func TestIdleSince_GrowsWhileQuiet(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	id, err := m.Start(ctx, []string{"/bin/sleep", "1"}, nil, "", nil)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	idle, err := m.IdleSince(id)
	require.NoError(t, err)
	require.Greater(t, idle, time.Duration(0))

	require.NoError(t, m.Terminate(id))
}

func TestTerminate_UnknownStreamReturnsError(t *testing.T) {
	m := NewManager()
	require.ErrorIs(t, m.Terminate("does-not-exist"), ErrStreamNotFound)
}
