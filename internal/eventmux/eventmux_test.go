package eventmux

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iondrive-co/chad/internal/eventlog"
	"github.com/iondrive-co/chad/internal/ptystream"
)

type fakeSource struct {
	log       *eventlog.EventLog
	terminal  atomic.Bool
	streamID  string
	haveBytes atomic.Bool
}

func (f *fakeSource) EventLog() *eventlog.EventLog { return f.log }

func (f *fakeSource) CurrentStream() (string, bool) {
	return f.streamID, f.haveBytes.Load()
}

func (f *fakeSource) Terminal() bool { return f.terminal.Load() }

func newFakeLog(t *testing.T) *eventlog.EventLog {
	t.Helper()
	log, err := eventlog.Open(t.TempDir(), "sess-mux")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func drainAll(t *testing.T, ch <-chan Frame, timeout time.Duration) []Frame {
	t.Helper()
	var frames []Frame
	deadline := time.After(timeout)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return frames
			}
			frames = append(frames, f)
		case <-deadline:
			return frames
		}
	}
}

func TestStream_ReplaysEventsThenCompletes(t *testing.T) {
	log := newFakeLog(t)
	_, err := log.Append(eventlog.Event{Type: eventlog.TypeSessionStarted, SessionStarted: &eventlog.SessionStarted{TaskDescription: "do the thing"}})
	require.NoError(t, err)

	src := &fakeSource{log: log}
	registry := NewRegistry()
	registry.Register("sess-mux", src)

	mux := New(registry, ptystream.NewManager())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := mux.Stream(ctx, "sess-mux", 0, false, true)
	require.NoError(t, err)

	// Mark terminal shortly after subscribing so the producer's next poll
	// tick emits the replayed event and then a complete frame.
	go func() {
		time.Sleep(50 * time.Millisecond)
		src.terminal.Store(true)
	}()

	frames := drainAll(t, ch, 2*time.Second)
	require.NotEmpty(t, frames)

	var sawEvent, sawComplete bool
	for _, f := range frames {
		switch f.Kind {
		case FrameEvent:
			sawEvent = true
			require.NotNil(t, f.Event)
			require.Equal(t, eventlog.TypeSessionStarted, f.Event.Type)
		case FrameComplete:
			sawComplete = true
		}
	}
	require.True(t, sawEvent, "expected a replayed session_started frame")
	require.True(t, sawComplete, "expected a final complete frame")

	// complete must be last and seq must be strictly increasing.
	require.Equal(t, FrameComplete, frames[len(frames)-1].Kind)
	for i := 1; i < len(frames); i++ {
		require.Greater(t, frames[i].Seq, frames[i-1].Seq)
	}
}

func TestStream_UnknownSessionErrors(t *testing.T) {
	registry := NewRegistry()
	mux := New(registry, ptystream.NewManager())
	_, err := mux.Stream(context.Background(), "nope", 0, false, true)
	require.Error(t, err)
}

func TestStream_CancelClosesChannel(t *testing.T) {
	log := newFakeLog(t)
	src := &fakeSource{log: log}
	registry := NewRegistry()
	registry.Register("sess-cancel", src)

	mux := New(registry, ptystream.NewManager())
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := mux.Stream(ctx, "sess-cancel", 0, false, true)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after cancel")
	}
}

func TestFrameBuffer_PopFromSkipsEvictedGap(t *testing.T) {
	buf := newFrameBuffer(2)
	buf.push(Frame{Seq: 1, Kind: FrameEvent})
	buf.push(Frame{Seq: 2, Kind: FrameEvent})
	buf.push(Frame{Seq: 3, Kind: FrameEvent}) // evicts seq 1 (capacity 2)

	f, next, ok := buf.popFrom(1)
	require.True(t, ok)
	require.Equal(t, int64(2), f.Seq, "seq 1 was evicted, should skip to the next buffered frame")
	require.Equal(t, int64(3), next)

	f, next, ok = buf.popFrom(next)
	require.True(t, ok)
	require.Equal(t, int64(3), f.Seq)
	require.Equal(t, int64(4), next)

	_, _, ok = buf.popFrom(next)
	require.False(t, ok, "nothing buffered yet at seq 4")
}

func TestFrameBuffer_DrainDeliversInOrder(t *testing.T) {
	buf := newFrameBuffer(16)
	notify := make(chan struct{}, 1)
	out := make(chan Frame, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go buf.drain(ctx, notify, out)

	for i := int64(1); i <= 5; i++ {
		buf.push(Frame{Seq: i, Kind: FrameEvent})
		select {
		case notify <- struct{}{}:
		default:
		}
	}

	var got []int64
	for i := 0; i < 5; i++ {
		select {
		case f := <-out:
			got = append(got, f.Seq)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for drained frame")
		}
	}
	require.Equal(t, []int64{1, 2, 3, 4, 5}, got)
}
