// Package eventmux merges a session's persisted event log and its current
// PTY byte stream into one ordered frame sequence for SSE/WebSocket
// consumers: replaying everything since a given seq, then tailing both
// sources live until the session reaches a terminal state or the consumer
// disconnects.
package eventmux

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/iondrive-co/chad/internal/eventlog"
	"github.com/iondrive-co/chad/internal/ptystream"
)

const (
	pollInterval    = 200 * time.Millisecond
	pingInterval    = 15 * time.Second
	outputCapacity  = 512
	notifyQueueSize = 1
)

// FrameKind discriminates the frames a subscriber receives.
type FrameKind string

const (
	FrameEvent    FrameKind = "event"
	FrameTerminal FrameKind = "terminal"
	FramePing     FrameKind = "ping"
	FrameComplete FrameKind = "complete"
	FrameError    FrameKind = "error"
)

// Frame is one item on the merged, session-local monotonic sequence. Event
// carries the structured payload for FrameEvent; TerminalData carries the
// base64-encoded raw bytes for FrameTerminal; Err carries the message for
// FrameError.
type Frame struct {
	Seq          int64           `json:"seq"`
	Kind         FrameKind       `json:"kind"`
	Event        *eventlog.Event `json:"event,omitempty"`
	TerminalData string          `json:"terminal_data,omitempty"`
	Err          string          `json:"err,omitempty"`
}

// SessionSource is the view of a running session the multiplexer needs: its
// event log, the id of whichever PTY stream is currently feeding it (a
// session moves through several streams across phases), and whether it has
// reached a terminal state. The owning session registers itself under its
// id and unregisters on teardown; the multiplexer never holds a strong
// reference to the session itself.
type SessionSource interface {
	EventLog() *eventlog.EventLog
	CurrentStream() (streamID string, ok bool)
	Terminal() bool
}

// Registry maps session ids to their SessionSource, so the multiplexer can
// look a session up by id without owning it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]SessionSource
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]SessionSource)}
}

// Register associates a session id with its source. Call again to replace
// (e.g. if a new in-memory Session object takes over after a restart).
func (r *Registry) Register(sessionID string, src SessionSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = src
}

// Unregister removes a session id, e.g. once the session has gone terminal
// and been evicted from the in-memory manager.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

func (r *Registry) lookup(sessionID string) (SessionSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sessions[sessionID]
	return src, ok
}

// Mux merges a session's EventLog and current PTYStream into one frame
// sequence per call to Stream.
type Mux struct {
	registry *Registry
	streams  *ptystream.Manager
}

// New returns a Mux reading session sources from registry and PTY bytes
// from streams.
func New(registry *Registry, streams *ptystream.Manager) *Mux {
	return &Mux{registry: registry, streams: streams}
}

// Stream returns a channel of frames for sessionID: events after sinceSeq
// (replayed, then tailed by polling) if includeEvents, raw terminal bytes
// from the session's current PTY if includeTerminal. The channel is closed
// when ctx is cancelled, the session reaches a terminal state (after a
// final FrameComplete), or the event log read fails (after a final
// FrameError). Closing ctx is how a consumer disconnects; frames not yet
// delivered to it are simply dropped, not requeued — the log itself is the
// durable record for the next subscriber.
func (m *Mux) Stream(ctx context.Context, sessionID string, sinceSeq uint64, includeTerminal, includeEvents bool) (<-chan Frame, error) {
	src, ok := m.registry.lookup(sessionID)
	if !ok {
		return nil, fmt.Errorf("eventmux: unknown session %q", sessionID)
	}

	buf := newFrameBuffer(outputCapacity)
	notify := make(chan struct{}, notifyQueueSize)
	out := make(chan Frame, 1)

	go buf.drain(ctx, notify, out)
	go m.produce(ctx, src, sinceSeq, includeTerminal, includeEvents, buf, notify)

	return out, nil
}

func (m *Mux) produce(ctx context.Context, src SessionSource, sinceSeq uint64, includeTerminal, includeEvents bool, buf *frameBuffer, notify chan<- struct{}) {
	var seq int64
	push := func(f Frame) {
		seq++
		f.Seq = seq
		buf.push(f)
		select {
		case notify <- struct{}{}:
		default:
		}
	}

	var ptyCh <-chan []byte
	var ptySubID int
	var curStreamID string
	unsubscribe := func() {
		if ptyCh != nil {
			_ = m.streams.Unsubscribe(curStreamID, ptySubID)
			ptyCh = nil
		}
	}
	defer unsubscribe()

	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()
	lastActivity := time.Now()

	for {
		if includeTerminal {
			if sid, ok := src.CurrentStream(); ok && sid != curStreamID {
				unsubscribe()
				if ch, subID, err := m.streams.Subscribe(sid); err == nil {
					ptyCh, ptySubID, curStreamID = ch, subID, sid
				}
			}
		}

		select {
		case <-ctx.Done():
			return

		case chunk, ok := <-ptyCh:
			if !ok {
				ptyCh = nil
				continue
			}
			lastActivity = time.Now()
			push(Frame{Kind: FrameTerminal, TerminalData: base64.StdEncoding.EncodeToString(chunk)})

		case <-pollTicker.C:
			if includeEvents {
				events, err := src.EventLog().ReadEvents(sinceSeq, nil)
				if err != nil {
					push(Frame{Kind: FrameError, Err: err.Error()})
					return
				}
				for i := range events {
					sinceSeq = events[i].Seq
					lastActivity = time.Now()
					push(Frame{Kind: FrameEvent, Event: &events[i]})
				}
			}
			if src.Terminal() {
				push(Frame{Kind: FrameComplete})
				return
			}

		case <-pingTicker.C:
			if time.Since(lastActivity) >= pingInterval {
				push(Frame{Kind: FramePing})
			}
		}
	}
}
