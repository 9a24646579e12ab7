// Package sessionmgr is the in-memory session registry: coarse-grained
// locking around create/lookup/delete, holding the strong references a
// session needs for its lifetime (EventLog, GitWorktree, PTYStream
// manager, and — once a task starts — its SessionEventLoop). Deleting a
// session is the definitive teardown point for all of them, the same
// registry-with-RWMutex shape the teacher uses for its strategy registry.
package sessionmgr

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iondrive-co/chad/internal/eventlog"
	"github.com/iondrive-co/chad/internal/paths"
	"github.com/iondrive-co/chad/internal/ptystream"
	"github.com/iondrive-co/chad/internal/sessionloop"
	"github.com/iondrive-co/chad/internal/worktree"
)

// ErrSessionNotFound is returned by Get/Delete for an unknown session id.
var ErrSessionNotFound = fmt.Errorf("sessionmgr: session not found")

// ErrTaskActive is returned by Session.BeginTask when a task is already
// running on that session.
var ErrTaskActive = fmt.Errorf("sessionmgr: task already active on this session")

// Session holds everything one task's lifetime needs: its event log, its
// git worktree handle, its PTY stream manager, and — once a task has
// started — its event loop. A Session outlives any single task; at most
// one task may be active on it at a time.
type Session struct {
	ID          string
	Name        string
	ProjectPath string
	CreatedAt   time.Time

	Log      *eventlog.EventLog
	Worktree *worktree.GitWorktree
	Streams  *ptystream.Manager

	mu         sync.Mutex
	loop       *sessionloop.Loop
	taskActive bool
	baseCommit string
}

// EventLog returns the session's event log. Satisfies eventmux.SessionSource
// structurally, so a *Session can be registered with an eventmux.Registry
// directly.
func (s *Session) EventLog() *eventlog.EventLog { return s.Log }

// CurrentStream reports the active PTY stream of the session's current
// loop, or ok=false if no task has ever started or none is currently
// spawning a child process.
func (s *Session) CurrentStream() (string, bool) {
	loop := s.Loop()
	if loop == nil {
		return "", false
	}
	return loop.CurrentStream()
}

// Terminal reports whether the session's current task has reached a
// terminal state. A session with no task yet is not terminal.
func (s *Session) Terminal() bool {
	loop := s.Loop()
	if loop == nil {
		return false
	}
	return loop.Terminal()
}

// SetBaseCommit records the commit a session's worktree branched from, so
// a later reset can target it.
func (s *Session) SetBaseCommit(commit string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCommit = commit
}

// BaseCommit returns the commit recorded by SetBaseCommit, empty if no
// worktree has been created yet.
func (s *Session) BaseCommit() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCommit
}

// BeginTask marks the session as having an active task, failing if one is
// already running.
func (s *Session) BeginTask(loop *sessionloop.Loop) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taskActive {
		return ErrTaskActive
	}
	s.taskActive = true
	s.loop = loop
	return nil
}

// SetLoop replaces the session's current loop reference without touching
// the active-task flag, used when a handover restarts the coding phase
// under a new sessionloop.Loop instance for the same still-active task.
func (s *Session) SetLoop(loop *sessionloop.Loop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = loop
}

// EndTask clears the active-task flag once a loop reaches a terminal
// state, allowing a new task to start on the same session.
func (s *Session) EndTask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskActive = false
}

// Active reports whether a task is currently running on this session.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskActive
}

// Loop returns the session's current (or most recent) event loop, nil if
// no task has ever started.
func (s *Session) Loop() *sessionloop.Loop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}

// Manager is the process-wide session registry. The PTY service is
// process-global (one Manager, many stream ids) even though sessions never
// share a stream; every Session created here shares the same underlying
// ptystream.Manager.
type Manager struct {
	logDir  string
	streams *ptystream.Manager

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs an empty registry rooted at logDir (event logs and
// artifacts for every session it creates live under logDir).
func NewManager(logDir string) *Manager {
	return &Manager{logDir: logDir, streams: ptystream.NewManager(), sessions: make(map[string]*Session)}
}

// Create allocates a new session: a fresh id, an opened EventLog, and a
// GitWorktree handle. Its PTY streams are served by the Manager's shared
// ptystream.Manager.
func (m *Manager) Create(name, projectPath string) (*Session, error) {
	id := uuid.NewString()
	if err := paths.ValidateSessionID(id); err != nil {
		return nil, fmt.Errorf("sessionmgr: generated invalid session id: %w", err)
	}

	log, err := eventlog.Open(m.logDir, id)
	if err != nil {
		return nil, fmt.Errorf("sessionmgr: opening event log: %w", err)
	}

	sess := &Session{
		ID:          id,
		Name:        name,
		ProjectPath: projectPath,
		CreatedAt:   time.Now(),
		Log:         log,
		Worktree:    worktree.New(projectPath),
		Streams:     m.streams,
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return sess, nil
}

// Streams returns the shared PTY stream manager backing every session
// created by m, for collaborators (the HTTP layer's event multiplexer)
// that need to read raw terminal bytes outside of a session's own loop.
func (m *Manager) Streams() *ptystream.Manager {
	return m.streams
}

// Get looks up a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// List returns every live session, in no particular order.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Delete tears a session down: cancels and terminates any active loop and
// PTY stream, closes the event log, and drops the registry entry. It does
// not remove the git worktree on disk — that is a separate, explicit
// operation (DeleteWorktree) the caller invokes first if it wants the
// checkout gone too.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	if loop := sess.Loop(); loop != nil {
		loop.Cancel()
		if streamID, active := loop.CurrentStream(); active {
			_ = sess.Streams.Terminate(streamID)
		}
	}
	if err := sess.Log.Close(); err != nil {
		return fmt.Errorf("sessionmgr: closing event log for %s: %w", id, err)
	}
	return nil
}
