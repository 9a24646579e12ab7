// Package httpapi is the thin REST/SSE/WS surface in front of
// internal/sessionmgr and internal/executor: it translates HTTP requests
// into calls against those packages and their errors into HTTP status
// codes, and streams a session's merged event/terminal feed through
// internal/eventmux. It owns no state of its own beyond routing.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iondrive-co/chad/internal/config"
	"github.com/iondrive-co/chad/internal/eventmux"
	"github.com/iondrive-co/chad/internal/executor"
	"github.com/iondrive-co/chad/internal/sessionmgr"
)

// Server wires the session registry, task executor, and event multiplexer
// to a set of HTTP handlers.
type Server struct {
	sessions *sessionmgr.Manager
	exec     *executor.Executor
	accounts *config.Store
	registry *eventmux.Registry
	mux      *eventmux.Mux
	upgrader websocket.Upgrader
}

// New constructs a Server. The caller owns the lifetime of sessions, exec,
// and accounts; Server only reads from them.
func New(sessions *sessionmgr.Manager, exec *executor.Executor, accounts *config.Store) *Server {
	registry := eventmux.NewRegistry()
	return &Server{
		sessions: sessions,
		exec:     exec,
		accounts: accounts,
		registry: registry,
		mux:      eventmux.New(registry, sessions.Streams()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the HTTP handler, matching every endpoint against the
// standard library's 1.22+ method-and-path pattern matching.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/cancel", s.handleCancelSession)

	mux.HandleFunc("POST /sessions/{id}/tasks", s.handleStartTask)
	mux.HandleFunc("GET /sessions/{id}/tasks/{task_id}", s.handleGetTask)

	mux.HandleFunc("GET /sessions/{id}/stream", s.handleStream)
	mux.HandleFunc("POST /sessions/{id}/input", s.handleSendInput)
	mux.HandleFunc("POST /sessions/{id}/resize", s.handleResize)
	mux.HandleFunc("POST /sessions/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /sessions/{id}/milestones", s.handleMilestones)
	mux.HandleFunc("GET /sessions/{id}/events", s.handleEvents)

	mux.HandleFunc("POST /sessions/{id}/worktree", s.handleCreateWorktree)
	mux.HandleFunc("GET /sessions/{id}/worktree", s.handleWorktreeStatus)
	mux.HandleFunc("DELETE /sessions/{id}/worktree", s.handleDeleteWorktree)
	mux.HandleFunc("GET /sessions/{id}/worktree/diff", s.handleWorktreeDiff)
	mux.HandleFunc("POST /sessions/{id}/worktree/merge", s.handleWorktreeMerge)
	mux.HandleFunc("POST /sessions/{id}/worktree/reset", s.handleWorktreeReset)

	mux.HandleFunc("GET /ws/{session_id}", s.handleWebSocket)

	return mux
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) getSession(r *http.Request) (*sessionmgr.Session, error) {
	return s.sessions.Get(r.PathValue("id"))
}
