package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/iondrive-co/chad/internal/eventmux"
	"github.com/iondrive-co/chad/internal/sessionmgr"
)

func parseBoolQuery(r *http.Request, key string, def bool) bool {
	q := r.URL.Query()
	if !q.Has(key) {
		return def
	}
	v := q.Get(key)
	if v == "" {
		return true
	}
	return v == "1" || v == "true"
}

// handleStream serves /sessions/{id}/stream as Server-Sent Events, backed
// by the session's merged eventmux.Frame sequence.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	sinceSeq := parseSinceSeq(r)
	includeTerminal := parseBoolQuery(r, "include_terminal", true)
	includeEvents := parseBoolQuery(r, "include_events", true)

	frames, err := s.mux.Stream(r.Context(), sess.ID, sinceSeq, includeTerminal, includeEvents)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("httpapi: streaming unsupported by this response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for frame := range frames {
		if err := writeSSEFrame(w, frame); err != nil {
			return
		}
		flusher.Flush()
	}
}

func writeSSEFrame(w http.ResponseWriter, frame eventmux.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Kind, payload)
	return err
}

// handleWebSocket serves /ws/{session_id} as a bidirectional alternative
// to the SSE endpoint: the server pushes the same frame sequence, and
// accepts {type: ping|cancel} control messages from the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames, err := s.mux.Stream(ctx, sessionID, 0, true, true)
	if err != nil {
		_ = conn.WriteJSON(eventmux.Frame{Kind: eventmux.FrameError, Err: err.Error()})
		return
	}

	go s.readWebSocketControl(conn, sess, cancel)

	for frame := range frames {
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

type wsControlMessage struct {
	Type string `json:"type"`
}

func (s *Server) readWebSocketControl(conn *websocket.Conn, sess *sessionmgr.Session, cancel func()) {
	defer cancel()
	for {
		var msg wsControlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "cancel":
			if loop := sess.Loop(); loop != nil {
				loop.Cancel()
			}
		case "ping":
			_ = conn.WriteJSON(eventmux.Frame{Kind: eventmux.FramePing})
		}
	}
}
