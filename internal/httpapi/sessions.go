package httpapi

import (
	"net/http"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	sess, err := s.sessions.Create(req.Name, req.ProjectPath)
	if err != nil {
		writeError(w, err)
		return
	}
	s.registry.Register(sess.ID, sess)

	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List()
	resp := sessionListResponse{Sessions: make([]sessionResponse, 0, len(sessions)), Total: len(sessions)}
	for _, sess := range sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.registry.Unregister(id)
	if err := s.sessions.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	loop := sess.Loop()
	if loop == nil || !sess.Active() {
		writeJSON(w, http.StatusOK, cancelResponse{
			SessionID:       sess.ID,
			CancelRequested: false,
			Message:         "no active task to cancel",
		})
		return
	}

	loop.Cancel()
	if streamID, active := loop.CurrentStream(); active {
		_ = sess.Streams.Terminate(streamID)
	}

	writeJSON(w, http.StatusOK, cancelResponse{
		SessionID:       sess.ID,
		CancelRequested: true,
		Message:         "cancellation requested",
	})
}
