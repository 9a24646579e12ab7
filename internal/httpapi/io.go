package httpapi

import (
	"encoding/base64"
	"net/http"
)

func (s *Server) handleSendInput(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req sendInputRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	loop := sess.Loop()
	if loop == nil {
		writeError(w, errNoActiveTask)
		return
	}
	streamID, active := loop.CurrentStream()
	if !active {
		writeError(w, errNoActiveStream)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sess.Streams.SendInput(streamID, data, false); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req resizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	loop := sess.Loop()
	if loop == nil {
		writeError(w, errNoActiveTask)
		return
	}
	streamID, active := loop.CurrentStream()
	if !active {
		writeError(w, errNoActiveStream)
		return
	}

	if err := sess.Streams.Resize(streamID, req.Rows, req.Cols); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "rows": req.Rows, "cols": req.Cols})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	loop := sess.Loop()
	if loop == nil {
		writeError(w, errNoActiveTask)
		return
	}

	loop.EnqueueMessage(req.Content)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": sess.ID})
}
