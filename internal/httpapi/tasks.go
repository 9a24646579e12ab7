package httpapi

import (
	"net/http"
)

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body createTaskRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.ProjectPath != "" {
		sess.ProjectPath = body.ProjectPath
	}

	req := body.toExecutorRequest(s.accounts.Rules())
	task, err := s.exec.StartTask(r.Context(), sess, req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTaskStatusResponse(task.Snapshot()))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	task, ok := s.exec.Task(r.PathValue("task_id"))
	if !ok || task.SessionID != sess.ID {
		writeError(w, errTaskNotFound)
		return
	}

	writeJSON(w, http.StatusOK, toTaskStatusResponse(task.Snapshot()))
}
