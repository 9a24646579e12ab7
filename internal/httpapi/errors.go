package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iondrive-co/chad/internal/executor"
	"github.com/iondrive-co/chad/internal/sessionmgr"
	"github.com/iondrive-co/chad/internal/worktree"
)

// errorResponse is the body written for every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps a collaborator error to an HTTP status and writes a
// small JSON body. It never includes a stack trace or internal file
// paths beyond what the underlying error already carries in its message.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, sessionmgr.ErrSessionNotFound),
		errors.Is(err, worktree.ErrWorktreeNotFound),
		errors.Is(err, errTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sessionmgr.ErrTaskActive):
		status = http.StatusConflict
	case errors.Is(err, executor.ErrProjectPathMissing),
		errors.Is(err, executor.ErrAccountNotFound),
		errors.Is(err, executor.ErrAccountHasNoRole),
		errors.Is(err, errNoActiveTask),
		errors.Is(err, errNoActiveStream):
		status = http.StatusBadRequest
	case errors.As(err, new(*json.SyntaxError)), errors.Is(err, errDecodingRequest):
		status = http.StatusBadRequest
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

var (
	errDecodingRequest = errors.New("httpapi: invalid request body")
	errTaskNotFound    = errors.New("httpapi: task not found")
	errNoActiveTask    = errors.New("httpapi: no active task in session")
	errNoActiveStream  = errors.New("httpapi: no active pty stream")
)
