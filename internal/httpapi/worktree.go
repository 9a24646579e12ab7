package httpapi

import (
	"fmt"
	"net/http"

	"github.com/iondrive-co/chad/internal/worktree"
)

func (s *Server) handleCreateWorktree(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if !sess.Worktree.IsGitRepo() {
		writeError(w, fmt.Errorf("httpapi: %s is not a git repository", sess.ProjectPath))
		return
	}

	path, baseCommit, err := sess.Worktree.CreateWorktree(sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	sess.SetBaseCommit(baseCommit)

	writeJSON(w, http.StatusCreated, worktreeStatusResponse{
		Exists:     true,
		Path:       path,
		BaseCommit: baseCommit,
	})
}

func (s *Server) handleWorktreeStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	hasChanges, err := sess.Worktree.HasChanges(sess.ID)
	if err != nil {
		writeJSON(w, http.StatusOK, worktreeStatusResponse{Exists: false})
		return
	}

	writeJSON(w, http.StatusOK, worktreeStatusResponse{
		Exists:     true,
		Path:       sess.Worktree.Path(sess.ID),
		BaseCommit: sess.BaseCommit(),
		HasChanges: hasChanges,
	})
}

func (s *Server) handleDeleteWorktree(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := sess.Worktree.DeleteWorktree(sess.ID); err != nil {
		writeError(w, err)
		return
	}
	sess.SetBaseCommit("")

	writeJSON(w, http.StatusOK, worktreeDeleteResponse{
		SessionID: sess.ID,
		Deleted:   true,
		Message:   "worktree deleted",
	})
}

func (s *Server) handleWorktreeDiff(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	summary, err := sess.Worktree.DiffSummary(sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	if !parseBoolQuery(r, "full", false) {
		writeJSON(w, http.StatusOK, diffSummaryResponse{Summary: summary})
		return
	}

	files, err := sess.Worktree.ParsedDiff(sess.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, diffFullResponse{
		SessionID: sess.ID,
		Summary:   diffSummaryResponse{Summary: summary},
		Files:     files,
	})
}

func (s *Server) handleWorktreeMerge(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req mergeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	targetBranch := req.TargetBranch
	if targetBranch == "" {
		targetBranch = sess.Worktree.MainBranch()
	}

	success, conflicts, errDetail := sess.Worktree.MergeToMain(sess.ID, req.Message, targetBranch)
	switch {
	case success:
		writeJSON(w, http.StatusOK, mergeResponse{Success: true, Message: "changes merged successfully"})
	case len(conflicts) > 0:
		writeJSON(w, http.StatusOK, mergeResponse{
			Success:   false,
			Message:   "merge has conflicts that need resolution",
			Conflicts: conflicts,
		})
	default:
		msg := errDetail
		if msg == "" {
			msg = "merge failed"
		}
		writeJSON(w, http.StatusOK, mergeResponse{Success: false, Message: msg})
	}
}

func (s *Server) handleWorktreeReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.getSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	baseCommit := sess.BaseCommit()
	if baseCommit == "" {
		writeError(w, fmt.Errorf("httpapi: %w: no base commit recorded for session %s", worktree.ErrWorktreeNotFound, sess.ID))
		return
	}

	if err := sess.Worktree.ResetWorktree(sess.ID, baseCommit); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, worktreeResetResponse{
		SessionID: sess.ID,
		Reset:     true,
		Message:   "worktree reset successfully",
	})
}
