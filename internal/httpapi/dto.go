package httpapi

import (
	"time"

	"github.com/iondrive-co/chad/internal/diffmodel"
	"github.com/iondrive-co/chad/internal/executor"
	"github.com/iondrive-co/chad/internal/sessionloop"
	"github.com/iondrive-co/chad/internal/sessionmgr"
	"github.com/iondrive-co/chad/internal/worktree"
)

type createSessionRequest struct {
	Name        string `json:"name,omitempty"`
	ProjectPath string `json:"project_path,omitempty"`
}

type sessionResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ProjectPath string    `json:"project_path"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

func toSessionResponse(sess *sessionmgr.Session) sessionResponse {
	return sessionResponse{
		ID:          sess.ID,
		Name:        sess.Name,
		ProjectPath: sess.ProjectPath,
		Active:      sess.Active(),
		CreatedAt:   sess.CreatedAt,
	}
}

type sessionListResponse struct {
	Sessions []sessionResponse `json:"sessions"`
	Total    int               `json:"total"`
}

type cancelResponse struct {
	SessionID       string `json:"session_id"`
	CancelRequested bool   `json:"cancel_requested"`
	Message         string `json:"message"`
}

type createTaskRequest struct {
	ProjectPath             string   `json:"project_path"`
	TaskDescription         string   `json:"task_description"`
	CodingAgent             string   `json:"coding_agent"`
	CodingModel             string   `json:"coding_model,omitempty"`
	CodingReasoning         string   `json:"coding_reasoning,omitempty"`
	TerminalRows            int      `json:"terminal_rows,omitempty"`
	TerminalCols            int      `json:"terminal_cols,omitempty"`
	Screenshots             []string `json:"screenshots,omitempty"`
	OverridePrompt          string   `json:"override_prompt,omitempty"`
	VerificationAgent       string   `json:"verification_agent,omitempty"`
	VerificationModel       string   `json:"verification_model,omitempty"`
	VerificationReasoning   string   `json:"verification_reasoning,omitempty"`
	MaxVerificationAttempts int      `json:"max_verification_attempts,omitempty"`
}

func (req createTaskRequest) toExecutorRequest(rules []sessionloop.ThresholdRule) executor.Request {
	return executor.Request{
		TaskDescription:         req.TaskDescription,
		CodingAccount:           req.CodingAgent,
		CodingModel:             req.CodingModel,
		CodingReasoning:         req.CodingReasoning,
		VerificationAccount:     req.VerificationAgent,
		VerificationModel:       req.VerificationModel,
		VerificationReasoning:   req.VerificationReasoning,
		TerminalRows:            req.TerminalRows,
		TerminalCols:            req.TerminalCols,
		Screenshots:             req.Screenshots,
		OverridePrompt:          req.OverridePrompt,
		MaxVerificationAttempts: req.MaxVerificationAttempts,
		Rules:                   rules,
	}
}

type taskStatusResponse struct {
	TaskID    string    `json:"task_id"`
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

func toTaskStatusResponse(snap executor.Snapshot) taskStatusResponse {
	resp := taskStatusResponse{
		TaskID:    snap.ID,
		SessionID: snap.SessionID,
		Status:    string(snap.Status),
		Reason:    snap.Reason,
		StartedAt: snap.StartedAt,
	}
	if !snap.EndedAt.IsZero() {
		resp.EndedAt = snap.EndedAt
	}
	return resp
}

type sendInputRequest struct {
	Data string `json:"data"`
}

type resizeRequest struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type worktreeStatusResponse struct {
	Exists     bool   `json:"exists"`
	Path       string `json:"path,omitempty"`
	Branch     string `json:"branch,omitempty"`
	BaseCommit string `json:"base_commit,omitempty"`
	HasChanges bool   `json:"has_changes"`
}

type diffSummaryResponse struct {
	Summary string `json:"summary"`
}

type diffFullResponse struct {
	SessionID string                `json:"session_id"`
	Summary   diffSummaryResponse   `json:"summary"`
	Files     []diffmodel.FileDiff  `json:"files"`
}

type mergeRequest struct {
	Message      string `json:"message"`
	TargetBranch string `json:"target_branch,omitempty"`
}

type mergeResponse struct {
	Success   bool                        `json:"success"`
	Message   string                      `json:"message"`
	Conflicts []worktree.WorktreeConflict `json:"conflicts,omitempty"`
}

type worktreeResetResponse struct {
	SessionID string `json:"session_id"`
	Reset     bool   `json:"reset"`
	Message   string `json:"message"`
}

type worktreeDeleteResponse struct {
	SessionID string `json:"session_id"`
	Deleted   bool   `json:"deleted"`
	Message   string `json:"message"`
}
