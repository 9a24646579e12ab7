// Package agentcmd builds the argv/env/stdin triple used to spawn a coding
// agent's CLI for one phase of a task, and exposes the per-provider
// normalized event parser that turns that CLI's raw stdout into a common
// stream of text/thinking/tool_call/tool_result/result events. Building the
// command is a pure function of its inputs plus the deterministic,
// per-account credential directory — no network calls, no process spawning
// happens in this package.
package agentcmd

import (
	"fmt"

	"github.com/iondrive-co/chad/internal/agentcmd/providers/anthropic"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/gemini"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/kimi"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/mistral"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/mock"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/opencode"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/openai"
	"github.com/iondrive-co/chad/internal/agentcmd/providers/qwen"
)

// Phase is the stage of a task a single child-process run corresponds to.
type Phase string

const (
	PhaseExploration  Phase = "exploration"
	PhaseCombined     Phase = "combined"
	PhaseContinuation Phase = "continuation"
	PhaseRevision     Phase = "revision"
	PhaseVerification Phase = "verification"
)

// Request is everything AgentCommand needs to build one child invocation.
type Request struct {
	ProviderKind    string
	AccountName     string
	ProjectPath     string
	Phase           Phase
	TaskDescription string
	PriorOutput     string
	Screenshots     []string
	Model           string
	Reasoning       string

	// NativeSessionID, when non-empty, asks the provider to resume a prior
	// native session/thread instead of starting a fresh one.
	NativeSessionID string
}

// Command is the argv/env/stdin triple to hand to ptystream.Manager.Start.
type Command struct {
	Argv         []string
	Env          []string
	InitialStdin []byte
}

// Build resolves provider binary + credential directory, composes the
// phase's prompt, and dispatches to the provider-specific argv/env builder.
func Build(req Request) (Command, error) {
	if req.ProviderKind == "" {
		return Command{}, fmt.Errorf("agentcmd: provider kind is required")
	}
	prompt := composePrompt(req.Phase, req.TaskDescription, req.PriorOutput, req.Screenshots)

	switch req.ProviderKind {
	case "anthropic":
		argv, env, stdin, err := anthropic.Build(req.AccountName, req.ProjectPath, string(req.Phase), prompt, req.Model)
		return Command{Argv: argv, Env: env, InitialStdin: stdin}, err
	case "openai":
		argv, env, stdin, err := openai.Build(req.AccountName, req.ProjectPath, prompt, req.Model, req.Reasoning, req.NativeSessionID)
		return Command{Argv: argv, Env: env, InitialStdin: stdin}, err
	case "gemini":
		argv, env, err := gemini.Build(prompt, req.Model, req.NativeSessionID)
		return Command{Argv: argv, Env: env}, err
	case "qwen":
		argv, env, err := qwen.Build(prompt, req.Model, req.NativeSessionID)
		return Command{Argv: argv, Env: env}, err
	case "mistral":
		argv, env, err := mistral.Build(prompt, req.NativeSessionID != "")
		return Command{Argv: argv, Env: env}, err
	case "opencode":
		argv, env, err := opencode.Build(req.AccountName, prompt, req.Model, req.NativeSessionID)
		return Command{Argv: argv, Env: env}, err
	case "kimi":
		argv, env, err := kimi.Build(req.AccountName, prompt, req.Model, req.NativeSessionID)
		return Command{Argv: argv, Env: env}, err
	case "mock":
		argv, env, stdin, err := mock.Build(req.AccountName, string(req.Phase), prompt)
		return Command{Argv: argv, Env: env, InitialStdin: stdin}, err
	default:
		return Command{}, fmt.Errorf("agentcmd: unknown provider kind %q", req.ProviderKind)
	}
}

// ResumeSupported reports whether a provider kind can continue a prior
// native session by id rather than always starting fresh.
func ResumeSupported(providerKind string) bool {
	switch providerKind {
	case "openai", "gemini", "qwen", "opencode", "kimi", "mistral":
		return true
	default:
		return false
	}
}

// SharedCredentials reports whether a provider kind's credential directory
// is shared across accounts rather than isolated per account.
func SharedCredentials(providerKind string) bool {
	switch providerKind {
	case "gemini", "qwen", "mistral":
		return true
	default:
		return false
	}
}

