package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/iondrive-co/chad/internal/config"
	"github.com/iondrive-co/chad/internal/eventlog"
	"github.com/iondrive-co/chad/internal/executor"
	"github.com/iondrive-co/chad/internal/paths"
	"github.com/iondrive-co/chad/internal/sessionmgr"
	"github.com/iondrive-co/chad/internal/telemetry"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Run a task against the engine without a server",
	}
	cmd.AddCommand(newSessionRunCmd())
	return cmd
}

func newSessionRunCmd() *cobra.Command {
	var (
		projectPath     string
		taskDescription string
		codingAccount   string
		verifyAccount   string
		overridePrompt  string
		pollInterval    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Create a session, run one task to completion, and print its outcome",
		Long: `Create an in-memory session, start a task on it, and block until the
task reaches a terminal state — printing each milestone as it happens.
This drives the same SessionManager/TaskExecutor pair as 'chad serve'
but entirely within one process, with no HTTP surface: a quick way to
smoke-test an account configuration against a real project.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSessionRun(cmd, sessionRunOptions{
				projectPath:     projectPath,
				taskDescription: taskDescription,
				codingAccount:   codingAccount,
				verifyAccount:   verifyAccount,
				overridePrompt:  overridePrompt,
				pollInterval:    pollInterval,
			})
		},
	}

	cmd.Flags().StringVar(&projectPath, "project", "", "path to the project's git repository (required)")
	cmd.Flags().StringVar(&taskDescription, "task", "", "task description for the coding agent (required)")
	cmd.Flags().StringVar(&codingAccount, "coding-agent", "", "configured account name to use for coding (required)")
	cmd.Flags().StringVar(&verifyAccount, "verification-agent", "", "configured account name to use for verification")
	cmd.Flags().StringVar(&overridePrompt, "override-prompt", "", "replace the default coding prompt template entirely")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 500*time.Millisecond, "how often to poll for new milestones")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("coding-agent")

	return cmd
}

type sessionRunOptions struct {
	projectPath     string
	taskDescription string
	codingAccount   string
	verifyAccount   string
	overridePrompt  string
	pollInterval    time.Duration
}

func runSessionRun(cmd *cobra.Command, opts sessionRunOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	configPath, err := config.Path()
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}
	accounts, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}

	logDir, err := paths.LogDir()
	if err != nil {
		return fmt.Errorf("resolving log dir: %w", err)
	}

	tel := telemetry.NewClient(Version, accounts.TelemetryEnabled())
	defer tel.Close()

	sessions := sessionmgr.NewManager(logDir)
	exec := executor.New(accounts, tel)

	sess, err := sessions.Create("cli-run", opts.projectPath)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	fmt.Fprintf(out, "session %s created (project %s)\n", sess.ID, opts.projectPath)

	task, err := exec.StartTask(ctx, sess, executor.Request{
		TaskDescription:     opts.taskDescription,
		CodingAccount:       opts.codingAccount,
		VerificationAccount: opts.verifyAccount,
		OverridePrompt:      opts.overridePrompt,
		TerminalRows:        40,
		TerminalCols:        120,
		Rules:               accounts.Rules(),
	})
	if err != nil {
		return fmt.Errorf("starting task: %w", err)
	}
	fmt.Fprintf(out, "task %s started\n", task.ID)

	return watchTaskToCompletion(ctx, out, sess, task, opts.pollInterval)
}

func watchTaskToCompletion(ctx context.Context, out io.Writer, sess *sessionmgr.Session, task *executor.Task, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var sinceSeq uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			events, err := sess.Log.ReadEvents(sinceSeq, nil)
			if err != nil {
				return fmt.Errorf("reading session log: %w", err)
			}
			for _, e := range events {
				sinceSeq = e.Seq
				printEvent(out, e)
			}

			snap := task.Snapshot()
			if snap.Status != executor.StatusRunning {
				fmt.Fprintf(out, "task finished: status=%s reason=%q\n", snap.Status, snap.Reason)
				return nil
			}
		}
	}
}

func printEvent(out io.Writer, e eventlog.Event) {
	switch {
	case e.Milestone != nil:
		fmt.Fprintf(out, "[milestone] %s: %s\n", e.Milestone.Type, e.Milestone.Summary)
	case e.ProviderSwitched != nil:
		fmt.Fprintf(out, "[provider switched] %s -> %s (%s)\n", e.ProviderSwitched.FromAccount, e.ProviderSwitched.ToAccount, e.ProviderSwitched.Reason)
	case e.AssistantMessage != nil:
		fmt.Fprintf(out, "[assistant] (turn %s)\n", e.TurnID)
	case e.SessionEnded != nil:
		fmt.Fprintf(out, "[session ended] success=%v reason=%q\n", e.SessionEnded.Success, e.SessionEnded.Reason)
	}
}
