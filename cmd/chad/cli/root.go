package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information (set at build time via -ldflags).
var (
	Version = "dev"
	Commit  = "unknown"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chad",
		Short: "Multi-account coding-agent session orchestrator",
		Long: `chad drives a coding agent through a task on an isolated git worktree,
watches it for quota exhaustion, and hands the task off to another
configured account when one runs out, without losing task state.`,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newAccountsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chad %s (%s)\n", Version, Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
