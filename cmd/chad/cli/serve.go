package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iondrive-co/chad/internal/config"
	"github.com/iondrive-co/chad/internal/executor"
	"github.com/iondrive-co/chad/internal/httpapi"
	"github.com/iondrive-co/chad/internal/logging"
	"github.com/iondrive-co/chad/internal/paths"
	"github.com/iondrive-co/chad/internal/sessionmgr"
	"github.com/iondrive-co/chad/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/SSE/WS session API",
		Long: `Start the thin REST/SSE/WebSocket surface in front of the session
manager and task executor, serving every session this process creates
until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}

func runServe(cmd *cobra.Command, addr string) error {
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
	server := httpapi.New(sessions, exec, accounts)

	fmt.Fprintf(cmd.OutOrStdout(), "chad serving on %s\n", addr)
	logging.Info(cmd.Context(), "server starting", "addr", addr)

	if err := server.ListenAndServe(cmd.Context(), addr); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
