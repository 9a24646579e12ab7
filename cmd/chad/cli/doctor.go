package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iondrive-co/chad/internal/config"
	"github.com/iondrive-co/chad/internal/paths"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check account configuration and provider binaries",
		Long: `Verify the accounts config loads, that every account's provider CLI
can be located on PATH or in CHAD_BINARY_CACHE, and that coding/
verification roles are actually covered.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd)
		},
	}
}

func runDoctor(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	configPath, err := config.Path()
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}
	fmt.Fprintf(out, "config file: %s\n", configPath)

	store, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(out, "  FAIL: %v\n", err)
		return nil
	}
	fmt.Fprintln(out, "  OK: config loaded and validated")

	accounts := store.Accounts()
	if len(accounts) == 0 {
		fmt.Fprintln(out, "no accounts configured — run 'chad accounts add'")
		return nil
	}

	problems := 0
	for _, a := range accounts {
		if a.ProviderKind == "mock" {
			fmt.Fprintf(out, "  %-20s provider=mock (no binary check)\n", a.Name)
			continue
		}
		path, err := paths.BinaryPath(a.ProviderKind)
		if err != nil {
			fmt.Fprintf(out, "  %-20s FAIL: %v\n", a.Name, err)
			problems++
			continue
		}
		fmt.Fprintf(out, "  %-20s OK: %s\n", a.Name, path)
	}

	if len(store.AccountsByRole(config.RoleCoding)) == 0 {
		fmt.Fprintln(out, "  WARN: no account has the coding role assigned")
		problems++
	}

	if problems == 0 {
		fmt.Fprintln(out, "all checks passed")
	} else {
		fmt.Fprintf(out, "%d problem(s) found\n", problems)
	}
	return nil
}
