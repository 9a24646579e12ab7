package cli

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/iondrive-co/chad/internal/config"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage configured provider accounts",
	}
	cmd.AddCommand(newAccountsAddCmd())
	cmd.AddCommand(newAccountsListCmd())
	return cmd
}

var providerOptions = []huh.Option[string]{
	huh.NewOption("Anthropic (claude)", "anthropic"),
	huh.NewOption("OpenAI (codex)", "openai"),
	huh.NewOption("Gemini", "gemini"),
	huh.NewOption("Qwen", "qwen"),
	huh.NewOption("Mistral (vibe)", "mistral"),
	huh.NewOption("OpenCode", "opencode"),
	huh.NewOption("Kimi", "kimi"),
}

func newAccountsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add",
		Short: "Interactively add a provider account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAccountsAdd(cmd)
		},
	}
}

func runAccountsAdd(cmd *cobra.Command) error {
	configPath, err := config.Path()
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}
	store, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}

	var (
		name         string
		providerKind string
		model        string
		role         string
	)

	form := NewAccessibleForm(
		huh.NewGroup(
			huh.NewInput().Title("Account name").Value(&name).
				Validate(func(v string) error {
					if v == "" {
						return errors.New("name is required")
					}
					if _, exists := store.Account(v); exists {
						return fmt.Errorf("account %q already exists", v)
					}
					return nil
				}),
			huh.NewSelect[string]().Title("Provider").Options(providerOptions...).Value(&providerKind),
			huh.NewInput().Title("Model (optional)").Value(&model),
			huh.NewSelect[string]().Title("Role").
				Options(
					huh.NewOption("Coding", string(config.RoleCoding)),
					huh.NewOption("Verification", string(config.RoleVerification)),
					huh.NewOption("Unassigned (usable for either via request fields)", ""),
				).
				Value(&role),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return NewSilentError(fmt.Errorf("account prompt failed: %w", err))
	}

	account := config.Account{Name: name, ProviderKind: providerKind, Model: model, Role: config.Role(role)}
	if err := store.AddAccount(account); err != nil {
		return fmt.Errorf("adding account: %w", err)
	}
	if err := store.Save(); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "added account %q (%s)\n", name, providerKind)
	return nil
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured provider accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, err := config.Path()
			if err != nil {
				return fmt.Errorf("resolving config path: %w", err)
			}
			store, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading accounts: %w", err)
			}

			accounts := store.Accounts()
			if len(accounts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No accounts configured. Run 'chad accounts add'.")
				return nil
			}
			for _, a := range accounts {
				role := string(a.Role)
				if role == "" {
					role = "unassigned"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-12s role=%-13s model=%s\n", a.Name, a.ProviderKind, role, a.Model)
			}
			return nil
		},
	}
}
