package cli

import (
	"os"

	"github.com/charmbracelet/huh"
)

// NewAccessibleForm builds a huh form that falls back to plain text prompts
// when ACCESSIBLE is set, for terminals and screen readers that can't drive
// the TUI renderer.
func NewAccessibleForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...)
	if os.Getenv("ACCESSIBLE") != "" {
		form = form.WithAccessible(true)
	}
	return form
}
