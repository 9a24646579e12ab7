// Package config reads the external accounts/roles/action-rule store the
// engine is configured from. The store itself is maintained by a
// collaborator outside the core (a CLI prompt flow, a settings UI); this
// package only parses and validates what it finds, the way the teacher's
// settings package reads .entire/settings.json: a typed struct, strict
// decoding, defaults applied after parse.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iondrive-co/chad/internal/jsonutil"
	"github.com/iondrive-co/chad/internal/sessionloop"
)

// FileName is the config file's name under the state directory.
const FileName = "accounts.json"

// EnvConfigFile overrides the default config file path when set.
const EnvConfigFile = "CHAD_CONFIG_FILE"

// Role names the purpose an account is assigned to.
type Role string

const (
	RoleCoding       Role = "coding"
	RoleVerification Role = "verification"
)

// knownProviderKinds mirrors agentcmd's closed provider set. Duplicated
// here (rather than imported) to keep config decodable without pulling in
// agentcmd's provider builders, which need no part of a config document.
var knownProviderKinds = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"gemini":    true,
	"qwen":      true,
	"mistral":   true,
	"opencode":  true,
	"kimi":      true,
	"mock":      true,
}

// Account is one configured, named credential profile.
type Account struct {
	Name         string `json:"name"`
	ProviderKind string `json:"provider_kind"`
	Model        string `json:"model,omitempty"`
	Reasoning    string `json:"reasoning,omitempty"`
	Role         Role   `json:"role,omitempty"`
}

// ActionRule is the on-disk shape of a sessionloop.ThresholdRule.
type ActionRule struct {
	Event         string  `json:"event"`
	Threshold     float64 `json:"threshold"`
	Action        string  `json:"action"`
	TargetAccount string  `json:"target_account,omitempty"`
}

// Document is the full on-disk config document.
type Document struct {
	Accounts       []Account    `json:"accounts"`
	Rules          []ActionRule `json:"rules,omitempty"`
	Telemetry      *bool        `json:"telemetry,omitempty"`
	DefaultProject string       `json:"default_project,omitempty"`
}

// Store wraps a validated Document with name-keyed lookups.
type Store struct {
	doc      Document
	byName   map[string]Account
	filePath string
}

// Path resolves the config file location, honoring EnvConfigFile.
func Path() (string, error) {
	if env := os.Getenv(EnvConfigFile); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".chad", FileName), nil
}

// Load reads, strictly decodes, and validates the config document at path.
// A missing file is not an error: it yields an empty Store so a fresh
// install can still run `chad doctor` / `chad accounts add` before any
// account exists.
func Load(path string) (*Store, error) {
	f, err := os.Open(path) //nolint:gosec // path is caller-resolved, not request-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return &Store{doc: Document{}, byName: map[string]Account{}, filePath: path}, nil
		}
		return nil, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	var doc Document
	if err := jsonutil.DecodeStrict(f, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	store := &Store{doc: doc, byName: make(map[string]Account, len(doc.Accounts)), filePath: path}
	for _, a := range doc.Accounts {
		store.byName[a.Name] = a
	}
	if err := store.validate(); err != nil {
		return nil, err
	}
	return store, nil
}

// Save writes the store's document back to its file path, creating parent
// directories as needed, preserving a trailing newline.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("config: creating config directory: %w", err)
	}
	b, err := jsonutil.MarshalIndentWithNewline(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	if err := os.WriteFile(s.filePath, b, 0o600); err != nil {
		return fmt.Errorf("config: writing %s: %w", s.filePath, err)
	}
	return nil
}

func (s *Store) validate() error {
	seen := make(map[string]bool, len(s.doc.Accounts))
	for _, a := range s.doc.Accounts {
		if a.Name == "" {
			return fmt.Errorf("config: account with empty name")
		}
		if seen[a.Name] {
			return fmt.Errorf("config: duplicate account name %q", a.Name)
		}
		seen[a.Name] = true
		if !knownProviderKinds[a.ProviderKind] {
			return fmt.Errorf("config: account %q: unknown provider kind %q", a.Name, a.ProviderKind)
		}
		if a.Role != "" && a.Role != RoleCoding && a.Role != RoleVerification {
			return fmt.Errorf("config: account %q: unknown role %q", a.Name, a.Role)
		}
	}
	for i, r := range s.doc.Rules {
		if r.Threshold < 0 || r.Threshold > 100 {
			return fmt.Errorf("config: rule %d: threshold %.1f out of [0,100]", i, r.Threshold)
		}
		switch sessionloop.ThresholdEvent(r.Event) {
		case sessionloop.EventSessionUsage, sessionloop.EventWeeklyUsage, sessionloop.EventContextUsage:
		default:
			return fmt.Errorf("config: rule %d: unknown event %q", i, r.Event)
		}
		switch sessionloop.ThresholdAction(r.Action) {
		case sessionloop.ActionNotify, sessionloop.ActionSwitchProvider, sessionloop.ActionAwaitReset:
		default:
			return fmt.Errorf("config: rule %d: unknown action %q", i, r.Action)
		}
		if (r.Action == string(sessionloop.ActionSwitchProvider)) && r.TargetAccount == "" {
			return fmt.Errorf("config: rule %d: switch_provider action requires target_account", i)
		}
		if r.TargetAccount != "" && !seen[r.TargetAccount] {
			return fmt.Errorf("config: rule %d: target_account %q is not a configured account", i, r.TargetAccount)
		}
	}
	return nil
}

// Account looks up a configured account by name.
func (s *Store) Account(name string) (Account, bool) {
	a, ok := s.byName[name]
	return a, ok
}

// AccountsByRole returns every account assigned the given role, in
// document order.
func (s *Store) AccountsByRole(role Role) []Account {
	var out []Account
	for _, a := range s.doc.Accounts {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}

// Accounts returns every configured account, in document order.
func (s *Store) Accounts() []Account {
	return append([]Account(nil), s.doc.Accounts...)
}

// Rules returns the configured threshold rules converted to
// sessionloop.ThresholdRule, ready to hand to sessionloop.Config.
func (s *Store) Rules() []sessionloop.ThresholdRule {
	out := make([]sessionloop.ThresholdRule, len(s.doc.Rules))
	for i, r := range s.doc.Rules {
		out[i] = sessionloop.ThresholdRule{
			Event:         sessionloop.ThresholdEvent(r.Event),
			Threshold:     r.Threshold,
			Action:        sessionloop.ThresholdAction(r.Action),
			TargetAccount: r.TargetAccount,
		}
	}
	return out
}

// TelemetryEnabled reports the document's telemetry opt-in, nil when the
// operator has never been asked.
func (s *Store) TelemetryEnabled() *bool {
	return s.doc.Telemetry
}

// AddAccount appends an account to the in-memory document (caller must
// call Save to persist). Returns an error if the name is already taken or
// the provider kind/role is unrecognized.
func (s *Store) AddAccount(a Account) error {
	if _, exists := s.byName[a.Name]; exists {
		return fmt.Errorf("config: account %q already exists", a.Name)
	}
	if !knownProviderKinds[a.ProviderKind] {
		return fmt.Errorf("config: unknown provider kind %q", a.ProviderKind)
	}
	if a.Role != "" && a.Role != RoleCoding && a.Role != RoleVerification {
		return fmt.Errorf("config: unknown role %q", a.Role)
	}
	s.doc.Accounts = append(s.doc.Accounts, a)
	s.byName[a.Name] = a
	return nil
}
