package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsEmptyStore(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "accounts.json"))
	require.NoError(t, err)
	require.Empty(t, store.Accounts())
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"accounts":[],"bogus_field":true}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsDuplicateAccountNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	doc := `{"accounts":[
		{"name":"a","provider_kind":"anthropic"},
		{"name":"a","provider_kind":"openai"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "duplicate")
}

func TestLoad_RejectsUnknownProviderKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"accounts":[{"name":"a","provider_kind":"carrier-pigeon"}]}`), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "unknown provider kind")
}

func TestLoad_RejectsSwitchProviderRuleWithoutTarget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	doc := `{
		"accounts":[{"name":"a","provider_kind":"anthropic"}],
		"rules":[{"event":"session_usage","threshold":90,"action":"switch_provider"}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "requires target_account")
}

func TestLoad_ValidDocumentRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	doc := `{
		"accounts":[
			{"name":"primary","provider_kind":"anthropic","role":"coding"},
			{"name":"backup","provider_kind":"openai","role":"coding"},
			{"name":"checker","provider_kind":"anthropic","role":"verification"}
		],
		"rules":[
			{"event":"session_usage","threshold":80,"action":"notify"},
			{"event":"session_usage","threshold":90,"action":"switch_provider","target_account":"backup"}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	store, err := Load(path)
	require.NoError(t, err)

	coding := store.AccountsByRole(RoleCoding)
	require.Len(t, coding, 2)

	rules := store.Rules()
	require.Len(t, rules, 2)
	require.Equal(t, "backup", rules[1].TargetAccount)

	a, ok := store.Account("primary")
	require.True(t, ok)
	require.Equal(t, "anthropic", a.ProviderKind)
}

func TestAddAccount_RejectsDuplicateName(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "accounts.json"))
	require.NoError(t, err)

	require.NoError(t, store.AddAccount(Account{Name: "a", ProviderKind: "anthropic"}))
	require.Error(t, store.AddAccount(Account{Name: "a", ProviderKind: "openai"}))
}

func TestStore_SaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "accounts.json")
	store, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, store.AddAccount(Account{Name: "a", ProviderKind: "mock", Role: RoleCoding}))
	require.NoError(t, store.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	a, ok := reloaded.Account("a")
	require.True(t, ok)
	require.Equal(t, RoleCoding, a.Role)
}
