package agentcmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuild_MockProviderProducesRunnableArgv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cmd, err := Build(Request{
		ProviderKind:    "mock",
		AccountName:     "test-account",
		ProjectPath:     "/tmp/project",
		Phase:           PhaseCombined,
		TaskDescription: "add a function",
	})
	require.NoError(t, err)
	require.Equal(t, "/bin/sh", cmd.Argv[0])
	require.Contains(t, string(cmd.InitialStdin), "add a function")
}

func TestBuild_VerificationPromptReachesMockScript(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cmd, err := Build(Request{
		ProviderKind:    "mock",
		AccountName:     "verifier",
		ProjectPath:     "/tmp/project",
		Phase:           PhaseVerification,
		TaskDescription: "check the change",
	})
	require.NoError(t, err)
	require.Contains(t, string(cmd.InitialStdin), "DO NOT modify or create any files")
}

func TestBuild_UnknownProviderErrors(t *testing.T) {
	_, err := Build(Request{ProviderKind: "not-a-real-provider"})
	require.Error(t, err)
}

func TestBuild_AnthropicIsolatesCredentialDirPerAccount(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CHAD_BINARY_CACHE", binStub(t, home, "claude"))

	cmdA, err := Build(Request{ProviderKind: "anthropic", AccountName: "alice", Phase: PhaseCombined, TaskDescription: "x"})
	require.NoError(t, err)
	cmdB, err := Build(Request{ProviderKind: "anthropic", AccountName: "bob", Phase: PhaseCombined, TaskDescription: "x"})
	require.NoError(t, err)

	require.NotEqual(t, envVal(cmdA.Env, "CLAUDE_CONFIG_DIR"), envVal(cmdB.Env, "CLAUDE_CONFIG_DIR"))
}

func TestResumeSupported(t *testing.T) {
	require.True(t, ResumeSupported("openai"))
	require.False(t, ResumeSupported("anthropic"))
}

func TestSharedCredentials(t *testing.T) {
	require.True(t, SharedCredentials("gemini"))
	require.False(t, SharedCredentials("kimi"))
}

func binStub(t *testing.T, dir, name string) string {
	t.Helper()
	path := dir + "/" + name
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return dir
}

func envVal(env []string, key string) string {
	prefix := key + "="
	for _, kv := range env {
		if len(kv) > len(prefix) && kv[:len(prefix)] == prefix {
			return kv[len(prefix):]
		}
	}
	return ""
}
