package worktree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Conflict parser round-trip: the parsed hunks, with one side chosen for
// each, reconstruct a file with no markers left.
func TestParseConflictHunks_RoundTrip(t *testing.T) {
	content := "line1\n<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>> branch\nline2\n"
	hunks := parseConflictHunks(content)
	require.Len(t, hunks, 1)
	h := hunks[0]
	require.Equal(t, []string{"ours"}, h.OriginalLines)
	require.Equal(t, []string{"theirs"}, h.IncomingLines)
	require.Equal(t, []string{"line1"}, h.ContextBefore)
	require.Equal(t, []string{"line2"}, h.ContextAfter)

	rebuilt := []string{"line1"}
	rebuilt = append(rebuilt, h.OriginalLines...)
	rebuilt = append(rebuilt, "line2")
	reconstructed := strings.Join(rebuilt, "\n")
	require.NotContains(t, reconstructed, "<<<<<<<")
	require.NotContains(t, reconstructed, "=======")
	require.NotContains(t, reconstructed, ">>>>>>>")
	require.Contains(t, reconstructed, "ours")
}

func TestParseConflictHunks_MultipleHunks(t *testing.T) {
	content := "<<<<<<< HEAD\na1\n=======\nb1\n>>>>>>> branch\n" +
		"mid\n" +
		"<<<<<<< HEAD\na2\n=======\nb2\n>>>>>>> branch\n"
	hunks := parseConflictHunks(content)
	require.Len(t, hunks, 2)
	require.Equal(t, 0, hunks[0].HunkIndex)
	require.Equal(t, 1, hunks[1].HunkIndex)
	require.Equal(t, []string{"a1"}, hunks[0].OriginalLines)
	require.Equal(t, []string{"a2"}, hunks[1].OriginalLines)
}

func TestParseConflictHunks_NoMarkers(t *testing.T) {
	hunks := parseConflictHunks("plain\ncontent\n")
	require.Empty(t, hunks)
}
