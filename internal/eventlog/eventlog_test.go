package eventlog

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppend_SeqMonotonic(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "sess-1")
	require.NoError(t, err)
	defer log.Close()

	var prev uint64
	for i := 0; i < 5; i++ {
		e, err := log.Append(Event{Type: TypeUserMessage, UserMessage: &UserMessage{Text: "hi"}})
		require.NoError(t, err)
		require.Greater(t, e.Seq, prev)
		prev = e.Seq
	}
	require.Equal(t, uint64(5), prev)
}

func TestOpen_RecoversMaxSeqAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "sess-2")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := log.Append(Event{Type: TypeUserMessage, UserMessage: &UserMessage{Text: "x"}})
		require.NoError(t, err)
	}
	require.NoError(t, log.Close())

	reopened, err := Open(dir, "sess-2")
	require.NoError(t, err)
	defer reopened.Close()

	e, err := reopened.Append(Event{Type: TypeUserMessage, UserMessage: &UserMessage{Text: "y"}})
	require.NoError(t, err)
	require.Equal(t, uint64(4), e.Seq)
}

func TestOpen_TreatsCorruptTrailingLineAsZero(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "sess-3")
	require.NoError(t, err)
	require.NoError(t, log.Close())

	// append a corrupt trailing line directly to the file
	f, err := os.OpenFile(dir+"/sess-3.jsonl", os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(dir, "sess-3")
	require.NoError(t, err)
	defer reopened.Close()

	e, err := reopened.Append(Event{Type: TypeUserMessage, UserMessage: &UserMessage{Text: "z"}})
	require.NoError(t, err)
	require.Equal(t, uint64(1), e.Seq)
}

func TestStoreArtifact_BelowThresholdReturnsNil(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "sess-4")
	require.NoError(t, err)
	defer log.Close()

	ref, err := log.StoreArtifact([]byte("small"), "out")
	require.NoError(t, err)
	require.Nil(t, ref)
}

func TestStoreArtifact_AboveThresholdWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "sess-5")
	require.NoError(t, err)
	defer log.Close()

	content := []byte(strings.Repeat("a", ArtifactThreshold+1))
	ref, err := log.StoreArtifact(content, "out")
	require.NoError(t, err)
	require.NotNil(t, ref)
	require.False(t, ref.Truncated)
	require.Equal(t, int64(len(content)), ref.ByteLength)
}

func TestStoreArtifact_TruncatesAtCeiling(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "sess-6")
	require.NoError(t, err)
	defer log.Close()

	content := make([]byte, ArtifactCeiling+1024)
	ref, err := log.StoreArtifact(content, "huge")
	require.NoError(t, err)
	require.NotNil(t, ref)
	require.True(t, ref.Truncated)
	require.Less(t, ref.ByteLength, int64(len(content)))
}

func TestReadEvents_FiltersBySeqAndType(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir, "sess-7")
	require.NoError(t, err)
	defer log.Close()

	_, err = log.Append(Event{Type: TypeUserMessage, UserMessage: &UserMessage{Text: "a"}})
	require.NoError(t, err)
	_, err = log.Append(Event{Type: TypeMilestone, Milestone: &Milestone{Type: MilestoneExploration, Summary: "found"}})
	require.NoError(t, err)
	third, err := log.Append(Event{Type: TypeUserMessage, UserMessage: &UserMessage{Text: "b"}})
	require.NoError(t, err)

	events, err := log.ReadEvents(0, []Type{TypeUserMessage})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, third.Seq, events[1].Seq)

	sinceFirst, err := log.ReadEvents(1, nil)
	require.NoError(t, err)
	require.Len(t, sinceFirst, 2)
}
