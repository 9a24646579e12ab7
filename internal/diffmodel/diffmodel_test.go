package diffmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDiff = `diff --git a/foo.txt b/foo.txt
index e69de29..0cfbf08 100644
--- a/foo.txt
+++ b/foo.txt
@@ -1,3 +1,4 @@
 one
-two
+TWO
+three
 four
`

func TestParseUnifiedDiff_SingleFile(t *testing.T) {
	files, err := ParseUnifiedDiff(sampleDiff)
	require.NoError(t, err)
	require.Len(t, files, 1)
	f := files[0]
	require.Equal(t, "foo.txt", f.NewPath)
	require.False(t, f.IsBinary)
	require.Len(t, f.Hunks, 1)
	h := f.Hunks[0]
	require.Equal(t, 1, h.OldStart)
	require.Equal(t, 3, h.OldCount)

	var added, removed, context int
	for _, l := range h.Lines {
		switch l.Kind {
		case LineAdded:
			added++
		case LineRemoved:
			removed++
		case LineContext:
			context++
		}
	}
	require.Equal(t, 2, added)
	require.Equal(t, 1, removed)
	require.Equal(t, 2, context)
}

func TestParseUnifiedDiff_NewFile(t *testing.T) {
	diff := `diff --git a/bar.txt b/bar.txt
new file mode 100644
index 0000000..e69de29
--- /dev/null
+++ b/bar.txt
@@ -0,0 +1,2 @@
+hello
+world
`
	files, err := ParseUnifiedDiff(diff)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.True(t, files[0].IsNew)
}

func TestParseUnifiedDiff_Binary(t *testing.T) {
	diff := `diff --git a/img.png b/img.png
index abc..def 100644
Binary files a/img.png and b/img.png differ
`
	files, err := ParseUnifiedDiff(diff)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.True(t, files[0].IsBinary)
	require.Empty(t, files[0].Hunks)
}

func TestLineDiff_DetectsAddedAndRemoved(t *testing.T) {
	before := "a\nb\nc\n"
	after := "a\nB\nc\n"
	lines := LineDiff(before, after)

	var added, removed int
	for _, l := range lines {
		switch l.Kind {
		case LineAdded:
			added++
		case LineRemoved:
			removed++
		}
	}
	require.Equal(t, 1, added)
	require.Equal(t, 1, removed)
}
