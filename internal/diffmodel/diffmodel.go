// Package diffmodel provides the parsed-diff data model shared by
// GitWorktree's diff operations: a unified-diff parser plus a
// diffmatchpatch-backed line differ used when two in-memory file contents
// need comparing directly (conflict-hunk reconstruction, pre-commit
// previews) rather than going through a git subprocess.
package diffmodel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineKind tags a DiffLine's role within a hunk.
type LineKind string

const (
	LineAdded   LineKind = "added"
	LineRemoved LineKind = "removed"
	LineContext LineKind = "context"
)

// DiffLine is one line of a hunk, tagged with its role and both old/new
// line numbers (zero when not applicable to that side).
type DiffLine struct {
	Kind    LineKind `json:"kind"`
	Text    string   `json:"text"`
	OldLine int      `json:"old_line,omitempty"`
	NewLine int      `json:"new_line,omitempty"`
}

// Hunk is one contiguous region of changes within a file.
type Hunk struct {
	OldStart int        `json:"old_start"`
	OldCount int        `json:"old_count"`
	NewStart int        `json:"new_start"`
	NewCount int        `json:"new_count"`
	Lines    []DiffLine `json:"lines"`
}

// FileDiff is the parsed diff for a single file.
type FileDiff struct {
	OldPath    string `json:"old_path"`
	NewPath    string `json:"new_path"`
	IsNew      bool   `json:"is_new"`
	IsDeleted  bool   `json:"is_deleted"`
	IsBinary   bool   `json:"is_binary"`
	Hunks      []Hunk `json:"hunks"`
}

var (
	diffGitHeaderRe = regexp.MustCompile(`^diff --git a/(.*) b/(.*)$`)
	hunkHeaderRe    = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
)

// ParseUnifiedDiff parses the text produced by `git diff` (or
// `git diff --no-index`) into a list of FileDiff. Binary files are
// recognized by git's "Binary files a/... and b/... differ" line and
// carry no hunks.
func ParseUnifiedDiff(raw string) ([]FileDiff, error) {
	lines := strings.Split(raw, "\n")
	var files []FileDiff
	var cur *FileDiff
	var curHunk *Hunk
	oldLine, newLine := 0, 0

	flushHunk := func() {
		if cur != nil && curHunk != nil {
			cur.Hunks = append(cur.Hunks, *curHunk)
			curHunk = nil
		}
	}
	flushFile := func() {
		flushHunk()
		if cur != nil {
			files = append(files, *cur)
			cur = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if m := diffGitHeaderRe.FindStringSubmatch(line); m != nil {
			flushFile()
			cur = &FileDiff{OldPath: m[1], NewPath: m[2]}
			continue
		}
		if cur == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "new file mode"):
			cur.IsNew = true
		case strings.HasPrefix(line, "deleted file mode"):
			cur.IsDeleted = true
		case strings.HasPrefix(line, "Binary files") && strings.HasSuffix(line, "differ"):
			cur.IsBinary = true
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			// paths already captured from the diff --git header
		case strings.HasPrefix(line, "@@"):
			m := hunkHeaderRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			flushHunk()
			oldStart, _ := strconv.Atoi(m[1])
			oldCount := 1
			if m[2] != "" {
				oldCount, _ = strconv.Atoi(m[2])
			}
			newStart, _ := strconv.Atoi(m[3])
			newCount := 1
			if m[4] != "" {
				newCount, _ = strconv.Atoi(m[4])
			}
			curHunk = &Hunk{OldStart: oldStart, OldCount: oldCount, NewStart: newStart, NewCount: newCount}
			oldLine, newLine = oldStart, newStart
		default:
			if curHunk == nil {
				continue
			}
			if line == "" && i == len(lines)-1 {
				continue
			}
			switch {
			case strings.HasPrefix(line, "+"):
				curHunk.Lines = append(curHunk.Lines, DiffLine{Kind: LineAdded, Text: line[1:], NewLine: newLine})
				newLine++
			case strings.HasPrefix(line, "-"):
				curHunk.Lines = append(curHunk.Lines, DiffLine{Kind: LineRemoved, Text: line[1:], OldLine: oldLine})
				oldLine++
			case strings.HasPrefix(line, " "):
				curHunk.Lines = append(curHunk.Lines, DiffLine{Kind: LineContext, Text: line[1:], OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case strings.HasPrefix(line, `\ No newline at end of file`):
				// marker only, no line content
			}
		}
	}
	flushFile()
	return files, nil
}

// LineDiff computes an added/removed/context line sequence between two
// in-memory file contents, independent of any git subprocess. Used for
// single-conflict-hunk previews and mock-provider test fixtures.
func LineDiff(before, after string) []DiffLine {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var result []DiffLine
	oldLine, newLine := 1, 1
	for _, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		segments := strings.Split(text, "\n")
		for _, seg := range segments {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				result = append(result, DiffLine{Kind: LineContext, Text: seg, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffInsert:
				result = append(result, DiffLine{Kind: LineAdded, Text: seg, NewLine: newLine})
				newLine++
			case diffmatchpatch.DiffDelete:
				result = append(result, DiffLine{Kind: LineRemoved, Text: seg, OldLine: oldLine})
				oldLine++
			}
		}
	}
	return result
}

// Validate checks that hunk line-number bookkeeping is internally
// consistent; used by tests exercising the round-trip property.
func (h Hunk) Validate() error {
	if h.OldStart < 0 || h.NewStart < 0 {
		return fmt.Errorf("negative hunk start: old=%d new=%d", h.OldStart, h.NewStart)
	}
	return nil
}
