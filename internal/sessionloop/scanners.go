package sessionloop

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

const explorationMarker = "EXPLORATION_RESULT:"

// metadataLinePattern rejects terminal-chrome lines (workdir/model/etc.)
// that providers sometimes print adjacent to an exploration result; these
// never belong inside the result paragraph itself.
var metadataLinePattern = regexp.MustCompile(`(?i)^(workdir|model|provider|account|cwd)\s*:`)

// explorationState tracks how many exploration paragraphs have already
// been emitted, so repeated scans over a growing buffer never re-emit one.
type explorationState struct {
	emitted int
}

// scanExploration finds paragraphs beginning with the literal marker
// EXPLORATION_RESULT:, after ANSI-stripping buf. A paragraph ends at a
// blank line; the final, still-open paragraph (no trailing blank line yet)
// is only returned once finalize is true, so a marker split across two PTY
// reads is never emitted prematurely or twice.
func scanExploration(buf string, finalize bool, state *explorationState) []string {
	clean := ansi.Strip(buf)
	lines := strings.Split(clean, "\n")

	var paragraphs []string
	var current []string
	inParagraph := false

	flush := func() {
		if inParagraph && len(current) > 0 {
			paragraphs = append(paragraphs, strings.TrimSpace(strings.Join(current, "\n")))
		}
		current = nil
		inParagraph = false
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, explorationMarker):
			flush()
			inParagraph = true
			current = append(current, strings.TrimSpace(strings.TrimPrefix(trimmed, explorationMarker)))
		case trimmed == "":
			flush()
		case inParagraph && metadataLinePattern.MatchString(trimmed):
			flush()
		case inParagraph:
			current = append(current, trimmed)
		}
	}
	if finalize {
		flush()
	}

	if state.emitted >= len(paragraphs) {
		return nil
	}
	fresh := paragraphs[state.emitted:]
	state.emitted = len(paragraphs)
	return fresh
}

// codingSummary is the JSON object a coding phase prints to signal it is
// done: a change_summary plus optional structured detail.
type codingSummary struct {
	ChangeSummary string   `json:"change_summary"`
	FilesChanged  []string `json:"files_changed,omitempty"`
	Status        string   `json:"status,omitempty"`
}

type codingCompleteState struct {
	emitted bool
	summary codingSummary
}

var jsonFencePattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// scanCodingComplete looks for an embedded JSON object carrying
// change_summary, either fenced or raw, and decodes it exactly once.
func scanCodingComplete(buf string, state *codingCompleteState) (codingSummary, bool) {
	if state.emitted {
		return codingSummary{}, false
	}

	clean := ansi.Strip(buf)
	var raw string
	if m := jsonFencePattern.FindStringSubmatch(clean); m != nil {
		raw = m[1]
	} else {
		raw = findBalancedJSONWithKey(clean, "change_summary")
	}
	if raw == "" {
		return codingSummary{}, false
	}

	var cs codingSummary
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		return codingSummary{}, false
	}
	state.emitted = true
	state.summary = cs
	return cs, true
}

// findBalancedJSONWithKey locates the smallest brace-balanced object in s
// that contains "key", scanning backward from the key for its enclosing
// '{' and forward for the matching '}'. Returns "" if no balanced object
// is found.
func findBalancedJSONWithKey(s, key string) string {
	idx := strings.Index(s, `"`+key+`"`)
	if idx == -1 {
		return ""
	}

	depth := 0
	start := -1
	for i := idx; i >= 0; i-- {
		switch s[i] {
		case '}':
			depth++
		case '{':
			if depth == 0 {
				start = i
			} else {
				depth--
			}
		}
		if start != -1 {
			break
		}
	}
	if start == -1 {
		return ""
	}

	depth = 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// verificationVerdict mirrors VerificationVerdict's JSON shape for decoding
// out of a verifier's free-form output.
func parseVerdict(text string) (VerificationVerdict, bool) {
	clean := ansi.Strip(text)
	var raw string
	if m := jsonFencePattern.FindStringSubmatch(clean); m != nil {
		raw = m[1]
	} else {
		raw = findBalancedJSONWithKey(clean, "passed")
	}
	if raw == "" {
		return VerificationVerdict{}, false
	}
	var v VerificationVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return VerificationVerdict{}, false
	}
	return v, true
}

// implementationToolNames classifies a tool call as "doing the work" rather
// than exploring, for the exploration-loop stall detector.
func isImplementationTool(toolName string) bool {
	lower := strings.ToLower(toolName)
	return strings.Contains(lower, "write") || strings.Contains(lower, "edit") || strings.Contains(lower, "patch")
}
