// Package quota scans recently-produced agent output for signs that a
// provider account has hit a usage limit, so the session loop can hand the
// task off to another account instead of grinding against a 429.
//
// Grounded on original_source's QUOTA_EXHAUSTION_PATTERNS /
// is_quota_exhaustion_error / get_quota_error_reason
// (util/handoff.py), with the session/weekly distinction carried over from
// session_event_loop.py's _MILESTONE_TITLES ("Session Limit"/"Weekly
// Limit").
package quota

import (
	"regexp"
	"strings"
)

// Result is the closed set a tail scan can classify as. The zero value
// means no quota signal was found.
type Result string

const (
	None         Result = ""
	SessionLimit Result = "session_limit"
	WeeklyLimit  Result = "weekly_limit"
	RateLimit    Result = "rate_limit"
	Billing      Result = "billing"
	Resource     Result = "resource"
)

// tailBytes bounds the window scanned: the agent may be editing source
// files that literally contain these words, so only the tail of output —
// where a provider's own error text actually appears — is examined.
const tailBytes = 500

type pattern struct {
	re     *regexp.Regexp
	result Result
}

// Ordered most-specific first: a line matching both a weekly-scoped phrase
// and a generic "quota exceeded" phrase should classify as weekly, not
// generic billing.
var patterns = []pattern{
	{regexp.MustCompile(`(?i)\bweekly\b.{0,40}\b(limit|quota|usage)\b`), WeeklyLimit},
	{regexp.MustCompile(`(?i)\b(limit|quota|usage)\b.{0,40}\bweekly\b`), WeeklyLimit},
	{regexp.MustCompile(`(?i)\b(5.hour|session)\b.{0,40}\b(limit|quota|usage)\b`), SessionLimit},
	{regexp.MustCompile(`(?i)\b(limit|quota|usage)\b.{0,40}\bsession\b`), SessionLimit},
	{regexp.MustCompile(`(?i)you['’]ve hit your limit`), SessionLimit},

	{regexp.MustCompile(`(?i)\brate[_ ]limit[_ ]exceeded\b`), RateLimit},
	{regexp.MustCompile(`(?i)\brate\s+limit\s+exceeded\b`), RateLimit},
	{regexp.MustCompile(`(?i)\btoo\s+many\s+requests\b`), RateLimit},
	{regexp.MustCompile(`(?i)\b429\s+too\s+many\s+requests\b`), RateLimit},
	{regexp.MustCompile(`(?i)\berror\s+429\b`), RateLimit},
	{regexp.MustCompile(`(?i)api\s+is\s+overloaded`), RateLimit},

	{regexp.MustCompile(`(?i)\bresource[_ ]exhausted\b`), Resource},

	{regexp.MustCompile(`(?i)\binsufficient[_ ]?quota\b`), Billing},
	{regexp.MustCompile(`(?i)\bcredit_balance\b.*\binsufficient\b`), Billing},
	{regexp.MustCompile(`(?i)\binsufficient\s+credits?\b`), Billing},
	{regexp.MustCompile(`(?i)\binsufficient\s+funds\b`), Billing},
	{regexp.MustCompile(`(?i)\bout\s+of\s+credits?\b`), Billing},
	{regexp.MustCompile(`(?i)\bcredits?\s+exhausted\b`), Billing},
	{regexp.MustCompile(`(?i)\bbilling[_ ]hard[_ ]limit[_ ]reached\b`), Billing},
	{regexp.MustCompile(`(?i)\bbilling\s+limit\s+exceeded\b`), Billing},
	{regexp.MustCompile(`(?i)\bbilling\s+limit\s+reached\b`), Billing},
	{regexp.MustCompile(`(?i)\bpayment\s+required\b`), Billing},
	{regexp.MustCompile(`(?i)\baccount\s+(has\s+been\s+)?(suspended|disabled)\b`), Billing},
	{regexp.MustCompile(`(?i)you\s+exceeded\s+your\s+current\s+quota`), Billing},
	{regexp.MustCompile(`(?i)you\s+have\s+exceeded\s+your\s+(rate|usage)\s+limit`), Billing},
	{regexp.MustCompile(`(?i)quota\s+exceeded\s+for\s+(project|quota)`), Billing},
	{regexp.MustCompile(`(?i)\bquota\s+exceeded\b`), Billing},
	{regexp.MustCompile(`(?i)\bquota\s+has\s+been\s+exceeded\b`), Billing},
	{regexp.MustCompile(`(?i)\busage\s+limit\s+exceeded\b`), Billing},
}

// jsErrorObjectShapes matches the printed form of a JS error/Symbol object
// (e.g. `[Symbol(gaxios-gaxios-request-extensions)]`, `[object Object]`,
// `TypeError: ...`), which can incidentally contain quota-adjacent words
// without being a real provider error.
var jsErrorObjectShapes = []*regexp.Regexp{
	regexp.MustCompile(`\[Symbol\([^)]*\)\]`),
	regexp.MustCompile(`\[object Object\]`),
	regexp.MustCompile(`(?m)^\s*(Type|Reference|Range|Syntax)Error:`),
}

// Detect scans the tail of output and classifies any quota-related signal
// found there. Lines that are themselves a JS error/Symbol object dump are
// excluded before matching, so a stray `[Symbol(...)]` elsewhere in the
// window can't suppress a genuine quota line sitting next to it.
func Detect(output string) Result {
	tail := output
	if len(tail) > tailBytes {
		tail = tail[len(tail)-tailBytes:]
	}

	var filtered strings.Builder
	for _, line := range strings.Split(tail, "\n") {
		if isJSErrorObjectDump(line) {
			continue
		}
		filtered.WriteString(line)
		filtered.WriteByte('\n')
	}
	scanned := filtered.String()

	for _, p := range patterns {
		if p.re.MatchString(scanned) {
			return p.result
		}
	}
	return None
}

func isJSErrorObjectDump(s string) bool {
	for _, re := range jsErrorObjectShapes {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// quotaKeywords ranks lines for Summarize: a line mentioning one of these
// is preferred over any other line in the tail.
var quotaKeywords = []string{"quota", "credit", "exceeded", "insufficient", "limit"}

// Summarize extracts the most informative single line from the tail for
// display alongside a detected Result: the last line containing a quota
// keyword, skipping any line that is itself a JS error/Symbol object dump;
// falling back to the last non-empty, non-dump line if none qualifies.
func Summarize(output string) string {
	tail := output
	if len(tail) > tailBytes {
		tail = tail[len(tail)-tailBytes:]
	}

	lines := strings.Split(tail, "\n")
	var bestKeyword, bestAny string

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || isJSErrorObjectDump(trimmed) {
			continue
		}
		bestAny = trimmed
		lower := strings.ToLower(trimmed)
		for _, kw := range quotaKeywords {
			if strings.Contains(lower, kw) {
				bestKeyword = trimmed
				break
			}
		}
	}

	if bestKeyword != "" {
		return bestKeyword
	}
	return bestAny
}
