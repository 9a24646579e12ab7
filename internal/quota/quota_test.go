package quota

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetect_RateLimit(t *testing.T) {
	require.Equal(t, RateLimit, Detect("Error: rate limit exceeded, please retry later"))
}

func TestDetect_WeeklyLimit(t *testing.T) {
	require.Equal(t, WeeklyLimit, Detect("You have reached your weekly usage limit for this account"))
}

func TestDetect_SessionLimit(t *testing.T) {
	require.Equal(t, SessionLimit, Detect("You've hit your 5-hour session limit, it resets at 3pm"))
}

func TestDetect_Billing(t *testing.T) {
	require.Equal(t, Billing, Detect("insufficient_quota: you exceeded your current quota, please check your plan"))
}

func TestDetect_Resource(t *testing.T) {
	require.Equal(t, Resource, Detect("RESOURCE_EXHAUSTED: quota exceeded for quota metric"))
}

func TestDetect_NoSignalReturnsNone(t *testing.T) {
	require.Equal(t, None, Detect("wrote 40 lines to main.go, running tests now"))
}

func TestDetect_TailOnlyIgnoresQuotaWordsBuriedEarlier(t *testing.T) {
	// A source file the agent is editing literally contains the phrase
	// "quota exceeded" far from the end of the buffer; only the tail
	// (last 500 bytes) is scanned, so it must not trigger.
	noise := strings.Repeat("x", 600)
	output := "// a comment that says quota exceeded just for fun\n" + noise + "\nstill compiling...\n"
	require.Equal(t, None, Detect(output))
}

func TestDetect_SuppressesJSErrorObjectDumps(t *testing.T) {
	output := "TypeError: Cannot read properties of undefined\n  at [Symbol(gaxios-gaxios-request-extensions)] quota exceeded somewhere in here"
	require.Equal(t, None, Detect(output))
}

func TestDetect_ObjectObjectDumpSuppressed(t *testing.T) {
	require.Equal(t, None, Detect("failed: [object Object] quota exceeded"))
}

func TestDetect_JSErrorObjectDumpDoesNotSuppressAGenuineSignalOnAnotherLine(t *testing.T) {
	output := "[Symbol(gaxios-gaxios-error)]: '6.7.1'\nquota exceeded for project"
	require.Equal(t, Billing, Detect(output))
}

func TestDetect_ClaudeSessionLimitBanner(t *testing.T) {
	require.Equal(t, SessionLimit, Detect("You've hit your limit · resets 4pm (Australia/Melbourne)"))
}

func TestDetect_ClaudeSessionLimitBannerCurlyApostrophe(t *testing.T) {
	require.Equal(t, SessionLimit, Detect("You’ve hit your limit · resets 4pm (Australia/Melbourne)"))
}

func TestSummarize_PrefersQuotaKeywordLine(t *testing.T) {
	output := "connecting...\nretrying...\nError: insufficient credits remaining on this account\ndone"
	require.Equal(t, "Error: insufficient credits remaining on this account", Summarize(output))
}

func TestSummarize_SkipsJSErrorObjectLines(t *testing.T) {
	output := "[Symbol(gaxios-request)] quota exceeded\nplain informative line about the failure"
	require.Equal(t, "plain informative line about the failure", Summarize(output))
}

func TestSummarize_FallsBackToLastLineWhenNoKeywordMatches(t *testing.T) {
	output := "first line\nsecond line\nthird line"
	require.Equal(t, "third line", Summarize(output))
}
