// Package redact scrubs secrets from PTY output and agent transcripts
// before they reach an EventLog file or a HandoffBuilder markdown document.
// Detection layers entropy scanning with gitleaks' pattern rules so a
// coding agent echoing an API key to its terminal never lands on disk
// unredacted.
package redact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// secretPattern matches high-entropy strings that may be secrets.
var secretPattern = regexp.MustCompile(`[A-Za-z0-9/+_=-]{10,}`)

// entropyThreshold is the minimum Shannon entropy for a string to be
// considered a secret. High enough to avoid flagging common identifiers,
// low enough to catch typical API keys and tokens.
const entropyThreshold = 4.5

var (
	gitleaksDetector     *detect.Detector
	gitleaksDetectorOnce sync.Once
)

func getDetector() *detect.Detector {
	gitleaksDetectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return
		}
		gitleaksDetector = d
	})
	return gitleaksDetector
}

// region is a byte range to redact.
type region struct{ start, end int }

// String replaces secrets in s with "REDACTED" using two layers:
// entropy-based detection of high-entropy runs, and gitleaks' pattern
// rules. A string is redacted if either method flags it.
func String(s string) string {
	var regions []region

	for _, loc := range secretPattern.FindAllStringIndex(s, -1) {
		if shannonEntropy(s[loc[0]:loc[1]]) > entropyThreshold {
			regions = append(regions, region{loc[0], loc[1]})
		}
	}

	if d := getDetector(); d != nil {
		for _, f := range d.DetectString(s) {
			if f.Secret == "" {
				continue
			}
			searchFrom := 0
			for {
				idx := strings.Index(s[searchFrom:], f.Secret)
				if idx < 0 {
					break
				}
				absIdx := searchFrom + idx
				regions = append(regions, region{absIdx, absIdx + len(f.Secret)})
				searchFrom = absIdx + len(f.Secret)
			}
		}
	}

	if len(regions) == 0 {
		return s
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].start < regions[j].start
	})
	merged := []region{regions[0]}
	for _, r := range regions[1:] {
		last := &merged[len(merged)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
			}
		} else {
			merged = append(merged, r)
		}
	}

	var b strings.Builder
	prev := 0
	for _, r := range merged {
		b.WriteString(s[prev:r.start])
		b.WriteString("REDACTED")
		prev = r.end
	}
	b.WriteString(s[prev:])
	return b.String()
}

// Bytes is a convenience wrapper around String for []byte content.
func Bytes(b []byte) []byte {
	s := string(b)
	redacted := String(s)
	if redacted == s {
		return b
	}
	return []byte(redacted)
}

// JSONLBytes is a convenience wrapper around JSONLContent for []byte content.
func JSONLBytes(b []byte) ([]byte, error) {
	s := string(b)
	redacted, err := JSONLContent(s)
	if err != nil {
		return nil, err
	}
	if redacted == s {
		return b, nil
	}
	return []byte(redacted), nil
}

// JSONLContent parses each line as JSON to find which string values need
// redaction, then performs targeted replacements on the raw JSON bytes so
// lines with no secrets are returned byte-for-byte unchanged. Used for
// EventLog records, where the "data" payload is itself a JSON value and a
// blanket string rewrite would corrupt structure.
func JSONLContent(content string) (string, error) {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			b.WriteString(line)
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
			b.WriteString(String(line))
			continue
		}
		repls := collectJSONLReplacements(parsed)
		if len(repls) == 0 {
			b.WriteString(line)
			continue
		}
		result := line
		for _, r := range repls {
			origJSON, err := jsonEncodeString(r[0])
			if err != nil {
				return "", err
			}
			replJSON, err := jsonEncodeString(r[1])
			if err != nil {
				return "", err
			}
			result = strings.ReplaceAll(result, origJSON, replJSON)
		}
		b.WriteString(result)
	}
	return b.String(), nil
}

// collectJSONLReplacements walks a parsed JSON value and collects unique
// (original, redacted) string pairs for values that need redaction.
func collectJSONLReplacements(v any) [][2]string {
	seen := make(map[string]bool)
	var repls [][2]string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case map[string]any:
			if shouldSkipJSONLObject(val) {
				return
			}
			for k, child := range val {
				if shouldSkipJSONLField(k) {
					continue
				}
				walk(child)
			}
		case []any:
			for _, child := range val {
				walk(child)
			}
		case string:
			redacted := String(val)
			if redacted != val && !seen[val] {
				seen[val] = true
				repls = append(repls, [2]string{val, redacted})
			}
		}
	}
	walk(v)
	return repls
}

// shouldSkipJSONLField excludes "signature" and any key ending in "id"/"ids"
// (case-insensitive) from scanning, since tool-call and turn identifiers are
// high-entropy but not secrets.
func shouldSkipJSONLField(key string) bool {
	if key == "signature" {
		return true
	}
	lower := strings.ToLower(key)
	return strings.HasSuffix(lower, "id") || strings.HasSuffix(lower, "ids")
}

// shouldSkipJSONLObject skips inline image payloads, which are high-entropy
// base64 by nature and not a secret.
func shouldSkipJSONLObject(obj map[string]any) bool {
	t, ok := obj["type"].(string)
	return ok && (strings.HasPrefix(t, "image") || t == "base64")
}

func shannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := range len(s) {
		freq[s[i]]++
	}
	length := float64(len(s))
	var entropy float64
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// jsonEncodeString returns the JSON encoding of s without HTML escaping.
func jsonEncodeString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("json encode string: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
