// Package jsonutil provides JSON helpers with consistent formatting and
// strict decoding, used across the engine for on-disk state.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// MarshalIndentWithNewline is like json.MarshalIndent but adds a trailing
// newline so files end with a proper POSIX line ending.
func MarshalIndentWithNewline(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeStrict decodes a single JSON value from r into v, rejecting unknown
// fields. Used for configuration documents where an unrecognized key
// indicates drift between the config file and the binary reading it.
func DecodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding JSON: %w", err)
	}
	return nil
}

// MarshalCompact is a convenience wrapper around json.Marshal used for
// single-line JSONL records.
func MarshalCompact(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding JSON: %w", err)
	}
	return b, nil
}
