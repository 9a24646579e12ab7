package eventlog

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iondrive-co/chad/internal/paths"
	"github.com/iondrive-co/chad/internal/redact"
)

// scannerBufferSize bounds a single JSONL line; large payloads go to
// sidecar artifacts instead, so this only needs to cover structured events.
const scannerBufferSize = 4 * 1024 * 1024

// ArtifactThreshold is the minimum payload size that is spilled to a
// sidecar artifact file rather than inlined into the event.
const ArtifactThreshold = 10 * 1024 // 10 KiB

// ArtifactCeiling is the maximum bytes retained in a sidecar artifact;
// content beyond this is truncated with a trailing marker.
const ArtifactCeiling = 10 * 1024 * 1024 // 10 MiB

const truncationMarker = "\n...[truncated]\n"

// EventLog is the append-only, per-session event journal. Not safe for
// concurrent Append calls from multiple goroutines without external
// synchronization by the owning session's event loop, since seq assignment
// must be strictly ordered.
type EventLog struct {
	mu           sync.Mutex
	file         *os.File
	writer       *bufio.Writer
	sessionID    string
	logDir       string
	path         string
	maxSeq       uint64
	maxMilestone uint64
	curTurnID    string
}

// Open opens (creating if necessary) the JSONL file for sessionID under
// logDir, scanning it to recover the highest seq and milestone_seq already
// written so numbering continues across restarts. A corrupt trailing line
// is tolerated: it is dropped and seq recovery proceeds from the last
// well-formed line.
func Open(logDir, sessionID string) (*EventLog, error) {
	if err := paths.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	path := filepath.Join(logDir, sessionID+".jsonl")

	var maxSeq, maxMilestone uint64
	if existing, err := os.Open(path); err == nil { //nolint:gosec // path built from validated session id
		scanner := bufio.NewScanner(existing)
		scanner.Buffer(make([]byte, 0, scannerBufferSize), scannerBufferSize)
		for scanner.Scan() {
			var e Event
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				continue // corrupt trailing (or interior) line: tolerated
			}
			if e.Seq > maxSeq {
				maxSeq = e.Seq
			}
			if e.Milestone != nil && e.Milestone.MilestoneSeq > maxMilestone {
				maxMilestone = e.Milestone.MilestoneSeq
			}
		}
		_ = existing.Close()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("opening event log %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening event log %s for append: %w", path, err)
	}

	return &EventLog{
		file:         f,
		writer:       bufio.NewWriter(f),
		sessionID:    sessionID,
		logDir:       logDir,
		path:         path,
		maxSeq:       maxSeq,
		maxMilestone: maxMilestone,
	}, nil
}

// SetTurnID sets the turn id stamped onto subsequent events that don't
// already carry one.
func (l *EventLog) SetTurnID(turnID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.curTurnID = turnID
}

// Append assigns the next seq, stamps session id / timestamp / turn id (if
// unset), assigns a milestone_seq if the event is a milestone, redacts the
// serialized record, writes it, and flushes. Append is the only mutator of
// the log; seq is assigned under the log's own lock so concurrent callers
// are serialized into a single total order.
func (l *EventLog) Append(e Event) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maxSeq++
	e.Seq = l.maxSeq
	e.SessionID = l.sessionID
	if e.TurnID == "" {
		e.TurnID = l.curTurnID
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Milestone != nil {
		l.maxMilestone++
		e.Milestone.MilestoneSeq = l.maxMilestone
		if e.Milestone.Title == "" {
			e.Milestone.Title = MilestoneTitle(e.Milestone.Type)
		}
	}

	line, err := json.Marshal(e)
	if err != nil {
		return Event{}, fmt.Errorf("marshaling event: %w", err)
	}
	redacted, err := redact.JSONLBytes(line)
	if err != nil {
		return Event{}, fmt.Errorf("redacting event: %w", err)
	}

	if _, err := l.writer.Write(redacted); err != nil {
		return Event{}, fmt.Errorf("writing event: %w", err)
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return Event{}, fmt.Errorf("writing event newline: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return Event{}, fmt.Errorf("flushing event: %w", err)
	}

	return e, nil
}

// StoreArtifact writes content to a sidecar file only if it's at least
// ArtifactThreshold bytes; otherwise it returns (nil, nil) so the caller
// inlines the bytes directly into the event. Content beyond ArtifactCeiling
// is truncated with a trailing marker. The filename's hash suffix doubles
// as the integrity field.
func (l *EventLog) StoreArtifact(content []byte, name string) (*ArtifactRef, error) {
	if len(content) < ArtifactThreshold {
		return nil, nil
	}

	sum := sha256.Sum256(content)
	hexSum := hex.EncodeToString(sum[:])

	truncated := false
	body := content
	if len(body) > ArtifactCeiling {
		body = append(append([]byte{}, body[:ArtifactCeiling]...), []byte(truncationMarker)...)
		truncated = true
	}
	body = redact.Bytes(body)

	dir := paths.ArtifactsDir(l.logDir, l.sessionID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating artifacts dir: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.txt", name, hexSum[:8])
	full := filepath.Join(dir, filename)
	if err := os.WriteFile(full, body, 0o600); err != nil {
		return nil, fmt.Errorf("writing artifact: %w", err)
	}

	rel, err := filepath.Rel(l.logDir, full)
	if err != nil {
		rel = full
	}

	return &ArtifactRef{
		RelativePath: rel,
		SHA256:       hexSum,
		ByteLength:   int64(len(body)),
		Truncated:    truncated,
	}, nil
}

// ReadEvents streams events strictly after sinceSeq, optionally filtered by
// type. An empty typeFilter means no filtering.
func (l *EventLog) ReadEvents(sinceSeq uint64, typeFilter []Type) ([]Event, error) {
	l.mu.Lock()
	if err := l.writer.Flush(); err != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("flushing before read: %w", err)
	}
	path := l.path
	l.mu.Unlock()

	f, err := os.Open(path) //nolint:gosec // path derived from validated session id
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for read: %w", err)
	}
	defer f.Close()

	allowed := make(map[Type]bool, len(typeFilter))
	for _, t := range typeFilter {
		allowed[t] = true
	}

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, scannerBufferSize), scannerBufferSize)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(bytes.TrimSpace(scanner.Bytes()), &e); err != nil {
			continue
		}
		if e.Seq <= sinceSeq {
			continue
		}
		if len(allowed) > 0 && !allowed[e.Type] {
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}
	return events, nil
}

// MaxSeq returns the highest seq assigned so far.
func (l *EventLog) MaxSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxSeq
}

// Close flushes and closes the underlying file. The file itself persists.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("flushing event log on close: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}
