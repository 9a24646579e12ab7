// Package logging provides structured logging for the chad engine using
// log/slog. Log lines are JSON, one session's worth written to its own file
// under <logdir>/logs/<session-id>.log, with session/task/component
// identifiers threaded through via context.Context rather than passed at
// every call site.
package logging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/iondrive-co/chad/internal/paths"
)

// LogLevelEnvVar controls the log level when set.
const LogLevelEnvVar = "CHAD_LOG_LEVEL"

// LogsDirName is the directory (relative to the log root) holding log files.
const LogsDirName = "logs"

var (
	mu           sync.RWMutex
	logger       *slog.Logger
	logFile      *os.File
	logBufWriter *bufio.Writer
)

// Init opens (or creates) the session's log file and installs it as the
// package-level logger. Falls back to stderr if the file cannot be opened.
func Init(sessionID string) error {
	if err := paths.ValidateSessionID(sessionID); err != nil {
		return fmt.Errorf("invalid session id for logging: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	level := parseLogLevel(os.Getenv(LogLevelEnvVar))

	logDir, err := paths.LogDir()
	if err != nil {
		logger = createLogger(os.Stderr, level)
		return nil //nolint:nilerr // fall back to stderr rather than fail the caller
	}

	logsPath := filepath.Join(logDir, LogsDirName)
	if err := os.MkdirAll(logsPath, 0o750); err != nil {
		logger = createLogger(os.Stderr, level)
		return nil
	}

	f, err := os.OpenFile(filepath.Join(logsPath, sessionID+".log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		logger = createLogger(os.Stderr, level)
		return nil
	}

	logFile = f
	logBufWriter = bufio.NewWriterSize(f, 8192)
	logger = createLogger(logBufWriter, level)
	return nil
}

// Close flushes and closes the active log file. Safe to call repeatedly.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if logBufWriter != nil {
		_ = logBufWriter.Flush()
		logBufWriter = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func createLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs at DEBUG level with context attributes extracted automatically.
func Debug(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelDebug, msg, attrs...) }

// Info logs at INFO level with context attributes extracted automatically.
func Info(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelInfo, msg, attrs...) }

// Warn logs at WARN level with context attributes extracted automatically.
func Warn(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelWarn, msg, attrs...) }

// Error logs at ERROR level with context attributes extracted automatically.
func Error(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelError, msg, attrs...) }

func log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	l := getLogger()
	all := append(attrsFromContext(ctx), attrs...)
	l.Log(context.Background(), level, msg, all...)
}

func attrsFromContext(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	var attrs []any
	add := func(key string, ctxKey any) {
		if v, ok := ctx.Value(ctxKey).(string); ok && v != "" {
			attrs = append(attrs, slog.String(key, v))
		}
	}
	add("session_id", sessionIDKey{})
	add("task_id", taskIDKey{})
	add("turn_id", turnIDKey{})
	add("component", componentKey{})
	return attrs
}

type (
	sessionIDKey struct{}
	taskIDKey    struct{}
	turnIDKey    struct{}
	componentKey struct{}
)

// WithSession attaches a session id to the context for automatic log attribution.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// WithTask attaches a task id to the context for automatic log attribution.
func WithTask(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskIDKey{}, id)
}

// WithTurn attaches a turn id to the context for automatic log attribution.
func WithTurn(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey{}, id)
}

// WithComponent attaches a component name to the context for automatic log attribution.
func WithComponent(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, componentKey{}, name)
}
