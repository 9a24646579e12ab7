// Package telemetry reports anonymized, best-effort task lifecycle events.
// It is opt-in: the zero value of every configuration path is NoOpClient.
// No task content, prompt text, or file path ever leaves the process —
// only lifecycle transitions, provider kind, and counts.
package telemetry

import (
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/posthog/posthog-go"
)

var (
	// PostHogAPIKey is set at build time for production.
	PostHogAPIKey = "phc_development_key"
	// PostHogEndpoint is set at build time for production.
	PostHogEndpoint = "https://eu.i.posthog.com"
)

// EnvOptOut, when set to any non-empty value, forces telemetry off
// regardless of configuration.
const EnvOptOut = "CHAD_TELEMETRY_OPTOUT"

// Client defines the telemetry interface used by the engine's lifecycle
// hooks.
type Client interface {
	TrackTaskStarted(sessionID, provider string)
	TrackTaskCompleted(sessionID, provider, outcome string, turns int)
	TrackProviderSwitched(sessionID, fromProvider, toProvider, reason string)
	Close()
}

// NoOpClient is the default when telemetry is disabled or unconfigured.
type NoOpClient struct{}

func (NoOpClient) TrackTaskStarted(string, string)                  {}
func (NoOpClient) TrackTaskCompleted(string, string, string, int)   {}
func (NoOpClient) TrackProviderSwitched(string, string, string, string) {}
func (NoOpClient) Close()                                           {}

// silentLogger suppresses PostHog log output; telemetry failures are
// expected and must never surface to a session's logs.
type silentLogger struct{}

func (silentLogger) Logf(_ string, _ ...interface{})   {}
func (silentLogger) Debugf(_ string, _ ...interface{}) {}
func (silentLogger) Warnf(_ string, _ ...interface{})  {}
func (silentLogger) Errorf(_ string, _ ...interface{}) {}

// PostHogClient is the real telemetry client.
type PostHogClient struct {
	client      posthog.Client
	machineID   string
	engineVersion string
	mu          sync.RWMutex
}

// NewClient creates a telemetry client based on opt-in configuration.
// enabled comes from the engine's account/config store; nil or false
// means disabled. The environment variable always wins.
//
//nolint:ireturn // returns NoOpClient or PostHogClient depending on config
func NewClient(version string, enabled *bool) Client {
	if os.Getenv(EnvOptOut) != "" {
		return NoOpClient{}
	}
	if enabled == nil || !*enabled {
		return NoOpClient{}
	}

	id, err := machineid.ProtectedID("chad-engine")
	if err != nil {
		return NoOpClient{}
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 100 * time.Millisecond,
		}).DialContext,
		TLSHandshakeTimeout:   100 * time.Millisecond,
		ResponseHeaderTimeout: 100 * time.Millisecond,
	}

	client, err := posthog.NewWithConfig(PostHogAPIKey, posthog.Config{
		Endpoint:           PostHogEndpoint,
		ShutdownTimeout:    100 * time.Millisecond,
		BatchUploadTimeout: 200 * time.Millisecond,
		Transport:          transport,
		Logger:             silentLogger{},
		DisableGeoIP:       posthog.Ptr(true),
		DefaultEventProperties: posthog.NewProperties().
			Set("engine_version", version).
			Set("os", runtime.GOOS).
			Set("arch", runtime.GOARCH),
	})
	if err != nil {
		return NoOpClient{}
	}

	return &PostHogClient{
		client:        client,
		machineID:     id,
		engineVersion: version,
	}
}

// TrackTaskStarted records a session beginning its first coding turn.
func (p *PostHogClient) TrackTaskStarted(sessionID, provider string) {
	p.capture("task_started", posthog.NewProperties().
		Set("session_id", sessionID).
		Set("provider", provider))
}

// TrackTaskCompleted records a session reaching a terminal state.
func (p *PostHogClient) TrackTaskCompleted(sessionID, provider, outcome string, turns int) {
	p.capture("task_completed", posthog.NewProperties().
		Set("session_id", sessionID).
		Set("provider", provider).
		Set("outcome", outcome).
		Set("turns", turns))
}

// TrackProviderSwitched records a handoff from one provider to another.
func (p *PostHogClient) TrackProviderSwitched(sessionID, fromProvider, toProvider, reason string) {
	p.capture("provider_switched", posthog.NewProperties().
		Set("session_id", sessionID).
		Set("from_provider", fromProvider).
		Set("to_provider", toProvider).
		Set("reason", reason))
}

func (p *PostHogClient) capture(event string, props posthog.Properties) {
	p.mu.RLock()
	id := p.machineID
	c := p.client
	p.mu.RUnlock()

	if c == nil {
		return
	}

	//nolint:errcheck // best-effort telemetry, failures must not affect the engine
	_ = c.Enqueue(posthog.Capture{
		DistinctId: id,
		Event:      event,
		Properties: props,
	})
}

// Close flushes pending events.
func (p *PostHogClient) Close() {
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()

	if c != nil {
		_ = c.Close()
	}
}
