// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/vessel-monitor/internal/protocol"
	"github.com/sweeney/vessel-monitor/internal/state"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "vessels/monitor"

// System event names.
const (
	EventStartup     = "STARTUP"
	EventHeartbeat   = "HEARTBEAT"
	EventShutdown    = "SHUTDOWN"
	EventReconnected = "RECONNECTED"
	EventOffline     = "OFFLINE"
)

// StateTopic returns the topic vessel state is published on.
func StateTopic(prefix string) string {
	return prefix + "/state"
}

// SystemTopic returns the topic lifecycle events are published on.
func SystemTopic(prefix string) string {
	return prefix + "/system"
}

// NewSessionID returns an identifier for one process lifetime, so a
// consumer can tell a restart from a reconnect.
func NewSessionID() string {
	return uuid.NewString()
}

// Publisher publishes telemetry to MQTT.
type Publisher interface {
	// PublishState sends the state of both vessels to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishState(ts time.Time, snap state.Snapshot) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	Session    string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// StatePayload is the MQTT message payload for vessel state. Device entries
// use the same field names and formatting as the serial link.
type StatePayload struct {
	Timestamp string               `json:"timestamp"`
	Session   string               `json:"session,omitempty"`
	Devices   []protocol.WireState `json:"devices"`
}

// FormatStatePayload creates the JSON payload for a state publication.
func FormatStatePayload(ts time.Time, session string, snap state.Snapshot) ([]byte, error) {
	payload := StatePayload{
		Timestamp: ts.UTC().Format(time.RFC3339),
		Session:   session,
		Devices:   protocol.WireStates(snap),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return data, nil
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Session   string `json:"session,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Session:   event.Session,
		},
	}
	return json.Marshal(payload)
}
