// Package mqtt publishes gateway telemetry and system events, and carries
// the peer link subscription, with an abstraction for testing.
package mqtt

import (
	"errors"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/sweeney/leak-gateway/internal/logic"
)

// TopicReadings is the MQTT topic for calculated readings.
const TopicReadings = "leak/gateway/readings"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "leak/gateway/system"

// ErrNotConnected is returned when telemetry is dropped because the broker
// connection is down.
var ErrNotConnected = errors.New("mqtt: not connected")

// Publisher publishes readings and events to MQTT.
type Publisher interface {
	// Publish sends a reading report to the broker without waiting for it
	// to be acknowledged.
	Publish(report logic.Report) error

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
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for a reading report.
type Payload struct {
	Reading ReadingPayload `json:"reading"`
}

// ReadingPayload contains the local and remote readings and valve state.
type ReadingPayload struct {
	Timestamp string          `json:"timestamp"`
	LocalLPM  float64         `json:"local_lpm"`
	Remote    []RemotePayload `json:"remote"`
	Valve     ValvePayload    `json:"valve"`
}

// RemotePayload is the effective reading of one peer.
type RemotePayload struct {
	Peer  string  `json:"peer"`
	LPM   float64 `json:"lpm"`
	Stale bool    `json:"stale"`
}

// ValvePayload is the actuator state.
type ValvePayload struct {
	Pulsing bool   `json:"pulsing"`
	Channel string `json:"channel,omitempty"`
}

// FormatPayload creates the JSON payload for a reading report.
func FormatPayload(r logic.Report) ([]byte, error) {
	remote := make([]RemotePayload, 0, len(r.Remote))
	for _, rd := range r.Remote {
		remote = append(remote, RemotePayload{
			Peer:  rd.Source.Name,
			LPM:   rd.Value,
			Stale: rd.Stale,
		})
	}
	valve := ValvePayload{Pulsing: r.Valve.Pulsing}
	if r.Valve.Pulsing {
		valve.Channel = string(r.Valve.Channel)
	}

	payload := Payload{
		Reading: ReadingPayload{
			Timestamp: r.At.UTC().Format(time.RFC3339),
			LocalLPM:  r.Local.Value,
			Remote:    remote,
			Valve:     valve,
		},
	}
	return sonnet.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, SHUTDOWN) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
// A zero Timestamp is omitted, as in the last-will message.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return sonnet.Marshal(SystemPayload{System: inner})
}
