// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/crossing-controller/internal/logic"
)

// TopicPhase carries every state change. The latest one is retained so a new
// subscriber sees the current lamps immediately.
const TopicPhase = "traffic/crossing/phase"

// TopicEvents carries collected input events.
const TopicEvents = "traffic/crossing/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "traffic/crossing/system"

// Publisher publishes controller activity to MQTT.
type Publisher interface {
	// PublishTransition sends a state change to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishTransition(t logic.Transition) error

	// PublishEvent sends a collected input event.
	PublishEvent(event logic.Event) error

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
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// TransitionPayload represents the MQTT message payload for a state change.
type TransitionPayload struct {
	Crossing CrossingPayload `json:"crossing"`
}

// CrossingPayload contains the state change details.
type CrossingPayload struct {
	Timestamp string       `json:"timestamp"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Preempted bool         `json:"preempted"`
	Lamps     LampsPayload `json:"lamps"`
}

// LampsPayload names the lit lamp on each head.
type LampsPayload struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Pedestrian string `json:"pedestrian"`
}

// NewLampsPayload summarises lamp levels.
func NewLampsPayload(l logic.Lamps) LampsPayload {
	return LampsPayload{
		Primary:    l.Primary.String(),
		Secondary:  l.Secondary.String(),
		Pedestrian: l.Pedestrian.String(),
	}
}

// FormatTransitionPayload creates the JSON payload for a state change.
func FormatTransitionPayload(t logic.Transition) ([]byte, error) {
	payload := TransitionPayload{
		Crossing: CrossingPayload{
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			From:      t.From.String(),
			To:        t.To.String(),
			Preempted: t.Preempted,
			Lamps:     NewLampsPayload(t.Lamps),
		},
	}
	return json.Marshal(payload)
}

// EventPayload represents the MQTT message payload for an input event.
type EventPayload struct {
	Input EventPayloadInner `json:"input"`
}

// EventPayloadInner contains the input event details.
type EventPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
}

// FormatEventPayload creates the JSON payload for an input event.
func FormatEventPayload(event logic.Event) ([]byte, error) {
	payload := EventPayload{
		Input: EventPayloadInner{
			Timestamp: event.Time.UTC().Format(time.RFC3339),
			Event:     string(event.Code),
		},
	}
	return json.Marshal(payload)
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
		},
	}
	return json.Marshal(payload)
}
