// Package telemetry defines the typed event structs that flow over the
// WebSocket connection between pulsed and its clients. These types serve as
// documentation for the event schema; most internal code still broadcasts
// events as map[string]any for flexibility.
package telemetry

import "time"

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventHeartbeat      EventType = "heartbeat"
	EventState          EventType = "state"
	EventLiveSample     EventType = "live_sample"
	EventSensor         EventType = "sensor"
	EventRecordingSaved EventType = "recording_saved"
	EventLog            EventType = "log"
)

// Event is the base envelope shared by every event type.
type Event struct {
	Type EventType `json:"type"`
	TS   string    `json:"ts"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string, matching the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Heartbeat is sent periodically so clients can detect connectivity and
// monitor daemon uptime.
type Heartbeat struct {
	Event
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	SensorCount   int    `json:"sensor_count"`
}

// StateTransition is emitted whenever the recorder moves between lifecycle
// states (e.g. IDLE -> RECORDING).
type StateTransition struct {
	Event
	From string `json:"from"`
	To   string `json:"to"`
}

// LiveSample carries one routed sensor value for live display. Samples are
// broadcast in every lifecycle state, including Paused, even when they are
// not being persisted.
type LiveSample struct {
	Event
	Kind     string `json:"kind"` // "hr" (BPM) or "rr" (milliseconds)
	SensorID string `json:"sensor_id"`
	Value    int    `json:"value"`
}

// SensorChange announces a sensor joining or leaving.
type SensorChange struct {
	Event
	SensorEvent string `json:"event"` // "added" or "removed"
	SensorID    string `json:"sensor_id"`
	Name        string `json:"name,omitempty"`
}

// RecordingSaved announces a successfully persisted session.
type RecordingSaved struct {
	Event
	RecordingID string `json:"recording_id"`
	Name        string `json:"name"`
	SensorCount int    `json:"sensor_count"`
	DurationS   int    `json:"duration_s"`
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}
