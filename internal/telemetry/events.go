// Package telemetry defines the typed event structs that flow over the
// WebSocket connection between gnsslogd and its clients. These types are the
// schema of record for the stream. The heartbeat is broadcast as a typed
// struct; the sequencer broadcasts map payloads matching these shapes.
package telemetry

import "time"

// EventType identifies the kind of WebSocket event.
type EventType string

const (
	EventHeartbeat EventType = "heartbeat"
	EventState     EventType = "state"
	EventPowerLoss EventType = "power_loss"
	EventRTCSync   EventType = "rtc_sync"
	EventFile      EventType = "file"
	EventLog       EventType = "log"
)

// Event is the base envelope shared by every event type.
type Event struct {
	Type      EventType `json:"type"`
	TS        string    `json:"ts"`
	Component string    `json:"component,omitempty"`
}

// NowTS returns the current UTC time as an RFC 3339 nano string, the
// timestamp format used across all events.
func NowTS() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Heartbeat is sent periodically so clients can detect connectivity and
// watch uptime and logging health without polling.
type Heartbeat struct {
	Event
	State         string `json:"state"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	LoggingOnline bool   `json:"logging_online"`
}

// StateTransition is emitted whenever the power-state machine moves
// (e.g. ACTIVE -> PENDING_SLEEP).
type StateTransition struct {
	Event
	From string `json:"from"`
	To   string `json:"to"`
}

// PowerLoss is emitted when the supply-collapse flag is observed and acted
// on by the sequencer.
type PowerLoss struct {
	Event
}

// RTCSync reports a successful clock sync against receiver time.
type RTCSync struct {
	Event
	UTC string `json:"utc"`
}

// FileEvent reports log-file lifecycle changes: opened, closed, reopened.
type FileEvent struct {
	Event
	Action       string `json:"action"`
	Name         string `json:"name"`
	BytesWritten int64  `json:"bytes_written"`
	Rotations    int    `json:"rotations"`
}

// LogLine carries a human-readable log message at a severity level.
type LogLine struct {
	Event
	Level   string `json:"level"`
	Message string `json:"message"`
}
