// Package events defines the event types and payloads passed through the
// rconbridge event bus.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Command events
	EventCommandExecuted EventType = "command_executed"
	EventCommandFailed   EventType = "command_failed"
	EventAuthFailed      EventType = "auth_failed"

	// Session events
	EventSessionOpened EventType = "session_opened"
	EventSessionClosed EventType = "session_closed"
	EventHealthProbe   EventType = "health_probe"

	// Notification events
	EventNotifyMQTT EventType = "notify_mqtt"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// SessionState is the connection state of one server session.
type SessionState int

const (
	SessionDisconnected SessionState = iota
	SessionConnected
	SessionAuthFailed
)

var sessionStateStrings = map[SessionState]string{
	SessionDisconnected: "disconnected",
	SessionConnected:    "connected",
	SessionAuthFailed:   "auth_failed",
}

// String returns the string representation of SessionState.
func (s SessionState) String() string {
	if str, ok := sessionStateStrings[s]; ok {
		return str
	}
	return "disconnected"
}

// MarshalJSON serializes SessionState as a JSON string (e.g. "connected").
func (s SessionState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// CommandPayload describes one command exchange, successful or not.
// ResponseID and ResponseType are zero when Error is set.
type CommandPayload struct {
	ID           string        `json:"id"`
	Server       string        `json:"server"`
	Command      string        `json:"command"`
	ResponseID   int32         `json:"response_id"`
	ResponseType int32         `json:"response_type"`
	Body         string        `json:"body"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
	ExecutedAt   time.Time     `json:"executed_at"`
}

// SessionPayload is carried by session_opened, session_closed and
// auth_failed.
type SessionPayload struct {
	Server  string `json:"server"`
	Address string `json:"address"`
	Reason  string `json:"reason,omitempty"`
}

// HealthPayload is the outcome of one health probe.
type HealthPayload struct {
	Server    string        `json:"server"`
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`

	// Filled when the probe command is "status".
	Map     string `json:"map,omitempty"`
	Players int    `json:"players,omitempty"`
}

// NotifyPayload is a free-form telemetry message published to Topic.
type NotifyPayload struct {
	Topic string                 `json:"topic"`
	Data  map[string]interface{} `json:"data"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
