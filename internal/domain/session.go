package domain

import "time"

// ConnectionState is the lifecycle state of the streaming connection.
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionReady        ConnectionState = "ready"
)

// Mode is the conversational turn mode. Exactly one is active at a time.
type Mode string

const (
	ModeIdle          Mode = "idle"
	ModeUserSpeaking  Mode = "user_speaking"
	ModeModelSpeaking Mode = "model_speaking"
	ModeToolRunning   Mode = "tool_running"
	ModeAnalyzing     Mode = "analyzing"
)

// Session is one connection lifetime to the streaming model, from an
// explicit start to an explicit stop.
type Session struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitzero"`
}

// Status is a point-in-time snapshot of the orchestrator, used by the
// overlay feed and the status command.
type Status struct {
	SessionID         string          `json:"sessionId,omitempty"`
	Connection        ConnectionState `json:"connection"`
	Mode              Mode            `json:"mode"`
	ReconnectArmed    bool            `json:"reconnectArmed"`
	WakeWordRequired  bool            `json:"wakeWordRequired"`
	WakeWordSeen      bool            `json:"wakeWordSeen"`
	WarmingUp         bool            `json:"warmingUp"`
	ProactiveInFlight bool            `json:"proactiveInFlight"`
	SuggestionPending bool            `json:"suggestionPending"`
	Suppressed        bool            `json:"suppressed"`
	PendingTools      int             `json:"pendingTools"`
}
