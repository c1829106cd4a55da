package live

import (
	"context"

	"github.com/soyeahso/iris/internal/domain"
)

// EventKind identifies a streaming channel event.
type EventKind int

const (
	EventReady EventKind = iota
	EventDisconnected
	EventText
	EventInputTranscript
	EventOutputTranscript
	EventAudio
	EventToolCall
	EventTurnComplete
)

var eventKindNames = [...]string{
	EventReady:            "ready",
	EventDisconnected:     "disconnected",
	EventText:             "text",
	EventInputTranscript:  "input_transcript",
	EventOutputTranscript: "output_transcript",
	EventAudio:            "audio",
	EventToolCall:         "tool_call",
	EventTurnComplete:     "turn_complete",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// ChannelEvent is one lifecycle or response event from the streaming channel.
type ChannelEvent struct {
	Kind  EventKind
	Text  string
	Audio []byte
	Call  domain.ToolCall
	Err   error // set on EventDisconnected when the connection failed
}

// OutboundKind identifies an outbound channel message.
type OutboundKind int

const (
	OutText OutboundKind = iota
	OutAudio
	OutFrame
	OutToolResponse
)

func (k OutboundKind) String() string {
	switch k {
	case OutText:
		return "text"
	case OutAudio:
		return "audio"
	case OutFrame:
		return "frame"
	case OutToolResponse:
		return "tool_response"
	}
	return "unknown"
}

// Outbound is a typed message sent to the remote model.
type Outbound struct {
	Kind     OutboundKind
	Text     string
	Data     []byte
	MimeType string
	Result   domain.ToolResult
}

// Channel opens connections to the remote model.
type Channel interface {
	Connect(ctx context.Context) (Conn, error)
}

// Conn is one connection lifetime.
//
// Send must not block on the network; implementations queue the message for
// a writer goroutine. Events delivers EventReady once the session is usable,
// at most one EventDisconnected, and is closed after the connection ends.
type Conn interface {
	Send(ctx context.Context, msg Outbound) error
	Events() <-chan ChannelEvent
	Close() error
}

// Playback is the model audio sink.
type Playback interface {
	Enqueue(pcm []byte)
	Stop()
	IsPlaying() bool
}

// FrameSource holds the most recent screen capture.
type FrameSource interface {
	LatestFrame() (domain.Frame, bool)
}

// ToolExecutor runs a model-issued tool call.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args domain.Args) (string, error)
}

// ContextProbe reports the foreground application and focused element.
type ContextProbe interface {
	Foreground(ctx context.Context) domain.Foreground
}

// ConversationLog receives completed turns.
type ConversationLog interface {
	Append(ctx context.Context, msg domain.Message) error
}

// SessionRecorder is optionally implemented by a ConversationLog to track
// session boundaries.
type SessionRecorder interface {
	BeginSession(ctx context.Context, s domain.Session) error
	EndSession(ctx context.Context, id string) error
}

// AssistantHistory is optionally implemented by a ConversationLog so that
// duplicate detection survives restarts.
type AssistantHistory interface {
	LastAssistant(ctx context.Context) (string, error)
}

// Emitter receives orchestrator events. hooks.Manager satisfies it.
type Emitter interface {
	Emit(ctx context.Context, event string, data map[string]any)
}
