// Package hooks provides an event-driven hook system for iris session and turn events.
package hooks

import (
	"context"
	"slices"
	"sync"

	"github.com/soyeahso/iris/internal/logging"
)

// Event names for the hook system.
const (
	EventSessionStart       = "session_start"
	EventSessionStop        = "session_stop"
	EventConnectionState    = "connection_state"
	EventModeChanged        = "mode_changed"
	EventModelText          = "model_text"
	EventTurnCompleted      = "turn_completed"
	EventTurnDiscarded      = "turn_discarded"
	EventMessageLogged      = "message_logged"
	EventToolStarted        = "tool_started"
	EventToolFinished       = "tool_finished"
	EventProactiveFired     = "proactive_fired"
	EventSuggestionProposed = "suggestion_proposed"
	EventSuggestionResolved = "suggestion_resolved"
)

// EventAny registers a handler that receives every event.
const EventAny = "*"

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventSessionStart,
	EventSessionStop,
	EventConnectionState,
	EventModeChanged,
	EventModelText,
	EventTurnCompleted,
	EventTurnDiscarded,
	EventMessageLogged,
	EventToolStarted,
	EventToolFinished,
	EventProactiveFired,
	EventSuggestionProposed,
	EventSuggestionResolved,
}

// IsKnown reports whether event is one of AllEvents.
func IsKnown(event string) bool {
	return slices.Contains(AllEvents, event)
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler is a function that handles a hook event.
// Returning an error logs the failure but does not stop processing.
type Handler func(ctx context.Context, p Payload) error

// Manager manages hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
// The name identifies the handler for logging and debugging.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Emit dispatches an event to all registered handlers synchronously.
// Handlers are called in registration order. Errors are logged but do not
// prevent subsequent handlers from running.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)

	if len(handlers) == 0 {
		return
	}

	payload := Payload{Event: event, Data: data}

	for _, h := range handlers {
		if err := h.handler(ctx, payload); err != nil {
			m.log.Warn().
				Err(err).
				Str("event", event).
				Str("handler", h.name).
				Msg("hook handler error")
		}
	}
}

// snapshot copies the handlers for event followed by the wildcard handlers.
func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handlers := make([]namedHandler, 0, len(m.handlers[event])+len(m.handlers[EventAny]))
	handlers = append(handlers, m.handlers[event]...)
	if event != EventAny {
		handlers = append(handlers, m.handlers[EventAny]...)
	}
	return handlers
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events that have at least one handler registered, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	slices.Sort(events)
	return events
}
