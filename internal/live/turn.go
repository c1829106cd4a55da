package live

import (
	"strings"

	"github.com/soyeahso/iris/internal/domain"
)

// Origin records what started the current turn.
type Origin int

const (
	OriginUser Origin = iota
	OriginWarmup
	OriginProactive
)

func (o Origin) String() string {
	switch o {
	case OriginWarmup:
		return "warmup"
	case OriginProactive:
		return "proactive"
	}
	return "user"
}

// TurnContext is the state of the current conversational exchange. Values
// are never mutated in place; every transition returns a new TurnContext
// that the control loop installs as a whole.
type TurnContext struct {
	mode           domain.Mode
	origin         Origin
	modelText      string
	userTranscript string
	wakeWordSeen   bool
	suppressOutput bool
}

// NewTurn returns an idle user turn with no accumulated data.
func NewTurn() TurnContext {
	return TurnContext{mode: domain.ModeIdle}
}

func (t TurnContext) Mode() domain.Mode { return t.mode }
func (t TurnContext) Origin() Origin { return t.origin }
func (t TurnContext) ModelText() string { return t.modelText }
func (t TurnContext) UserTranscript() string { return t.userTranscript }
func (t TurnContext) WakeWordSeen() bool { return t.wakeWordSeen }
func (t TurnContext) Suppressed() bool { return t.suppressOutput }

func (t TurnContext) WithMode(m domain.Mode) TurnContext {
	t.mode = m
	return t
}

func (t TurnContext) WithOrigin(o Origin) TurnContext {
	t.origin = o
	return t
}

func (t TurnContext) AppendModelText(s string) TurnContext {
	t.modelText += s
	return t
}

func (t TurnContext) AppendUserTranscript(s string) TurnContext {
	t.userTranscript += s
	return t
}

// WithWakeWord latches wakeWordSeen; it can never be cleared within a turn.
func (t TurnContext) WithWakeWord() TurnContext {
	t.wakeWordSeen = true
	return t
}

// Suppress drops model audio until the turn completes.
func (t TurnContext) Suppress() TurnContext {
	t.suppressOutput = true
	return t
}

// Next returns the context for the following turn. Only the mode carries
// over; callers pass the mode the session settles into.
func (t TurnContext) Next(m domain.Mode) TurnContext {
	return TurnContext{mode: m}
}

func (t TurnContext) trimmedModelText() string {
	return strings.TrimSpace(t.modelText)
}

func (t TurnContext) trimmedUserTranscript() string {
	return strings.TrimSpace(t.userTranscript)
}
