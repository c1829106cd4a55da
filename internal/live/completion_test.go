package live

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/hooks"
)

func (h *harness) lastDiscard() string {
	d := h.events.named(hooks.EventTurnDiscarded)
	if len(d) == 0 {
		return ""
	}
	return d[len(d)-1].data["reason"].(string)
}

func TestCompletionPolicy(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		reply   string
		want    []string
		discard string
	}{
		{"normal", "open mail", "Opening Mail.", []string{"USER:open mail", "IRIS:Opening Mail."}, ""},
		{"no user speech", "", "The build finished.", []string{"IRIS:The build finished."}, ""},
		{"empty reply", "hello", "   ", nil, discardEmpty},
		{"clarification after noise", "", "Sorry, I didn't catch that.", nil, discardClarification},
		{"clarification after speech", "mumble", "Could you clarify what you mean?", []string{"USER:mumble", "IRIS:Could you clarify what you mean?"}, ""},
		{"trims text", "  hi  ", "  Hello!  ", []string{"USER:hi", "IRIS:Hello!"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testOptions())
			h.start()

			if tt.user != "" {
				h.transcript(tt.user)
			}
			h.text(tt.reply)
			h.turnComplete()

			assert.Equal(t, tt.want, h.log.labels())
			assert.Equal(t, tt.discard, h.lastDiscardAfterWarmup())
			assert.Equal(t, domain.ModeIdle, h.mode())
		})
	}
}

// lastDiscardAfterWarmup ignores the warm-up discard recorded by start.
func (h *harness) lastDiscardAfterWarmup() string {
	d := h.events.named(hooks.EventTurnDiscarded)
	if len(d) <= 1 {
		return ""
	}
	return d[len(d)-1].data["reason"].(string)
}

func TestDuplicateSuppression(t *testing.T) {
	h := newHarness(t, testOptions())
	h.start()

	h.transcript("what's this")
	h.text("It's a button")
	h.turnComplete()

	h.transcript("and this?")
	h.text("  it's A   button ")
	h.turnComplete()

	assert.Equal(t, []string{"USER:what's this", "IRIS:It's a button"}, h.log.labels())
	assert.Equal(t, discardDuplicate, h.lastDiscard())

	// A different reply is logged again.
	h.text("It's a checkbox")
	h.turnComplete()
	assert.Len(t, h.log.msgs, 3)
}

func TestDuplicateOfPreviousSession(t *testing.T) {
	h := newHarness(t, testOptions())
	h.log.last = "Good morning!"
	h.start()

	h.text("good morning!")
	h.turnComplete()
	assert.Empty(t, h.log.msgs)
	assert.Equal(t, discardDuplicate, h.lastDiscard())
}

func TestMessagesCarrySessionAndTime(t *testing.T) {
	h := newHarness(t, testOptions())
	h.start()

	h.transcript("time?")
	h.text("Noon.")
	h.turnComplete()

	require.Len(t, h.log.msgs, 2)
	for _, m := range h.log.msgs {
		assert.Equal(t, h.o.sessionID, m.SessionID)
		assert.Equal(t, h.clock.Now(), m.Timestamp)
	}
	assert.Equal(t, domain.RoleUser, h.log.msgs[0].Role)
	assert.Equal(t, domain.RoleAssistant, h.log.msgs[1].Role)
}

func TestLogFailureDoesNotStallTurn(t *testing.T) {
	h := newHarness(t, testOptions())
	h.start()
	h.log.appendErr = errors.New("disk full")

	h.transcript("hello")
	h.text("Hi")
	h.turnComplete()
	assert.Equal(t, domain.ModeIdle, h.mode())
	assert.Empty(t, h.events.named(hooks.EventMessageLogged))
}

func TestIsClarification(t *testing.T) {
	assert.True(t, IsClarification("Sorry, I didn’t catch that"))
	assert.True(t, IsClarification("COULD YOU REPEAT that?"))
	assert.False(t, IsClarification("The file was saved."))
}

func TestNormalizeReply(t *testing.T) {
	assert.Equal(t, "it's a button", normalizeReply("  It's\ta   BUTTON\n"))
}

func TestWakeWordGate(t *testing.T) {
	opts := testOptions()
	opts.WakeWordRequired = true
	opts.Proactive.Enabled = false
	h := newHarness(t, opts)
	conn := h.start()

	// Without the wake word nothing reaches the user.
	h.transcript("what time is it")
	h.audio("a1")
	h.text("It's noon.")
	assert.Empty(t, h.playback.enqueued)
	assert.Empty(t, h.events.named(hooks.EventModelText))
	assert.Equal(t, domain.ModeUserSpeaking, h.mode())

	h.toolCall("t1", "open_app", map[string]any{"name": "Mail"})
	assert.Empty(t, h.exec.names())
	responses := conn.sentOf(OutToolResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, "t1", responses[0].Result.ResponseID)
	assert.True(t, responses[0].Result.Failed)
	assert.Equal(t, wakeWordBlockedOutput, responses[0].Result.Output)

	h.turnComplete()
	assert.Empty(t, h.log.msgs)
	assert.Equal(t, discardNoWakeWord, h.lastDiscard())

	// With it, the turn behaves normally.
	h.transcript("Hey Iris,")
	h.transcript(" what's the weather")
	h.audio("b1")
	h.text("Sunny.")
	assert.Len(t, h.playback.enqueued, 1)
	h.toolCall("t2", "weather", nil)
	assert.Equal(t, []string{"weather"}, h.exec.names())
	h.turnComplete()
	assert.Equal(t, []string{"USER:Hey Iris, what's the weather", "IRIS:Sunny."}, h.log.labels())

	// The flag resets every turn.
	assert.False(t, h.o.turn.WakeWordSeen())
}

func TestWakeWordIdempotence(t *testing.T) {
	h := newHarness(t, testOptions())
	h.start()

	h.transcript("okay")
	assert.False(t, h.o.turn.WakeWordSeen())
	h.transcript(" iris")
	assert.True(t, h.o.turn.WakeWordSeen())

	for _, s := range []string{" open", " the", " pod", " bay", " doors"} {
		h.transcript(s)
		assert.True(t, h.o.turn.WakeWordSeen())
	}
}

func TestWakeWordMatchesAcrossIncrements(t *testing.T) {
	h := newHarness(t, testOptions())
	h.start()

	h.transcript("hey i")
	h.transcript("ris")
	assert.True(t, h.o.turn.WakeWordSeen())
}

func TestWakeWordMatcher(t *testing.T) {
	m := NewWakeWordMatcher([]string{" Iris ", "", "eye ris"})
	assert.True(t, m.Match("OK IRIS do it"))
	assert.True(t, m.Match("eye ris, open it"))
	assert.False(t, m.Match("open the door"))
	assert.False(t, NewWakeWordMatcher(nil).Match("iris"))
}
