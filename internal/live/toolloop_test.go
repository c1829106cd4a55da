package live

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/hooks"
)

// postToolCall delivers a tool-call event and runs the control loop without
// running background work, so the executor has not been invoked yet.
func (h *harness) postToolCall(id, name string, args map[string]any) {
	h.o.box.post(channelEvent{gen: h.o.gen, ev: ChannelEvent{
		Kind: EventToolCall,
		Call: domain.ToolCall{ResponseID: id, Name: name, Args: domain.ArgsFromMap(args)},
	}})
	h.o.drain()
}

func TestToolCall_RoundTrip(t *testing.T) {
	h := newHarness(t, testOptions())
	conn := h.start()
	h.exec.outputs["lookup"] = "42"

	h.transcript("what is the answer")
	h.do(func() { h.o.MicChunk([]byte("m1")) })
	require.Len(t, conn.sentOf(OutAudio), 1)

	h.postToolCall("call-1", "lookup", map[string]any{"q": "answer"})
	assert.Equal(t, domain.ModeToolRunning, h.mode())
	assert.Equal(t, 1, h.o.snapshot().PendingTools)

	// Microphone audio is withheld while the tool runs.
	h.o.MicChunk([]byte("m2"))
	h.o.drain()
	assert.Len(t, conn.sentOf(OutAudio), 1)

	h.settle()
	responses := conn.sentOf(OutToolResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, domain.ToolResult{ResponseID: "call-1", Name: "lookup", Output: "42"}, responses[0].Result)
	assert.Equal(t, domain.ModeModelSpeaking, h.mode())
	assert.Equal(t, 0, h.o.snapshot().PendingTools)

	h.do(func() { h.o.MicChunk([]byte("m3")) })
	assert.Len(t, conn.sentOf(OutAudio), 2)

	require.Len(t, h.exec.calls, 1)
	assert.Equal(t, "answer", h.exec.calls[0].args.String("q"))
	assert.Len(t, h.events.named(hooks.EventToolStarted), 1)
	assert.Len(t, h.events.named(hooks.EventToolFinished), 1)
}

func TestToolCall_SequentialInArrivalOrder(t *testing.T) {
	h := newHarness(t, testOptions())
	conn := h.start()

	h.o.box.post(channelEvent{gen: h.o.gen, ev: ChannelEvent{Kind: EventToolCall, Call: domain.ToolCall{ResponseID: "a", Name: "first"}}})
	h.o.box.post(channelEvent{gen: h.o.gen, ev: ChannelEvent{Kind: EventToolCall, Call: domain.ToolCall{ResponseID: "b", Name: "second"}}})
	h.o.drain()

	// Only the first is dispatched until it completes.
	assert.Len(t, h.spawned, 1)
	assert.Equal(t, 2, h.o.snapshot().PendingTools)
	assert.Empty(t, conn.sentOf(OutToolResponse))

	h.settle()
	assert.Equal(t, []string{"first", "second"}, h.exec.names())
	responses := conn.sentOf(OutToolResponse)
	require.Len(t, responses, 2)
	assert.Equal(t, "a", responses[0].Result.ResponseID)
	assert.Equal(t, "b", responses[1].Result.ResponseID)
	assert.Equal(t, domain.ModeModelSpeaking, h.mode())
}

func TestToolCall_ExecutorErrorBecomesResult(t *testing.T) {
	h := newHarness(t, testOptions())
	conn := h.start()
	h.exec.errs["open_app"] = errors.New("app not found")

	h.toolCall("x1", "open_app", map[string]any{"name": "Nope"})
	responses := conn.sentOf(OutToolResponse)
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Result.Failed)
	assert.Equal(t, "Error: app not found", responses[0].Result.Output)
	assert.Equal(t, domain.ModeModelSpeaking, h.mode())
}

func TestToolCall_Timeout(t *testing.T) {
	h := newHarness(t, testOptions())
	conn := h.start()
	h.exec.hold = make(chan struct{})
	h.o.spawn = func(f func()) { go f() }

	h.toolCall("slow-1", "slow", nil)
	assert.Equal(t, domain.ModeToolRunning, h.mode())

	h.advance(29 * time.Second)
	assert.Empty(t, conn.sentOf(OutToolResponse))

	h.advance(time.Second)
	responses := conn.sentOf(OutToolResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, "slow-1", responses[0].Result.ResponseID)
	assert.True(t, responses[0].Result.Failed)
	assert.Contains(t, responses[0].Result.Output, "did not finish within 30s")
	assert.Equal(t, domain.ModeModelSpeaking, h.mode())

	// The cancelled executor's late completion is ignored.
	require.Eventually(t, func() bool {
		h.o.drain()
		return h.o.box.len() == 0 && len(h.exec.names()) == 1
	}, time.Second, 5*time.Millisecond)
	h.o.drain()
	assert.Len(t, conn.sentOf(OutToolResponse), 1)
}

func TestToolCall_OrphanedByDisconnect(t *testing.T) {
	h := newHarness(t, testOptions())
	first := h.start()

	h.postToolCall("t1", "lookup", nil)
	require.Len(t, h.spawned, 1)

	h.o.box.post(channelEvent{gen: h.o.gen, ev: ChannelEvent{Kind: EventDisconnected}})
	h.settle() // runs the executor; its result belongs to a dead connection
	assert.Equal(t, 0, h.o.snapshot().PendingTools)
	assert.Empty(t, first.sentOf(OutToolResponse))

	h.advance(2 * time.Second)
	second := h.channel.last()
	require.NotSame(t, first, second)
	h.emit(ChannelEvent{Kind: EventReady})
	assert.Empty(t, second.sentOf(OutToolResponse))
}

func TestToolCall_MissingIDGetsOne(t *testing.T) {
	h := newHarness(t, testOptions())
	conn := h.start()

	h.toolCall("", "lookup", nil)
	responses := conn.sentOf(OutToolResponse)
	require.Len(t, responses, 1)
	assert.NotEmpty(t, responses[0].Result.ResponseID)
}

func TestToolCall_TurnCompleteWhileRunningKeepsToolMode(t *testing.T) {
	h := newHarness(t, testOptions())
	h.start()

	h.transcript("check the weather")
	h.postToolCall("w1", "weather", nil)
	h.o.box.post(channelEvent{gen: h.o.gen, ev: ChannelEvent{Kind: EventTurnComplete}})
	h.o.drain()
	assert.Equal(t, domain.ModeToolRunning, h.mode())

	h.settle()
	assert.Equal(t, domain.ModeModelSpeaking, h.mode())
}

func TestProposalToolMarksSuggestionPending(t *testing.T) {
	h := newHarness(t, testOptions())
	conn := h.start()

	h.transcript("help me reply")
	h.toolCall("p1", DefaultProposalTool, map[string]any{"text": "Sounds good!"})
	assert.True(t, h.o.snapshot().SuggestionPending)
	proposed := h.events.named(hooks.EventSuggestionProposed)
	require.Len(t, proposed, 1)
	assert.Equal(t, "Sounds good!", proposed[0].data["text"])

	textsBefore := len(conn.sentOf(OutText))
	h.do(h.o.AcceptSuggestion)
	assert.False(t, h.o.snapshot().SuggestionPending)
	texts := conn.sentOf(OutText)
	require.Len(t, texts, textsBefore+1)
	assert.Equal(t, "Sounds good!", texts[len(texts)-1].Text)
	resolved := h.events.named(hooks.EventSuggestionResolved)
	require.Len(t, resolved, 1)
	assert.Equal(t, true, resolved[0].data["accepted"])

	// Resolving with nothing pending does nothing.
	h.do(h.o.DismissSuggestion)
	assert.Len(t, h.events.named(hooks.EventSuggestionResolved), 1)
}

func TestDismissedSuggestionSendsNothing(t *testing.T) {
	h := newHarness(t, testOptions())
	conn := h.start()

	h.toolCall("p1", DefaultProposalTool, map[string]any{"text": "On my way"})
	require.True(t, h.o.snapshot().SuggestionPending)
	textsBefore := len(conn.sentOf(OutText))

	h.do(h.o.DismissSuggestion)
	assert.False(t, h.o.snapshot().SuggestionPending)
	assert.Len(t, conn.sentOf(OutText), textsBefore)
	resolved := h.events.named(hooks.EventSuggestionResolved)
	require.Len(t, resolved, 1)
	assert.Equal(t, false, resolved[0].data["accepted"])
}

func TestFailedProposalIsNotPending(t *testing.T) {
	h := newHarness(t, testOptions())
	h.start()
	h.exec.errs[DefaultProposalTool] = errors.New("overlay unavailable")

	h.toolCall("p1", DefaultProposalTool, map[string]any{"text": "hi"})
	assert.False(t, h.o.snapshot().SuggestionPending)
}
