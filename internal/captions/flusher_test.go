package captions

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/iris/internal/hooks"
	"github.com/soyeahso/iris/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSink struct {
	mu   sync.Mutex
	seq  int64
	sent []Caption
}

func (s *recordSink) Broadcast(event string, payload any) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event == Event {
		s.sent = append(s.sent, payload.(Caption))
	}
	s.seq++
	return s.seq
}

func (s *recordSink) captions() []Caption {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Caption(nil), s.sent...)
}

func newFlusher(cfg Config) (*Flusher, *recordSink) {
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Second
	}
	sink := &recordSink{}
	return NewFlusher(cfg, sink, logging.New(nil, "silent")), sink
}

func TestFlusher_SentenceBoundary(t *testing.T) {
	f, sink := newFlusher(Config{})

	f.OnDelta("The button on the left saves ")
	assert.Empty(t, sink.captions())

	f.OnDelta("your draft. The other one")
	got := sink.captions()
	require.Len(t, got, 1)
	assert.Equal(t, "The button on the left saves your draft.", got[0].Text)
	assert.Equal(t, 0, got[0].Index)
	assert.False(t, got[0].Final)

	f.End()
	got = sink.captions()
	require.Len(t, got, 2)
	assert.Equal(t, Caption{Text: "The other one", Index: 1, Final: true}, got[1])
}

func TestFlusher_ShortSentenceWaits(t *testing.T) {
	f, sink := newFlusher(Config{})

	f.OnDelta("Sure. Okay")
	assert.Empty(t, sink.captions())
}

func TestFlusher_ParagraphBoundary(t *testing.T) {
	f, sink := newFlusher(Config{MaxBytes: 500})

	f.OnDelta("First.\n\nSecond")
	got := sink.captions()
	require.Len(t, got, 1)
	assert.Equal(t, "First.", got[0].Text)
}

func TestFlusher_SizeThreshold(t *testing.T) {
	f, sink := newFlusher(Config{MaxBytes: 50})

	f.OnDelta(strings.Repeat("abcde ", 10))
	got := sink.captions()
	require.Len(t, got, 1)
	assert.Len(t, got[0].Text, 59)
}

func TestFlusher_IdleTimeout(t *testing.T) {
	f, sink := newFlusher(Config{IdleTimeout: 30 * time.Millisecond})

	f.OnDelta("let me check")
	assert.Empty(t, sink.captions())

	require.Eventually(t, func() bool { return len(sink.captions()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "let me check", sink.captions()[0].Text)

	f.End()
	got := sink.captions()
	require.Len(t, got, 2)
	assert.Equal(t, Caption{Index: 1, Final: true}, got[1])
}

func TestFlusher_EndWithoutTextSendsNothing(t *testing.T) {
	f, sink := newFlusher(Config{})
	f.End()
	f.Discard()
	assert.Empty(t, sink.captions())
}

func TestFlusher_DiscardRetractsShownCaptions(t *testing.T) {
	f, sink := newFlusher(Config{})

	f.OnDelta("This reply will be thrown away. Tail")
	f.Discard()

	got := sink.captions()
	require.Len(t, got, 2)
	assert.Equal(t, "This reply will be thrown away.", got[0].Text)
	assert.Equal(t, Caption{Index: 1, Final: true, Discarded: true}, got[1])

	f.OnDelta("Next turn")
	f.End()
	got = sink.captions()
	require.Len(t, got, 3)
	assert.Equal(t, Caption{Text: "Next turn", Index: 0, Final: true}, got[2])
}

func TestFlusher_StaleIdleTimerIgnored(t *testing.T) {
	f, sink := newFlusher(Config{IdleTimeout: 20 * time.Millisecond})

	f.OnDelta("pending")
	f.End()
	time.Sleep(60 * time.Millisecond)

	got := sink.captions()
	require.Len(t, got, 1)
	assert.True(t, got[0].Final)
}

func TestFlusher_Attach(t *testing.T) {
	ctx := context.Background()
	hm := hooks.NewManager(logging.New(nil, "silent"))
	f, sink := newFlusher(Config{})
	f.Attach(hm)

	hm.Emit(ctx, hooks.EventModelText, map[string]any{"text": "Hello"})
	hm.Emit(ctx, hooks.EventModelText, map[string]any{"text": 42})
	hm.Emit(ctx, hooks.EventModelText, map[string]any{"text": " there"})
	hm.Emit(ctx, hooks.EventTurnCompleted, nil)

	hm.Emit(ctx, hooks.EventModelText, map[string]any{"text": "unwanted"})
	hm.Emit(ctx, hooks.EventTurnDiscarded, map[string]any{"reason": "duplicate"})

	// Nothing of the discarded turn was shown, so there is nothing to retract.
	got := sink.captions()
	require.Len(t, got, 1)
	assert.Equal(t, Caption{Text: "Hello there", Final: true}, got[0])
}

func TestLastSentenceEnd(t *testing.T) {
	tests := []struct {
		name string
		in   string
		min  int
		want int
	}{
		{"period space", "This one is long enough. Next", 10, 24},
		{"exclamation", "Done! Go", 3, 5},
		{"question newline", "Really?\nYes", 3, 7},
		{"too short", "Hi. X", 10, -1},
		{"trailing punctuation", "no space after.", 3, -1},
		{"empty", "", 1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lastSentenceEnd(tt.in, tt.min))
		})
	}
}
