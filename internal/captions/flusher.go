// Package captions turns the model's streamed reply text into readable
// caption lines for the overlay.
package captions

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/iris/internal/hooks"
	"github.com/soyeahso/iris/internal/logging"
)

// Event is the overlay event name captions are broadcast under.
const Event = "caption"

// Caption is one flushed piece of a reply.
type Caption struct {
	Text      string `json:"text"`
	Index     int    `json:"index"` // position within the turn, from 0
	Final     bool   `json:"final,omitempty"`
	Discarded bool   `json:"discarded,omitempty"`
}

// Sink receives captions. *gateway.Server satisfies it.
type Sink interface {
	Broadcast(event string, payload any) int64
}

// Config controls when buffered text is flushed.
type Config struct {
	// MaxBytes flushes the whole buffer once it grows this large. Default 160.
	MaxBytes int
	// IdleTimeout flushes when no delta arrives for this long. Default 1.5s.
	IdleTimeout time.Duration
	// MinSentence is the shortest buffer a sentence boundary may split.
	// Default 24.
	MinSentence int
}

// Flusher buffers reply deltas for one turn at a time and emits captions at
// paragraph or sentence boundaries, on size, or after an idle pause.
type Flusher struct {
	cfg  Config
	sink Sink
	log  *logging.Logger

	mu    sync.Mutex
	buf   strings.Builder
	timer *time.Timer
	gen   uint64 // bumped on every delta and turn end; stale idle timers compare it
	index int
}

// NewFlusher creates a caption flusher writing to sink.
func NewFlusher(cfg Config, sink Sink, log *logging.Logger) *Flusher {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 160
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 1500 * time.Millisecond
	}
	if cfg.MinSentence <= 0 {
		cfg.MinSentence = 24
	}
	return &Flusher{cfg: cfg, sink: sink, log: log.Sub("captions")}
}

// Attach subscribes the flusher to the reply and turn events of hm.
func (f *Flusher) Attach(hm *hooks.Manager) {
	hm.On(hooks.EventModelText, "captions", func(_ context.Context, p hooks.Payload) error {
		if text, ok := p.Data["text"].(string); ok {
			f.OnDelta(text)
		}
		return nil
	})
	hm.On(hooks.EventTurnCompleted, "captions", func(context.Context, hooks.Payload) error {
		f.End()
		return nil
	})
	hm.On(hooks.EventTurnDiscarded, "captions", func(context.Context, hooks.Payload) error {
		f.Discard()
		return nil
	})
	hm.On(hooks.EventSessionStop, "captions", func(context.Context, hooks.Payload) error {
		f.Discard()
		return nil
	})
}

// OnDelta appends reply text and flushes at any boundary it completes.
func (f *Flusher) OnDelta(text string) {
	if text == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf.WriteString(text)
	f.gen++
	f.armIdleLocked()
	f.checkFlushLocked()
}

// End flushes the remainder and marks the turn's last caption final.
func (f *Flusher) End() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishLocked(false)
}

// Discard drops unflushed text. If captions were already shown for the
// turn, a final discarded marker lets the overlay retract them.
func (f *Flusher) Discard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf.Reset()
	f.finishLocked(true)
}

func (f *Flusher) finishLocked(discarded bool) {
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	text := strings.TrimSpace(f.buf.String())
	f.buf.Reset()
	if text != "" || f.index > 0 {
		f.sendLocked(Caption{Text: text, Final: true, Discarded: discarded})
	}
	f.index = 0
}

func (f *Flusher) armIdleLocked() {
	if f.timer != nil {
		f.timer.Stop()
	}
	gen := f.gen
	f.timer = time.AfterFunc(f.cfg.IdleTimeout, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.gen != gen {
			return
		}
		f.flushLocked()
	})
}

func (f *Flusher) checkFlushLocked() {
	content := f.buf.String()

	if len(content) >= f.cfg.MaxBytes {
		f.flushLocked()
		return
	}
	if idx := strings.LastIndex(content, "\n\n"); idx >= 0 {
		f.flushAtLocked(idx + 2)
		return
	}
	if pos := lastSentenceEnd(content, f.cfg.MinSentence); pos > 0 {
		f.flushAtLocked(pos)
	}
}

// flushAtLocked sends the first pos bytes of the buffer and keeps the rest.
func (f *Flusher) flushAtLocked(pos int) {
	content := f.buf.String()
	pos = min(pos, len(content))
	if text := strings.TrimSpace(content[:pos]); text != "" {
		f.sendLocked(Caption{Text: text})
	}
	f.buf.Reset()
	f.buf.WriteString(content[pos:])
}

func (f *Flusher) flushLocked() {
	text := strings.TrimSpace(f.buf.String())
	f.buf.Reset()
	if text != "" {
		f.sendLocked(Caption{Text: text})
	}
}

func (f *Flusher) sendLocked(c Caption) {
	c.Index = f.index
	f.index++
	seq := f.sink.Broadcast(Event, c)
	f.log.Trace().Int64("seq", seq).Int("index", c.Index).Bool("final", c.Final).Msg("caption")
}

// lastSentenceEnd returns the byte position just past the last . ! or ?
// that is followed by whitespace, or -1 when there is none past minLen.
func lastSentenceEnd(s string, minLen int) int {
	best := -1
	for i := 0; i < len(s)-1; i++ {
		if (s[i] == '.' || s[i] == '!' || s[i] == '?') &&
			(s[i+1] == ' ' || s[i+1] == '\n') {
			best = i + 1
		}
	}
	if best >= minLen {
		return best
	}
	return -1
}
