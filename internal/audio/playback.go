package audio

import (
	"io"
	"sync"
	"time"

	"github.com/soyeahso/iris/internal/logging"
)

// PlaybackOptions configures a WriterPlayback.
type PlaybackOptions struct {
	Format Format
	// Pace holds each chunk for its playing time, for sinks that accept
	// audio faster than real time.
	Pace bool
	// OnStarted and OnStopped fire when audible output begins and ends,
	// outside any lock.
	OnStarted func()
	OnStopped func()
}

// WriterPlayback plays model audio by writing PCM to an io.Writer, such as
// the stdin of an external player. Enqueue never blocks on the writer.
type WriterPlayback struct {
	w    io.Writer
	opts PlaybackOptions
	log  *logging.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	active bool
	epoch  uint64
	closed bool
}

// NewWriterPlayback starts the writer goroutine. Call Close to stop it.
func NewWriterPlayback(w io.Writer, opts PlaybackOptions, log *logging.Logger) *WriterPlayback {
	p := &WriterPlayback{w: w, opts: opts, log: log.Sub("playback")}
	p.cond = sync.NewCond(&p.mu)
	go p.loop()
	return p
}

// Enqueue schedules pcm after any audio already queued.
func (p *WriterPlayback) Enqueue(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, buf)
	started := !p.active
	p.active = true
	p.cond.Signal()
	p.mu.Unlock()

	if started && p.opts.OnStarted != nil {
		p.opts.OnStarted()
	}
}

// Stop discards queued audio. A chunk already handed to the writer
// finishes.
func (p *WriterPlayback) Stop() {
	p.mu.Lock()
	p.queue = nil
	p.epoch++
	was := p.active
	p.active = false
	p.mu.Unlock()

	if was && p.opts.OnStopped != nil {
		p.opts.OnStopped()
	}
}

// IsPlaying reports whether audio is queued or being written.
func (p *WriterPlayback) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Close stops the writer goroutine. Queued audio is dropped.
func (p *WriterPlayback) Close() error {
	p.mu.Lock()
	p.closed = true
	p.queue = nil
	p.active = false
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

func (p *WriterPlayback) loop() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		chunk := p.queue[0]
		p.queue = p.queue[1:]
		epoch := p.epoch
		p.mu.Unlock()

		if _, err := p.w.Write(chunk); err != nil {
			p.log.Warn().Err(err).Msg("playback write failed")
		}
		if p.opts.Pace {
			time.Sleep(p.opts.Format.Duration(len(chunk)))
		}

		p.mu.Lock()
		finished := epoch == p.epoch && len(p.queue) == 0 && p.active
		if finished {
			p.active = false
		}
		p.mu.Unlock()

		if finished && p.opts.OnStopped != nil {
			p.opts.OnStopped()
		}
	}
}
