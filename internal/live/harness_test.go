package live

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/logging"
)

// --- clock ---

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// nextDue pops the earliest live timer due at or before limit.
func (c *fakeClock) nextDue(limit time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })
	if len(c.timers) == 0 || c.timers[0].at.After(limit) {
		return nil
	}
	t := c.timers[0]
	t.fired = true
	c.now = t.at
	return t
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// --- channel ---

type fakeConn struct {
	mu     sync.Mutex
	sent    []Outbound
	events  chan ChannelEvent
	closed  bool
	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan ChannelEvent)}
}

func (c *fakeConn) Send(_ context.Context, msg Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Events() <-chan ChannelEvent { return c.events }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *fakeConn) sentOf(kind OutboundKind) []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Outbound
	for _, m := range c.sent {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeChannel struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  int // number of upcoming Connect calls that fail
}

func (ch *fakeChannel) Connect(context.Context) (Conn, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.fail > 0 {
		ch.fail--
		ch.conns = append(ch.conns, nil)
		return nil, errors.New("dial failed")
	}
	c := newFakeConn()
	ch.conns = append(ch.conns, c)
	return c, nil
}

func (ch *fakeChannel) attempts() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.conns)
}

func (ch *fakeChannel) last() *fakeConn {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for i := len(ch.conns) - 1; i >= 0; i-- {
		if ch.conns[i] != nil {
			return ch.conns[i]
		}
	}
	return nil
}

// --- collaborators ---

type fakePlayback struct {
	enqueued [][]byte
	stops    int
	playing  bool
}

func (p *fakePlayback) Enqueue(pcm []byte) {
	p.enqueued = append(p.enqueued, pcm)
	p.playing = true
}

func (p *fakePlayback) Stop() {
	p.stops++
	p.playing = false
}

func (p *fakePlayback) IsPlaying() bool { return p.playing }

type fakeFrames struct {
	frame domain.Frame
	ok    bool
}

func (f *fakeFrames) LatestFrame() (domain.Frame, bool) { return f.frame, f.ok }

type execCall struct {
	name string
	args domain.Args
}

type fakeExecutor struct {
	mu      sync.Mutex
	calls   []execCall
	outputs map[string]string
	errs    map[string]error
	hold    chan struct{} // when set, Execute waits for it or ctx
}

func (e *fakeExecutor) Execute(ctx context.Context, name string, args domain.Args) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, execCall{name: name, args: args})
	hold := e.hold
	e.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := e.errs[name]; err != nil {
		return "", err
	}
	if out, ok := e.outputs[name]; ok {
		return out, nil
	}
	return "ok", nil
}

func (e *fakeExecutor) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, c := range e.calls {
		out = append(out, c.name)
	}
	return out
}

type fakeProbe struct {
	fg    domain.Foreground
	calls int
}

func (p *fakeProbe) Foreground(context.Context) domain.Foreground {
	p.calls++
	return p.fg
}

type fakeLog struct {
	msgs      []domain.Message
	began     []domain.Session
	ended     []string
	last      string
	appendErr error
}

func (l *fakeLog) Append(_ context.Context, m domain.Message) error {
	if l.appendErr != nil {
		return l.appendErr
	}
	l.msgs = append(l.msgs, m)
	return nil
}

func (l *fakeLog) BeginSession(_ context.Context, s domain.Session) error {
	l.began = append(l.began, s)
	return nil
}

func (l *fakeLog) EndSession(_ context.Context, id string) error {
	l.ended = append(l.ended, id)
	return nil
}

func (l *fakeLog) LastAssistant(context.Context) (string, error) { return l.last, nil }

func (l *fakeLog) labels() []string {
	var out []string
	for _, m := range l.msgs {
		out = append(out, m.Label()+":"+m.Content)
	}
	return out
}

type emitted struct {
	event string
	data  map[string]any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) Emit(_ context.Context, event string, data map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{event: event, data: data})
}

func (r *recordingEmitter) named(event string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// --- harness ---

// harness drives an Orchestrator synchronously: background work is queued
// instead of started, and settle runs it together with the control loop
// until nothing is left to do.
type harness struct {
	t        *testing.T
	o        *Orchestrator
	clock    *fakeClock
	channel  *fakeChannel
	playback *fakePlayback
	frames   *fakeFrames
	exec     *fakeExecutor
	probe    *fakeProbe
	log      *fakeLog
	events   *recordingEmitter

	spawned []func()
}

func testOptions() Options {
	return Options{
		Model:          "test-model",
		FrameInterval:  2 * time.Second,
		ReconnectDelay: 2 * time.Second,
		ToolTimeout:    30 * time.Second,
		PrimingText:    "warm up",
		WakeWords:      []string{"iris", "hey iris", "irish"},
		Proactive: ProactiveOptions{
			Enabled:       true,
			Cooldown:      45 * time.Second,
			SafetyTimeout: 8 * time.Second,
			Apps:          []string{"slack", "messages"},
		},
	}
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		clock:    newFakeClock(),
		channel:  &fakeChannel{},
		playback: &fakePlayback{},
		frames:   &fakeFrames{frame: domain.Frame{Data: []byte("jpeg"), MimeType: "image/jpeg"}, ok: true},
		exec:     &fakeExecutor{outputs: map[string]string{}, errs: map[string]error{}},
		probe:    &fakeProbe{fg: domain.Foreground{AppID: "com.tinyspeck.slack", FocusRole: "AXWebArea"}},
		log:      &fakeLog{},
		events:   &recordingEmitter{},
	}
	o, err := New(opts, Deps{
		Channel:  h.channel,
		Playback: h.playback,
		Frames:   h.frames,
		Tools:    h.exec,
		Probe:    h.probe,
		Log:      h.log,
		Events:   h.events,
		Clock:    h.clock,
		Logger:   logging.New(io.Discard, "silent"),
	})
	require.NoError(t, err)
	o.spawn = func(f func()) { h.spawned = append(h.spawned, f) }
	h.o = o
	t.Cleanup(func() {
		o.Stop()
		o.drain()
		o.cancel()
	})
	return h
}

// settle runs the control loop and queued background work to quiescence.
func (h *harness) settle() {
	for {
		h.o.drain()
		if len(h.spawned) == 0 {
			return
		}
		work := h.spawned
		h.spawned = nil
		for _, f := range work {
			f()
		}
	}
}

// advance moves the clock forward, firing due timers in order and settling
// after each.
func (h *harness) advance(d time.Duration) {
	target := h.clock.Now().Add(d)
	for {
		t := h.clock.nextDue(target)
		if t == nil {
			break
		}
		t.f()
		h.settle()
	}
	h.clock.set(target)
}

// emit delivers a channel event for the current connection.
func (h *harness) emit(ev ChannelEvent) {
	h.o.box.post(channelEvent{gen: h.o.gen, ev: ev})
	h.settle()
}

func (h *harness) text(s string)       { h.emit(ChannelEvent{Kind: EventOutputTranscript, Text: s}) }
func (h *harness) transcript(s string) { h.emit(ChannelEvent{Kind: EventInputTranscript, Text: s}) }
func (h *harness) audio(b string)      { h.emit(ChannelEvent{Kind: EventAudio, Audio: []byte(b)}) }
func (h *harness) turnComplete()       { h.emit(ChannelEvent{Kind: EventTurnComplete}) }

func (h *harness) toolCall(id, name string, args map[string]any) {
	h.emit(ChannelEvent{Kind: EventToolCall, Call: domain.ToolCall{ResponseID: id, Name: name, Args: domain.ArgsFromMap(args)}})
}

// start opens the session, reaches Ready and finishes the warm-up turn.
func (h *harness) start() *fakeConn {
	h.t.Helper()
	h.o.Start()
	h.settle()
	conn := h.channel.last()
	require.NotNil(h.t, conn)
	h.emit(ChannelEvent{Kind: EventReady})
	require.Equal(h.t, domain.ConnectionReady, h.o.state)
	if h.o.opts.PrimingText != "" {
		h.turnComplete()
	}
	return conn
}

func (h *harness) mode() domain.Mode { return h.o.turn.mode }

func (h *harness) do(f func()) {
	f()
	h.settle()
}
