// Package live runs the streaming conversation with the remote model: turn
// state, output gating, frame cadence, proactive checks, tool calls and
// reconnection. All state is owned by a single control goroutine; every
// input is posted to its mailbox and handled one event at a time.
package live

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/hooks"
	"github.com/soyeahso/iris/internal/logging"
)

// ErrNoChannel is returned by New when no streaming channel is supplied.
var ErrNoChannel = errors.New("live: channel is required")

// DefaultProposalTool is the tool name the proactive instruction asks for.
const DefaultProposalTool = "propose_reply"

// Options tunes orchestrator behavior.
type Options struct {
	Model                string
	FrameInterval        time.Duration
	ReconnectDelay       time.Duration
	ReconnectMaxAttempts int // 0 = unlimited
	ReconnectEscalate    int // warn every N consecutive failures
	ToolTimeout          time.Duration
	PrimingText          string
	WakeWordRequired     bool
	WakeWords            []string
	ProposalTool         string
	Proactive            ProactiveOptions
}

// ProactiveOptions configures the proactive suggestion monitor.
type ProactiveOptions struct {
	Enabled       bool
	Cooldown      time.Duration
	SafetyTimeout time.Duration
	Apps          []string
	Instruction   string
}

// Deps are the collaborators the orchestrator drives. Only Channel is
// required.
type Deps struct {
	Channel  Channel
	Playback Playback
	Frames   FrameSource
	Tools    ToolExecutor
	Probe    ContextProbe
	Log      ConversationLog
	Events   Emitter
	Clock    Clock
	Logger   *logging.Logger
}

// Orchestrator is the live session state machine.
type Orchestrator struct {
	opts  Options
	deps  Deps
	clock Clock
	log   *logging.Logger
	wake  WakeWordMatcher
	box   *mailbox
	spawn func(func())

	ctx    context.Context
	cancel context.CancelFunc

	// session
	sessionID string
	state     domain.ConnectionState
	armed     bool
	conn      Conn
	gen       uint64
	attempts  int

	turn          TurnContext
	lastAssistant string
	playing       bool

	timers     [numTimers]timerSlot
	proactive  proactiveState
	tools      toolLoop
	suggestion suggestionState

	droppedAudio int
	withheldMic  int
	droppedMic   int
}

// New builds an orchestrator. Call Run to start processing events.
func New(opts Options, deps Deps) (*Orchestrator, error) {
	if deps.Channel == nil {
		return nil, ErrNoChannel
	}
	if deps.Playback == nil {
		deps.Playback = nopPlayback{}
	}
	if deps.Frames == nil {
		deps.Frames = noFrames{}
	}
	if deps.Tools == nil {
		deps.Tools = noTools{}
	}
	if deps.Log == nil {
		deps.Log = discardLog{}
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.New(io.Discard, "silent")
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 2 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.ProposalTool == "" {
		opts.ProposalTool = DefaultProposalTool
	}
	if opts.Proactive.Instruction == "" {
		opts.Proactive.Instruction = defaultProactiveInstruction(opts.ProposalTool)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		opts:   opts,
		deps:   deps,
		clock:  deps.Clock,
		log:    deps.Logger.Sub("live"),
		wake:   NewWakeWordMatcher(opts.WakeWords),
		box:    newMailbox(),
		spawn:  func(f func()) { go f() },
		ctx:    ctx,
		cancel: cancel,
		state:  domain.ConnectionDisconnected,
		turn:   NewTurn(),
	}, nil
}

// Run processes events until ctx is cancelled, then stops the session.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.cancel()
	o.log.Debug().Msg("control loop started")
	for {
		select {
		case <-ctx.Done():
			o.drain()
			o.handleStop()
			o.log.Debug().Msg("control loop stopped")
			return nil
		case <-o.box.notify:
			o.drain()
		}
	}
}

// drain handles queued events until the mailbox is empty and returns how
// many were processed.
func (o *Orchestrator) drain() int {
	n := 0
	for {
		items := o.box.take()
		if len(items) == 0 {
			return n
		}
		for _, ev := range items {
			o.handle(ev)
			n++
		}
	}
}

// Control-loop events.
type (
	startCmd      struct{}
	stopCmd       struct{}
	speechStarted struct{}
	interruptCmd  struct{}
	micChunk      struct{ data []byte }
	playbackState struct{ playing bool }
	analysisCmd   struct{ active bool }
	suggestionCmd struct{ accepted bool }
	statusReq     struct{ reply chan domain.Status }

	channelEvent struct {
		gen uint64
		ev  ChannelEvent
	}
	connectResult struct {
		gen  uint64
		conn Conn
		err  error
	}
	connClosed struct{ gen uint64 }
	timerFired struct {
		kind timerKind
		seq  uint64
	}
	toolDone struct {
		gen    uint64
		seq    uint64
		output string
		err    error
	}
	probeResult struct {
		seq uint64
		fg  domain.Foreground
	}
)

func (o *Orchestrator) handle(ev any) {
	switch e := ev.(type) {
	case startCmd:
		o.handleStart()
	case stopCmd:
		o.handleStop()
	case speechStarted:
		o.onSpeechStarted()
	case interruptCmd:
		o.onInterrupt()
	case micChunk:
		o.onMicChunk(e.data)
	case playbackState:
		o.playing = e.playing
	case analysisCmd:
		o.onAnalysis(e.active)
	case suggestionCmd:
		o.resolveSuggestion(e.accepted)
	case statusReq:
		e.reply <- o.snapshot()
	case channelEvent:
		o.onChannelEvent(e)
	case connectResult:
		o.onConnectResult(e)
	case connClosed:
		if e.gen == o.gen && o.conn != nil {
			o.handleDisconnect(nil)
		}
	case timerFired:
		o.onTimer(e)
	case toolDone:
		o.onToolDone(e)
	case probeResult:
		o.onProbeResult(e)
	default:
		o.log.Warn().Type("event", ev).Msg("unhandled event")
	}
}

// Start opens the session and arms reconnect.
func (o *Orchestrator) Start() { o.box.post(startCmd{}) }

// Stop disarms reconnect, closes the connection and clears all timers and
// turn state. Safe to call repeatedly and from any state.
func (o *Orchestrator) Stop() { o.box.post(stopCmd{}) }

// SpeechStarted reports local speech activity. It is also the barge-in trigger.
func (o *Orchestrator) SpeechStarted() { o.box.post(speechStarted{}) }

// Interrupt stops playback and drops model audio until the turn completes.
func (o *Orchestrator) Interrupt() { o.box.post(interruptCmd{}) }

// MicChunk forwards an encoded microphone chunk to the model.
func (o *Orchestrator) MicChunk(data []byte) { o.box.post(micChunk{data: data}) }

// PlaybackStarted reports that the playback sink began producing audio.
func (o *Orchestrator) PlaybackStarted() { o.box.post(playbackState{playing: true}) }

// PlaybackStopped reports that the playback sink drained or was stopped.
func (o *Orchestrator) PlaybackStopped() { o.box.post(playbackState{playing: false}) }

// BeginAnalysis enters the analyzing mode used by out-of-band screenshot
// analysis. Ignored unless the session is idle.
func (o *Orchestrator) BeginAnalysis() { o.box.post(analysisCmd{active: true}) }

// EndAnalysis leaves the analyzing mode.
func (o *Orchestrator) EndAnalysis() { o.box.post(analysisCmd{active: false}) }

// AcceptSuggestion resolves the pending proposal as accepted.
func (o *Orchestrator) AcceptSuggestion() { o.box.post(suggestionCmd{accepted: true}) }

// DismissSuggestion resolves the pending proposal as dismissed.
func (o *Orchestrator) DismissSuggestion() { o.box.post(suggestionCmd{accepted: false}) }

// Status returns a snapshot taken on the control goroutine.
func (o *Orchestrator) Status(ctx context.Context) (domain.Status, error) {
	reply := make(chan domain.Status, 1)
	o.box.post(statusReq{reply: reply})
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return domain.Status{}, ctx.Err()
	}
}

func (o *Orchestrator) snapshot() domain.Status {
	return domain.Status{
		SessionID:         o.sessionID,
		Connection:        o.state,
		Mode:              o.turn.mode,
		ReconnectArmed:    o.armed,
		WakeWordRequired:  o.opts.WakeWordRequired,
		WakeWordSeen:      o.turn.wakeWordSeen,
		WarmingUp:         o.turn.origin == OriginWarmup,
		ProactiveInFlight: o.proactive.inProgress,
		SuggestionPending: o.suggestion.pending,
		Suppressed:        o.turn.suppressOutput,
		PendingTools:      o.tools.outstanding(),
	}
}

// setTurn installs the next turn context and reports mode changes.
func (o *Orchestrator) setTurn(next TurnContext) {
	prev := o.turn
	o.turn = next
	if prev.mode != next.mode {
		o.log.Debug().Str("from", string(prev.mode)).Str("to", string(next.mode)).Msg("mode changed")
		o.emit(hooks.EventModeChanged, map[string]any{"from": string(prev.mode), "to": string(next.mode)})
	}
}

func (o *Orchestrator) setState(s domain.ConnectionState) {
	if o.state == s {
		return
	}
	o.state = s
	o.log.Info().Str("state", string(s)).Msg("connection state")
	o.emit(hooks.EventConnectionState, map[string]any{"state": string(s), "sessionId": o.sessionID})
}

func (o *Orchestrator) emit(event string, data map[string]any) {
	if o.deps.Events == nil {
		return
	}
	o.deps.Events.Emit(o.ctx, event, data)
}

// send hands msg to the current connection. It reports false when there is
// no connection or the connection refused the message.
func (o *Orchestrator) send(msg Outbound) bool {
	if o.conn == nil {
		return false
	}
	if err := o.conn.Send(o.ctx, msg); err != nil {
		if msg.Kind == OutAudio {
			o.droppedMic++
			if o.droppedMic == 1 || o.droppedMic%100 == 0 {
				o.log.Debug().Err(err).Int("dropped", o.droppedMic).Msg("mic chunk not sent")
			}
			return false
		}
		o.log.Warn().Err(err).Str("kind", msg.Kind.String()).Msg("send failed")
		return false
	}
	return true
}

func (o *Orchestrator) onAnalysis(active bool) {
	switch {
	case active && o.turn.mode == domain.ModeIdle:
		o.setTurn(o.turn.WithMode(domain.ModeAnalyzing))
	case !active && o.turn.mode == domain.ModeAnalyzing:
		o.setTurn(o.turn.WithMode(domain.ModeIdle))
	default:
		o.log.Debug().Bool("active", active).Str("mode", string(o.turn.mode)).Msg("analysis request ignored")
	}
}

type nopPlayback struct{}

func (nopPlayback) Enqueue([]byte)  {}
func (nopPlayback) Stop()           {}
func (nopPlayback) IsPlaying() bool { return false }

type noFrames struct{}

func (noFrames) LatestFrame() (domain.Frame, bool) { return domain.Frame{}, false }

type noTools struct{}

func (noTools) Execute(_ context.Context, name string, _ domain.Args) (string, error) {
	return "", errors.New("no tool executor configured for " + name)
}

type discardLog struct{}

func (discardLog) Append(context.Context, domain.Message) error { return nil }
