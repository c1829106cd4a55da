package live

import (
	"github.com/google/uuid"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/hooks"
)

func (o *Orchestrator) handleStart() {
	if o.armed {
		o.log.Debug().Msg("start ignored, session already running")
		return
	}
	o.armed = true
	o.attempts = 0
	o.sessionID = uuid.NewString()

	session := domain.Session{ID: o.sessionID, Model: o.opts.Model, StartedAt: o.clock.Now()}
	if rec, ok := o.deps.Log.(SessionRecorder); ok {
		if err := rec.BeginSession(o.ctx, session); err != nil {
			o.log.Warn().Err(err).Msg("failed to record session start")
		}
	}
	if hist, ok := o.deps.Log.(AssistantHistory); ok {
		if last, err := hist.LastAssistant(o.ctx); err == nil {
			o.lastAssistant = last
		} else {
			o.log.Warn().Err(err).Msg("failed to load last assistant message")
		}
	}

	o.log.Info().Str("session", o.sessionID).Str("model", o.opts.Model).Msg("session starting")
	o.emit(hooks.EventSessionStart, map[string]any{"sessionId": o.sessionID, "model": o.opts.Model})

	o.ensureCadence()
	o.connect()
}

func (o *Orchestrator) handleStop() {
	wasArmed := o.armed
	o.armed = false

	o.stopAllTimers()
	o.abandonTools()
	o.clearProactive()
	o.closeConn()
	o.gen++

	o.deps.Playback.Stop()
	o.setTurn(NewTurn())
	o.setState(domain.ConnectionDisconnected)
	o.suggestion = suggestionState{}

	if !wasArmed {
		return
	}
	if rec, ok := o.deps.Log.(SessionRecorder); ok {
		if err := rec.EndSession(o.ctx, o.sessionID); err != nil {
			o.log.Warn().Err(err).Msg("failed to record session end")
		}
	}
	o.log.Info().Str("session", o.sessionID).Msg("session stopped")
	o.emit(hooks.EventSessionStop, map[string]any{"sessionId": o.sessionID})
}

// connect opens a new connection generation in the background.
func (o *Orchestrator) connect() {
	o.gen++
	gen := o.gen
	o.setState(domain.ConnectionConnecting)

	ch := o.deps.Channel
	ctx := o.ctx
	o.spawn(func() {
		conn, err := ch.Connect(ctx)
		o.box.post(connectResult{gen: gen, conn: conn, err: err})
	})
}

func (o *Orchestrator) onConnectResult(r connectResult) {
	if r.gen != o.gen || !o.armed {
		if r.conn != nil {
			_ = r.conn.Close()
		}
		return
	}
	if r.err != nil {
		o.log.Warn().Err(r.err).Int("attempt", o.attempts+1).Msg("connect failed")
		o.handleDisconnect(r.err)
		return
	}
	o.conn = r.conn
	go o.readLoop(r.gen, r.conn)
}

// readLoop forwards connection events to the control loop, tagged with the
// connection generation so events from a replaced connection are ignored.
func (o *Orchestrator) readLoop(gen uint64, conn Conn) {
	for ev := range conn.Events() {
		o.box.post(channelEvent{gen: gen, ev: ev})
	}
	o.box.post(connClosed{gen: gen})
}

func (o *Orchestrator) onChannelEvent(ce channelEvent) {
	if ce.gen != o.gen || o.conn == nil {
		o.log.Trace().Str("kind", ce.ev.Kind.String()).Msg("event from stale connection ignored")
		return
	}
	switch ce.ev.Kind {
	case EventReady:
		o.onReady()
	case EventDisconnected:
		o.handleDisconnect(ce.ev.Err)
	case EventText, EventOutputTranscript:
		o.onModelText(ce.ev.Text)
	case EventInputTranscript:
		o.onInputTranscript(ce.ev.Text)
	case EventAudio:
		o.onModelAudio(ce.ev.Audio)
	case EventToolCall:
		o.onToolCall(ce.ev.Call)
	case EventTurnComplete:
		o.onTurnComplete()
	}
}

func (o *Orchestrator) onReady() {
	if o.state == domain.ConnectionReady {
		return
	}
	if frame, ok := o.deps.Frames.LatestFrame(); ok {
		o.send(Outbound{Kind: OutFrame, Data: frame.Data, MimeType: frame.MimeType})
	}

	next := NewTurn()
	if o.opts.PrimingText != "" && o.send(Outbound{Kind: OutText, Text: o.opts.PrimingText}) {
		next = next.WithOrigin(OriginWarmup)
	}
	o.setTurn(next)
	o.attempts = 0
	o.setState(domain.ConnectionReady)
	o.ensureCadence()
}

// handleDisconnect tears down the current connection and, while armed,
// schedules a single reconnect after the fixed delay. Outstanding tool calls
// are abandoned without a response.
func (o *Orchestrator) handleDisconnect(cause error) {
	o.closeConn()
	o.gen++
	o.abandonTools()
	o.clearProactive()
	o.setTurn(NewTurn())
	o.setState(domain.ConnectionDisconnected)

	if !o.armed {
		return
	}

	o.attempts++
	if limit := o.opts.ReconnectMaxAttempts; limit > 0 && o.attempts > limit {
		o.log.Error().Err(cause).Int("attempts", o.attempts-1).Msg("reconnect attempts exhausted, giving up")
		o.handleStop()
		return
	}
	if n := o.opts.ReconnectEscalate; n > 0 && o.attempts%n == 0 {
		o.log.Warn().Err(cause).Int("attempts", o.attempts).Msg("still unable to reach the model")
	} else {
		o.log.Info().Err(cause).Dur("delay", o.opts.ReconnectDelay).Msg("disconnected, reconnect scheduled")
	}
	o.arm(timerReconnect, o.opts.ReconnectDelay)
	o.ensureCadence()
}

func (o *Orchestrator) onReconnectDue() {
	if !o.armed || o.conn != nil || o.state != domain.ConnectionDisconnected {
		return
	}
	o.connect()
}

func (o *Orchestrator) closeConn() {
	if o.conn == nil {
		return
	}
	if err := o.conn.Close(); err != nil {
		o.log.Debug().Err(err).Msg("close connection")
	}
	o.conn = nil
}
