package live

import "github.com/soyeahso/iris/internal/domain"

// ensureCadence starts the frame timer if the session is armed and the timer
// is not already pending.
func (o *Orchestrator) ensureCadence() {
	if !o.armed || o.timers[timerCadence].active() {
		return
	}
	o.arm(timerCadence, o.opts.FrameInterval)
}

// onCadenceTick sends the latest frame when the session is ready and idle,
// then gives the proactive monitor a chance to run. Frames are never sent
// mid-turn.
func (o *Orchestrator) onCadenceTick() {
	defer o.ensureCadence()

	if o.state != domain.ConnectionReady || o.turn.mode != domain.ModeIdle {
		o.log.Trace().Str("state", string(o.state)).Str("mode", string(o.turn.mode)).Msg("frame skipped")
		return
	}
	frame, ok := o.deps.Frames.LatestFrame()
	if !ok {
		return
	}
	if !o.send(Outbound{Kind: OutFrame, Data: frame.Data, MimeType: frame.MimeType}) {
		return
	}
	o.evaluateProactive()
}
