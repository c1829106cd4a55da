package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/hooks"
)

type proactiveState struct {
	inProgress  bool
	probing     bool
	probeSeq    uint64
	lastAttempt time.Time
}

func defaultProactiveInstruction(tool string) string {
	return fmt.Sprintf("Silent context check. Look at the latest screen frame. If the user is in a conversation "+
		"and a reply would clearly help, call %s with the suggested reply. Otherwise produce no output at all: "+
		"no speech, no text.", tool)
}

// proactiveBlocked returns the first reason the monitor may not fire, or
// the empty string when every gate holds.
func (o *Orchestrator) proactiveBlocked() string {
	switch {
	case !o.opts.Proactive.Enabled:
		return "disabled"
	case o.state != domain.ConnectionReady:
		return "not ready"
	case o.turn.mode != domain.ModeIdle:
		return "turn active"
	case o.turn.origin != OriginUser:
		return "warming up"
	case o.proactive.inProgress:
		return "in progress"
	case o.proactive.probing:
		return "probing"
	case o.suggestion.pending:
		return "suggestion pending"
	case !o.proactive.lastAttempt.IsZero() && o.clock.Now().Sub(o.proactive.lastAttempt) < o.opts.Proactive.Cooldown:
		return "cooldown"
	}
	return ""
}

// evaluateProactive starts a foreground probe when the cheap gates hold. The
// probe runs off the control loop and its result re-checks every gate.
func (o *Orchestrator) evaluateProactive() {
	if reason := o.proactiveBlocked(); reason != "" {
		o.log.Trace().Str("reason", reason).Msg("proactive check skipped")
		return
	}
	if o.deps.Probe == nil {
		return
	}
	o.proactive.probing = true
	o.proactive.probeSeq++
	seq := o.proactive.probeSeq
	probe := o.deps.Probe
	ctx := o.ctx
	o.spawn(func() {
		o.box.post(probeResult{seq: seq, fg: probe.Foreground(ctx)})
	})
}

func (o *Orchestrator) onProbeResult(r probeResult) {
	if r.seq != o.proactive.probeSeq || !o.proactive.probing {
		return
	}
	o.proactive.probing = false
	if reason := o.proactiveBlocked(); reason != "" {
		o.log.Trace().Str("reason", reason).Msg("proactive check abandoned after probe")
		return
	}
	if !o.conversationalApp(r.fg.AppID) {
		o.log.Trace().Str("app", r.fg.AppID).Msg("proactive check skipped, app not conversational")
		return
	}
	if r.fg.FocusIsTextInput() {
		o.log.Trace().Str("role", r.fg.FocusRole).Msg("proactive check skipped, user is typing")
		return
	}
	o.fireProactive(r.fg)
}

func (o *Orchestrator) conversationalApp(app string) bool {
	app = strings.ToLower(strings.TrimSpace(app))
	if app == "" {
		return false
	}
	for _, a := range o.opts.Proactive.Apps {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" && strings.Contains(app, a) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) fireProactive(fg domain.Foreground) {
	o.proactive.lastAttempt = o.clock.Now()
	o.proactive.inProgress = true
	o.setTurn(NewTurn().WithOrigin(OriginProactive))

	if frame, ok := o.deps.Frames.LatestFrame(); ok {
		o.send(Outbound{Kind: OutFrame, Data: frame.Data, MimeType: frame.MimeType})
	}
	o.send(Outbound{Kind: OutText, Text: o.opts.Proactive.Instruction})
	if o.opts.Proactive.SafetyTimeout > 0 {
		o.arm(timerProactiveSafety, o.opts.Proactive.SafetyTimeout)
	}

	o.log.Debug().Str("app", fg.AppID).Msg("proactive check fired")
	o.emit(hooks.EventProactiveFired, map[string]any{"app": fg.AppID})
}

// onProactiveTimeout clears a check the model never answered.
func (o *Orchestrator) onProactiveTimeout() {
	if !o.proactive.inProgress {
		return
	}
	o.proactive.inProgress = false
	o.log.Info().Dur("timeout", o.opts.Proactive.SafetyTimeout).Msg("proactive check got no response")
	if o.turn.origin == OriginProactive {
		o.setTurn(o.turn.Next(o.turn.mode))
	}
}

// clearProactive drops any in-flight check without touching the cooldown.
func (o *Orchestrator) clearProactive() {
	o.proactive.inProgress = false
	o.proactive.probing = false
	o.proactive.probeSeq++
	o.disarm(timerProactiveSafety)
}
