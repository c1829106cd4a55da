package live

import "time"

type timerKind int

const (
	timerCadence timerKind = iota
	timerReconnect
	timerProactiveSafety
	timerToolTimeout
	numTimers
)

func (k timerKind) String() string {
	switch k {
	case timerCadence:
		return "cadence"
	case timerReconnect:
		return "reconnect"
	case timerProactiveSafety:
		return "proactive_safety"
	case timerToolTimeout:
		return "tool_timeout"
	}
	return "unknown"
}

// timerSlot holds at most one pending timer. Every arm or stop bumps seq so
// a callback that was already in flight when the timer was replaced is
// recognized as stale when it reaches the control loop.
type timerSlot struct {
	seq   uint64
	timer Timer
}

func (s *timerSlot) active() bool { return s.timer != nil }

func (s *timerSlot) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
}

// claim reports whether a firing with seq belongs to the pending timer and
// clears the slot if so.
func (s *timerSlot) claim(seq uint64) bool {
	if s.timer == nil || seq != s.seq {
		return false
	}
	s.timer = nil
	return true
}

func (o *Orchestrator) arm(kind timerKind, d time.Duration) {
	slot := &o.timers[kind]
	slot.stop()
	seq := slot.seq
	slot.timer = o.clock.AfterFunc(d, func() {
		o.box.post(timerFired{kind: kind, seq: seq})
	})
}

func (o *Orchestrator) disarm(kind timerKind) {
	o.timers[kind].stop()
}

func (o *Orchestrator) stopAllTimers() {
	for k := range o.timers {
		o.timers[k].stop()
	}
}

func (o *Orchestrator) onTimer(e timerFired) {
	if !o.timers[e.kind].claim(e.seq) {
		o.log.Trace().Str("timer", e.kind.String()).Msg("stale timer ignored")
		return
	}
	switch e.kind {
	case timerCadence:
		o.onCadenceTick()
	case timerReconnect:
		o.onReconnectDue()
	case timerProactiveSafety:
		o.onProactiveTimeout()
	case timerToolTimeout:
		o.onToolTimeout()
	}
}
