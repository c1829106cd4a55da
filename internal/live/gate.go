package live

import (
	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/hooks"
)

// outputMuted reports whether model output must not reach the user at all:
// the warm-up reply and anything produced while a proactive check is open.
func (o *Orchestrator) outputMuted() bool {
	return o.turn.origin == OriginWarmup || o.proactive.inProgress
}

// audioSuppressed applies every flag that drops an inbound audio chunk.
func (o *Orchestrator) audioSuppressed() bool {
	return o.outputMuted() || o.wakeWordBlocks() || o.turn.suppressOutput
}

func (o *Orchestrator) onModelText(text string) {
	if o.outputMuted() {
		return
	}
	next := o.turn.AppendModelText(text)
	if !o.wakeWordBlocks() && !next.suppressOutput {
		if !o.toolOutstanding() {
			next = next.WithMode(domain.ModeModelSpeaking)
		}
		o.emit(hooks.EventModelText, map[string]any{"text": text})
	}
	o.setTurn(next)
}

func (o *Orchestrator) onModelAudio(pcm []byte) {
	if o.audioSuppressed() {
		o.droppedAudio++
		return
	}
	o.deps.Playback.Enqueue(pcm)
	if !o.toolOutstanding() && o.turn.mode != domain.ModeModelSpeaking {
		o.setTurn(o.turn.WithMode(domain.ModeModelSpeaking))
	}
}

// onSpeechStarted moves to UserSpeaking from any mode. Speech over a
// speaking model is a barge-in: playback stops now and the rest of the
// stale reply's audio is dropped until the turn completes.
func (o *Orchestrator) onSpeechStarted() {
	prior := o.turn.mode
	next := claimWarmup(o.turn).WithMode(domain.ModeUserSpeaking)
	if prior == domain.ModeModelSpeaking {
		o.deps.Playback.Stop()
		next = next.Suppress()
		o.log.Debug().Msg("barge-in")
	} else if o.playing || o.deps.Playback.IsPlaying() {
		// trailing audio from a reply that already completed
		o.deps.Playback.Stop()
	}
	o.setTurn(next)
}

// claimWarmup hands a still-open warm-up turn to the user. The rest of the
// priming reply stays muted while the user's words and the answer to them
// go through the completion policy.
func claimWarmup(t TurnContext) TurnContext {
	if t.origin != OriginWarmup {
		return t
	}
	return t.WithOrigin(OriginUser).Suppress()
}

func (o *Orchestrator) onInterrupt() {
	active := o.turn.mode == domain.ModeModelSpeaking || o.playing || o.deps.Playback.IsPlaying()
	o.deps.Playback.Stop()
	if active && !o.turn.suppressOutput {
		o.setTurn(o.turn.Suppress())
		o.log.Debug().Msg("output interrupted")
	}
}

// onMicChunk forwards microphone audio unless a tool call is outstanding.
// Audio is never held back for wake-word or warm-up reasons; the remote
// turn detection needs the full stream.
func (o *Orchestrator) onMicChunk(data []byte) {
	if o.state != domain.ConnectionReady {
		return
	}
	if o.toolOutstanding() {
		o.withheldMic++
		return
	}
	o.send(Outbound{Kind: OutAudio, Data: data, MimeType: "audio/pcm"})
}
