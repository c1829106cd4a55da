package live

import (
	"strings"

	"github.com/soyeahso/iris/internal/domain"
)

// WakeWordMatcher finds any of a fixed set of phonetic variants in a
// transcript, ignoring case.
type WakeWordMatcher struct {
	variants []string
}

// NewWakeWordMatcher normalizes variants; blanks are dropped.
func NewWakeWordMatcher(variants []string) WakeWordMatcher {
	m := WakeWordMatcher{}
	for _, v := range variants {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			m.variants = append(m.variants, v)
		}
	}
	return m
}

// Match reports whether transcript contains any variant.
func (m WakeWordMatcher) Match(transcript string) bool {
	t := strings.ToLower(transcript)
	for _, v := range m.variants {
		if strings.Contains(t, v) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) wakeWordBlocks() bool {
	return o.opts.WakeWordRequired && !o.turn.wakeWordSeen
}

// onInputTranscript accumulates the user's words and latches the wake word
// against the cumulative transcript.
func (o *Orchestrator) onInputTranscript(text string) {
	next := claimWarmup(o.turn).AppendUserTranscript(text)
	if !next.wakeWordSeen && o.wake.Match(next.userTranscript) {
		next = next.WithWakeWord()
		o.log.Debug().Msg("wake word heard")
	}
	if next.mode == domain.ModeIdle {
		next = next.WithMode(domain.ModeUserSpeaking)
	}
	o.setTurn(next)
}
