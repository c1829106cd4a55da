package live

import (
	"strings"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/hooks"
)

// Reasons a completed turn is withheld from the conversation log.
const (
	discardWarmup        = "warmup"
	discardProactive     = "proactive"
	discardNoWakeWord    = "no_wake_word"
	discardEmpty         = "empty"
	discardClarification = "clarification"
	discardDuplicate     = "duplicate"
)

// clarificationPhrases are replies the model gives when it heard noise
// rather than speech.
var clarificationPhrases = []string{
	"could you clarify",
	"can you clarify",
	"could you repeat",
	"can you repeat",
	"say that again",
	"i didn't catch",
	"i did not catch",
	"didn't quite catch",
	"didn't hear",
	"i'm not sure what you mean",
	"what do you mean",
	"what would you like",
	"how can i help",
}

// IsClarification reports whether text asks the user to repeat or explain.
func IsClarification(text string) bool {
	t := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	for _, p := range clarificationPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// normalizeReply folds case and whitespace for duplicate detection.
func normalizeReply(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// verdict applies the completion policy in order; the first failing rule
// names the discard reason.
func (o *Orchestrator) verdict(t TurnContext) string {
	text := t.trimmedModelText()
	switch {
	case o.opts.WakeWordRequired && !t.wakeWordSeen:
		return discardNoWakeWord
	case text == "":
		return discardEmpty
	case IsClarification(text) && t.trimmedUserTranscript() == "":
		return discardClarification
	case o.lastAssistant != "" && normalizeReply(text) == normalizeReply(o.lastAssistant):
		return discardDuplicate
	}
	return ""
}

func (o *Orchestrator) onTurnComplete() {
	t := o.turn

	var reason string
	switch {
	case o.proactive.inProgress:
		o.proactive.inProgress = false
		o.disarm(timerProactiveSafety)
		reason = discardProactive
	case t.origin == OriginWarmup:
		reason = discardWarmup
	case t.origin == OriginProactive:
		reason = discardProactive
	default:
		reason = o.verdict(t)
	}

	if reason != "" {
		o.log.Debug().Str("reason", reason).Int("chars", len(t.modelText)).Msg("turn discarded")
		o.emit(hooks.EventTurnDiscarded, map[string]any{"reason": reason})
	} else {
		o.commitTurn(t)
	}

	mode := domain.ModeIdle
	if o.toolOutstanding() {
		mode = domain.ModeToolRunning
	}
	o.setTurn(t.Next(mode))
}

// commitTurn appends the user message (if any) and then the assistant
// message to the conversation log.
func (o *Orchestrator) commitTurn(t TurnContext) {
	now := o.clock.Now()
	user := t.trimmedUserTranscript()
	reply := t.trimmedModelText()

	if user != "" {
		o.appendMessage(domain.Message{SessionID: o.sessionID, Role: domain.RoleUser, Content: user, Timestamp: now})
	}
	o.appendMessage(domain.Message{SessionID: o.sessionID, Role: domain.RoleAssistant, Content: reply, Timestamp: now})
	o.lastAssistant = reply

	o.log.Info().Str("user", user).Str("reply", reply).Msg("turn completed")
	o.emit(hooks.EventTurnCompleted, map[string]any{"user": user, "reply": reply})
}

func (o *Orchestrator) appendMessage(msg domain.Message) {
	if err := o.deps.Log.Append(o.ctx, msg); err != nil {
		o.log.Error().Err(err).Str("role", msg.Role).Msg("failed to log message")
		return
	}
	o.emit(hooks.EventMessageLogged, map[string]any{
		"role": msg.Role, "label": msg.Label(), "content": msg.Content,
	})
}
