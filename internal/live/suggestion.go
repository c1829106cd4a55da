package live

import (
	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/hooks"
)

type suggestionState struct {
	pending bool
	text    string
}

func (o *Orchestrator) proposeSuggestion(args domain.Args) {
	text := args.String("text")
	if text == "" {
		text = args.String("reply")
	}
	o.suggestion = suggestionState{pending: true, text: text}
	o.log.Info().Str("text", text).Msg("suggestion proposed")
	o.emit(hooks.EventSuggestionProposed, map[string]any{"text": text, "args": args.Map()})
}

func (o *Orchestrator) resolveSuggestion(accepted bool) {
	if !o.suggestion.pending {
		return
	}
	text := o.suggestion.text
	if accepted && text != "" {
		o.send(Outbound{Kind: OutText, Text: text})
	}
	o.suggestion = suggestionState{}
	o.log.Debug().Bool("accepted", accepted).Msg("suggestion resolved")
	o.emit(hooks.EventSuggestionResolved, map[string]any{"accepted": accepted, "text": text})
}
