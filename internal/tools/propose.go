package tools

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/soyeahso/iris/internal/domain"
)

// ProposeReplyName is the name the model uses to offer a reply suggestion.
const ProposeReplyName = "propose_reply"

// ProposeReply records a reply the model suggests the user could send.
// The orchestrator marks the suggestion pending once the call succeeds.
type ProposeReply struct {
	mu        sync.Mutex
	last      string
	onPropose func(text string)
}

// NewProposeReply creates the tool. onPropose, if set, is called with every
// accepted proposal.
func NewProposeReply(onPropose func(text string)) *ProposeReply {
	return &ProposeReply{onPropose: onPropose}
}

func (p *ProposeReply) Name() string { return ProposeReplyName }

func (p *ProposeReply) Description() string {
	return "Show the user a suggested reply for the conversation on screen. " +
		"Only call this when a reply would clearly help."
}

func (p *ProposeReply) Params() []domain.ToolParam {
	return []domain.ToolParam{
		{Name: "text", Description: "The reply to suggest, written as the user would send it.", Required: true},
	}
}

func (p *ProposeReply) Execute(_ context.Context, args domain.Args) (string, error) {
	text := strings.TrimSpace(args.String("text"))
	if text == "" {
		text = strings.TrimSpace(args.String("reply"))
	}
	if text == "" {
		return "", errors.New("text is required")
	}

	p.mu.Lock()
	p.last = text
	cb := p.onPropose
	p.mu.Unlock()

	if cb != nil {
		cb(text)
	}
	return "proposal shown", nil
}

// Last returns the most recent proposal.
func (p *ProposeReply) Last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
