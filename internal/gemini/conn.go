package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/live"
	"github.com/soyeahso/iris/internal/logging"
)

var (
	// ErrClosed is returned by Send after the connection has been closed.
	ErrClosed = errors.New("gemini: connection closed")
	// ErrBacklog is returned by Send when the outbound queue is full.
	ErrBacklog = errors.New("gemini: outbound queue full")
)

// Conn is one Live API session. A writer goroutine drains the outbound
// queue and a reader goroutine translates server messages into events.
type Conn struct {
	s         session
	audioMime string
	log       *logging.Logger

	out    chan live.Outbound
	events chan live.ChannelEvent
	done   chan struct{}

	closeOnce   sync.Once
	sessionOnce sync.Once
}

func newConn(s session, cfg Config, log *logging.Logger) *Conn {
	c := &Conn{
		s:         s,
		audioMime: fmt.Sprintf("audio/pcm;rate=%d", cfg.InputRate),
		log:       log,
		out:       make(chan live.Outbound, cfg.SendBuffer),
		events:    make(chan live.ChannelEvent, 64),
		done:      make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// Send queues msg for the writer goroutine. It never blocks.
func (c *Conn) Send(_ context.Context, msg live.Outbound) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBacklog
	}
}

// Events returns the inbound event stream. It is closed when the session ends.
func (c *Conn) Events() <-chan live.ChannelEvent { return c.events }

// Close ends the session. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.closeSession()
	})
	return err
}

func (c *Conn) closeSession() error {
	var err error
	c.sessionOnce.Do(func() { err = c.s.Close() })
	return err
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.out:
			if err := c.write(msg); err != nil {
				c.log.Warn().Err(err).Str("kind", msg.Kind.String()).Msg("write failed")
				// Receive fails next and reports the disconnect.
				_ = c.closeSession()
				return
			}
		}
	}
}

func (c *Conn) write(msg live.Outbound) error {
	switch msg.Kind {
	case live.OutText:
		return c.s.SendClientContent(genai.LiveClientContentInput{
			Turns:        []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: msg.Text}}}},
			TurnComplete: genai.Ptr(true),
		})
	case live.OutAudio:
		return c.s.SendRealtimeInput(genai.LiveRealtimeInput{
			Audio: &genai.Blob{Data: msg.Data, MIMEType: c.audioMime},
		})
	case live.OutFrame:
		mime := msg.MimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		return c.s.SendRealtimeInput(genai.LiveRealtimeInput{
			Video: &genai.Blob{Data: msg.Data, MIMEType: mime},
		})
	case live.OutToolResponse:
		return c.s.SendToolResponse(genai.LiveToolResponseInput{
			FunctionResponses: []*genai.FunctionResponse{functionResponse(msg.Result)},
		})
	}
	return fmt.Errorf("unsupported outbound kind %s", msg.Kind)
}

func functionResponse(r domain.ToolResult) *genai.FunctionResponse {
	key := "output"
	if r.Failed {
		key = "error"
	}
	return &genai.FunctionResponse{
		ID:       r.ResponseID,
		Name:     r.Name,
		Response: map[string]any{key: r.Output},
	}
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		msg, err := c.s.Receive()
		if err != nil {
			select {
			case <-c.done:
				c.log.Debug().Msg("receive loop stopped")
			default:
				c.log.Warn().Err(err).Msg("live session lost")
				c.deliver(live.ChannelEvent{Kind: live.EventDisconnected, Err: err})
			}
			return
		}
		if msg.GoAway != nil {
			c.log.Info().Msg("server requested disconnect")
		}
		for _, ev := range translate(msg) {
			if !c.deliver(ev) {
				return
			}
		}
	}
}

func (c *Conn) deliver(ev live.ChannelEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

// translate maps one server message to channel events. Within a message the
// order is setup, user transcript, model output, tool calls, turn end.
func translate(msg *genai.LiveServerMessage) []live.ChannelEvent {
	if msg == nil {
		return nil
	}
	var evs []live.ChannelEvent
	if msg.SetupComplete != nil {
		evs = append(evs, live.ChannelEvent{Kind: live.EventReady})
	}

	sc := msg.ServerContent
	if sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			evs = append(evs, live.ChannelEvent{Kind: live.EventInputTranscript, Text: sc.InputTranscription.Text})
		}
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p == nil {
					continue
				}
				if p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
					evs = append(evs, live.ChannelEvent{Kind: live.EventAudio, Audio: p.InlineData.Data})
				}
				if p.Text != "" && !p.Thought {
					evs = append(evs, live.ChannelEvent{Kind: live.EventText, Text: p.Text})
				}
			}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			evs = append(evs, live.ChannelEvent{Kind: live.EventOutputTranscript, Text: sc.OutputTranscription.Text})
		}
	}

	if msg.ToolCall != nil {
		for _, fc := range msg.ToolCall.FunctionCalls {
			if fc == nil {
				continue
			}
			evs = append(evs, live.ChannelEvent{Kind: live.EventToolCall, Call: domain.ToolCall{
				ResponseID: fc.ID,
				Name:       fc.Name,
				Args:       domain.ArgsFromMap(fc.Args),
			}})
		}
	}

	if sc != nil && sc.TurnComplete {
		evs = append(evs, live.ChannelEvent{Kind: live.EventTurnComplete})
	}
	return evs
}
