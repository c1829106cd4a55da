// Package gemini implements the live streaming channel on top of the
// Gemini Live API.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/live"
	"github.com/soyeahso/iris/internal/logging"
)

// ErrNoAPIKey is returned by Connect when no API key is configured.
var ErrNoAPIKey = errors.New("gemini: API key is not set")

// Config configures the Live API session.
type Config struct {
	APIKey       string
	Model        string
	Voice        string
	SystemPrompt string
	InputRate    int // microphone sample rate in Hz
	Tools        []domain.ToolSpec
	SendBuffer   int // outbound queue length per connection
}

// session is the subset of *genai.Session used by a connection.
type session interface {
	SendClientContent(genai.LiveClientContentInput) error
	SendRealtimeInput(genai.LiveRealtimeInput) error
	SendToolResponse(genai.LiveToolResponseInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type dialFunc func(ctx context.Context) (session, error)

// Channel opens Live API connections. It satisfies live.Channel.
type Channel struct {
	cfg  Config
	log  *logging.Logger
	dial dialFunc
}

// NewChannel creates a channel. No network activity happens until Connect.
func NewChannel(cfg Config, log *logging.Logger) *Channel {
	if cfg.InputRate <= 0 {
		cfg.InputRate = 16000
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	c := &Channel{cfg: cfg, log: log.Sub("gemini")}
	c.dial = c.dialLive
	return c
}

// Connect opens one connection lifetime.
func (c *Channel) Connect(ctx context.Context) (live.Conn, error) {
	s, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("model", c.cfg.Model).Msg("live session opened")
	return newConn(s, c.cfg, c.log), nil
}

func (c *Channel) dialLive(ctx context.Context) (session, error) {
	if c.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	s, err := client.Live.Connect(ctx, c.cfg.Model, connectConfig(c.cfg))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.cfg.Model, err)
	}
	return s, nil
}

// connectConfig requests spoken replies with transcripts in both directions.
func connectConfig(cfg Config) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if cfg.SystemPrompt != "" {
		lc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemPrompt}}}
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if decls := declarations(cfg.Tools); len(decls) > 0 {
		lc.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return lc
}

func declarations(specs []domain.ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(s.Params)),
		}
		for _, p := range s.Params {
			schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  schema,
		})
	}
	return decls
}
