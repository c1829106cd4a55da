package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// DefaultWakeWords are the phonetic variants of "iris" that speech-to-text
// commonly produces.
var DefaultWakeWords = []string{"iris", "hey iris", "hi iris", "irish", "iras", "eye ris", "aires"}

// DefaultProactiveApps are foreground apps where a suggested reply makes sense.
var DefaultProactiveApps = []string{
	"messages", "slack", "discord", "whatsapp", "telegram", "mail",
	"safari", "chrome", "firefox", "arc",
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Live.Model == "" {
		cfg.Live.Model = "gemini-live-2.5-flash-preview"
	}
	if cfg.Live.Voice == "" {
		cfg.Live.Voice = "Aoede"
	}
	if cfg.Live.FrameInterval == 0 {
		cfg.Live.FrameInterval = 2 * time.Second
	}
	if cfg.Live.ReconnectDelay == 0 {
		cfg.Live.ReconnectDelay = 2 * time.Second
	}
	if cfg.Live.ReconnectEscalate == 0 {
		cfg.Live.ReconnectEscalate = 10
	}
	if cfg.Live.ToolTimeout == 0 {
		cfg.Live.ToolTimeout = 30 * time.Second
	}
	if len(cfg.WakeWord.Variants) == 0 {
		cfg.WakeWord.Variants = append([]string(nil), DefaultWakeWords...)
	}
	if cfg.Proactive.Cooldown == 0 {
		cfg.Proactive.Cooldown = 45 * time.Second
	}
	if cfg.Proactive.SafetyTimeout == 0 {
		cfg.Proactive.SafetyTimeout = 8 * time.Second
	}
	if len(cfg.Proactive.Apps) == 0 {
		cfg.Proactive.Apps = append([]string(nil), DefaultProactiveApps...)
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.OutputSampleRate == 0 {
		cfg.Audio.OutputSampleRate = 24000
	}
	if cfg.Audio.ChunkMs == 0 {
		cfg.Audio.ChunkMs = 100
	}
	if cfg.Audio.SpeechThreshold == 0 {
		cfg.Audio.SpeechThreshold = 0.04
	}
	if cfg.Audio.SpeechDebounceMs == 0 {
		cfg.Audio.SpeechDebounceMs = 120
	}
	if cfg.Audio.SilenceMs == 0 {
		cfg.Audio.SilenceMs = 700
	}
	if cfg.Frames.PollInterval == 0 {
		cfg.Frames.PollInterval = 500 * time.Millisecond
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18790
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "iris"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "iris"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Style == "" {
		cfg.Logging.Style = "pretty"
	}
}
