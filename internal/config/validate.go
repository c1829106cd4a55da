package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Live session validation
	if cfg.Live.Model == "" {
		issues = append(issues, ValidationIssue{
			Path:    "live.model",
			Message: "model is required",
		})
	}
	if cfg.Live.FrameInterval < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "live.frameInterval",
			Message: "must not be negative",
		})
	}
	if cfg.Live.ReconnectDelay < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "live.reconnectDelay",
			Message: "must not be negative",
		})
	}
	if cfg.Live.ReconnectMaxAttempts < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "live.reconnectMaxAttempts",
			Message: fmt.Sprintf("must be 0 (unlimited) or positive, got %d", cfg.Live.ReconnectMaxAttempts),
		})
	}
	if cfg.Live.ToolTimeout < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "live.toolTimeout",
			Message: "must not be negative",
		})
	}

	// Wake word validation
	if cfg.WakeWord.Required && len(cfg.WakeWord.Variants) == 0 {
		issues = append(issues, ValidationIssue{
			Path:    "wakeWord.variants",
			Message: "at least one variant is required when the wake word is required",
		})
	}
	for i, v := range cfg.WakeWord.Variants {
		if strings.TrimSpace(v) == "" {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("wakeWord.variants[%d]", i),
				Message: "variant must not be empty",
			})
		}
	}

	// Audio validation
	if cfg.Audio.SampleRate <= 0 {
		issues = append(issues, ValidationIssue{
			Path:    "audio.sampleRate",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Audio.SampleRate),
		})
	}
	if cfg.Audio.ChunkMs <= 0 {
		issues = append(issues, ValidationIssue{
			Path:    "audio.chunkMs",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Audio.ChunkMs),
		})
	}
	if cfg.Audio.SpeechThreshold < 0 || cfg.Audio.SpeechThreshold > 1 {
		issues = append(issues, ValidationIssue{
			Path:    "audio.speechThreshold",
			Message: fmt.Sprintf("must be between 0 and 1, got %g", cfg.Audio.SpeechThreshold),
		})
	}

	// Tool validation
	seen := map[string]bool{}
	for i, t := range cfg.Tools {
		path := fmt.Sprintf("tools[%d]", i)
		if t.Name == "" {
			issues = append(issues, ValidationIssue{Path: path + ".name", Message: "name is required"})
		} else if seen[t.Name] {
			issues = append(issues, ValidationIssue{Path: path + ".name", Message: fmt.Sprintf("duplicate tool %q", t.Name)})
		}
		seen[t.Name] = true
		if t.Command == "" {
			issues = append(issues, ValidationIssue{Path: path + ".command", Message: "command is required"})
		}
	}

	// Store validation
	validBackends := []string{"sqlite", "memory"}
	if cfg.Store.Backend != "" && !slices.Contains(validBackends, cfg.Store.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "store.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBackends, cfg.Store.Backend),
		})
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind is custom",
		})
	}
	if cfg.Gateway.Enabled && cfg.Gateway.Bind == "lan" && cfg.Gateway.Auth.Token == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.auth.token",
			Message: "a token is required when binding to the LAN",
		})
	}

	// Hook validation
	for event, entries := range cfg.Hooks {
		for i, h := range entries {
			if h.Command == "" {
				issues = append(issues, ValidationIssue{
					Path:    fmt.Sprintf("hooks.%s[%d].command", event, i),
					Message: "command is required",
				})
			}
		}
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validStyles := []string{"pretty", "json"}
	if cfg.Logging.Style != "" && !slices.Contains(validStyles, cfg.Logging.Style) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.style",
			Message: fmt.Sprintf("must be one of %v, got %q", validStyles, cfg.Logging.Style),
		})
	}

	return issues
}
