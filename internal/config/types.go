package config

import "time"

// Config is the root configuration for iris.
type Config struct {
	Live      LiveConfig      `yaml:"live,omitempty"`
	WakeWord  WakeWordConfig  `yaml:"wakeWord,omitempty"`
	Proactive ProactiveConfig `yaml:"proactive,omitempty"`
	Audio     AudioConfig     `yaml:"audio,omitempty"`
	Frames    FramesConfig    `yaml:"frames,omitempty"`
	Probe     ProbeConfig     `yaml:"probe,omitempty"`
	Tools     []CommandTool   `yaml:"tools,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	MQTT      MQTTConfig      `yaml:"mqtt,omitempty"`
	Hooks     HooksConfig     `yaml:"hooks,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// LiveConfig controls the streaming model session.
type LiveConfig struct {
	Model                string        `yaml:"model,omitempty"`
	APIKey               string        `yaml:"apiKey,omitempty"`
	Voice                string        `yaml:"voice,omitempty"`
	SystemPrompt         string        `yaml:"systemPrompt,omitempty"`
	PrimingText          string        `yaml:"primingText,omitempty"`
	FrameInterval        time.Duration `yaml:"frameInterval,omitempty"`
	ReconnectDelay       time.Duration `yaml:"reconnectDelay,omitempty"`
	ReconnectMaxAttempts int           `yaml:"reconnectMaxAttempts,omitempty"` // 0 = unlimited
	ReconnectEscalate    int           `yaml:"reconnectEscalate,omitempty"`    // warn after this many consecutive failures
	ToolTimeout          time.Duration `yaml:"toolTimeout,omitempty"`
}

// WakeWordConfig controls the wake-word gate.
type WakeWordConfig struct {
	Required bool     `yaml:"required,omitempty"`
	Variants []string `yaml:"variants,omitempty"`
}

// ProactiveConfig controls the proactive suggestion monitor.
type ProactiveConfig struct {
	Enabled       bool          `yaml:"enabled,omitempty"`
	Cooldown      time.Duration `yaml:"cooldown,omitempty"`
	SafetyTimeout time.Duration `yaml:"safetyTimeout,omitempty"`
	Apps          []string      `yaml:"apps,omitempty"` // substrings matched against the foreground app id
	Instruction   string        `yaml:"instruction,omitempty"`
}

// AudioConfig describes the PCM format and local speech detection.
type AudioConfig struct {
	SampleRate       int     `yaml:"sampleRate,omitempty"`
	OutputSampleRate int     `yaml:"outputSampleRate,omitempty"`
	ChunkMs          int     `yaml:"chunkMs,omitempty"`
	SpeechThreshold  float64 `yaml:"speechThreshold,omitempty"`
	SpeechDebounceMs int     `yaml:"speechDebounceMs,omitempty"`
	SilenceMs        int     `yaml:"silenceMs,omitempty"`
	Input            string  `yaml:"input,omitempty"`  // "-" for stdin or a file/fifo path
	Output           string  `yaml:"output,omitempty"` // "-" for stdout, "" to discard
}

// FramesConfig locates the screenshot written by the capture helper.
type FramesConfig struct {
	Path         string        `yaml:"path,omitempty"`
	PollInterval time.Duration `yaml:"pollInterval,omitempty"`
}

// ProbeConfig selects the foreground-context probe.
type ProbeConfig struct {
	Command string `yaml:"command,omitempty"` // prints "<app id>\n<focus role>"
	App     string `yaml:"app,omitempty"`     // static app id when no command is set
}

// CommandTool exposes a shell command to the model as a tool.
type CommandTool struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Command     string            `yaml:"command"`
	Params      map[string]string `yaml:"params,omitempty"` // name -> description
}

// StoreConfig selects the conversation log backend.
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty"` // "sqlite" | "memory"
	Path    string `yaml:"path,omitempty"`
}

// GatewayConfig controls the local overlay feed server.
type GatewayConfig struct {
	Enabled        bool        `yaml:"enabled,omitempty"`
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures overlay client authentication.
type GatewayAuth struct {
	Token string `yaml:"token,omitempty"`
}

// MQTTConfig configures the optional event publisher.
type MQTTConfig struct {
	Broker      string   `yaml:"broker,omitempty"` // host:port; empty disables
	ClientID    string   `yaml:"clientId,omitempty"`
	Username    string   `yaml:"username,omitempty"`
	Password    string   `yaml:"password,omitempty"`
	TopicPrefix string   `yaml:"topicPrefix,omitempty"`
	Events      []string `yaml:"events,omitempty"` // empty publishes every hook event
}

// HooksConfig maps hook event names to shell commands.
type HooksConfig map[string][]HookEntry

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level   string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File    string `yaml:"file,omitempty"`
	Style   string `yaml:"style,omitempty"` // "pretty" | "json"
	Verbose bool   `yaml:"verbose,omitempty"`
}
