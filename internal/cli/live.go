package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/soyeahso/iris/internal/audio"
	"github.com/soyeahso/iris/internal/captions"
	"github.com/soyeahso/iris/internal/config"
	"github.com/soyeahso/iris/internal/frames"
	"github.com/soyeahso/iris/internal/gateway"
	"github.com/soyeahso/iris/internal/gemini"
	"github.com/soyeahso/iris/internal/hooks"
	"github.com/soyeahso/iris/internal/live"
	"github.com/soyeahso/iris/internal/logging"
	"github.com/soyeahso/iris/internal/mqtt"
	"github.com/soyeahso/iris/internal/probe"
	"github.com/soyeahso/iris/internal/store"
	"github.com/soyeahso/iris/internal/tools"
	"github.com/spf13/cobra"
)

// defaultFrameFile is where the capture helper writes the newest screenshot.
const defaultFrameFile = "latest.png"

func newLiveCmd() *cobra.Command {
	var (
		noGateway bool
		input     string
		output    string
	)

	cmd := &cobra.Command{
		Use:     "live",
		Aliases: []string{"run"},
		Short:   "Start a live voice session",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("input") {
				cfg.Audio.Input = input
			}
			if cmd.Flags().Changed("output") {
				cfg.Audio.Output = output
			}
			if noGateway {
				cfg.Gateway.Enabled = false
			}
			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config has %d validation issue(s)", len(issues))
			}
			if cfg.Live.APIKey == "" {
				return errors.New("no API key: set GEMINI_API_KEY or live.apiKey")
			}
			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating directories: %w", err)
			}

			// Reopen the logger with the configured style and file; flags win.
			if err := reopenLogger(cfg.Logging); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runLive(ctx, cfg)
		},
	}

	cmd.Flags().BoolVar(&noGateway, "no-gateway", false, "do not serve the overlay feed")
	cmd.Flags().StringVar(&input, "input", "", `microphone PCM source ("-" for stdin, "" for none)`)
	cmd.Flags().StringVar(&output, "output", "", `playback PCM sink ("-" for stdout, "" to discard)`)

	return cmd
}

func runLive(ctx context.Context, cfg config.Config) error {
	hm := hooks.NewManager(log)
	if n := hm.RegisterCommands(cfg.Hooks); n > 0 {
		log.Info().Int("count", n).Msg("registered hook commands")
	}

	convLog, storeCloser, err := store.OpenLog(cfg.Store.Backend, storePath(cfg), log)
	if err != nil {
		return fmt.Errorf("opening conversation log: %w", err)
	}
	defer storeCloser.Close()

	reg := tools.NewRegistry(log)
	reg.Register(tools.NewProposeReply(func(text string) {
		log.Debug().Str("text", text).Msg("reply proposed")
	}))
	tools.RegisterCommands(reg, cfg.Tools)

	channel := gemini.NewChannel(gemini.Config{
		APIKey:       cfg.Live.APIKey,
		Model:        cfg.Live.Model,
		Voice:        cfg.Live.Voice,
		SystemPrompt: cfg.Live.SystemPrompt,
		InputRate:    cfg.Audio.SampleRate,
		Tools:        reg.Declarations(),
	}, log)

	frameSrc := frames.NewFileSource(framesPath(cfg), cfg.Frames.PollInterval, log)

	// Playback callbacks fire from the writer goroutine, after orch is set.
	var orch *live.Orchestrator
	playback, playbackCloser, err := openPlayback(cfg.Audio, audio.PlaybackOptions{
		Format:    audio.Format{SampleRate: cfg.Audio.OutputSampleRate},
		OnStarted: func() { orch.PlaybackStarted() },
		OnStopped: func() { orch.PlaybackStopped() },
	})
	if err != nil {
		return err
	}
	defer playbackCloser.Close()

	deps := live.Deps{
		Channel: channel,
		Frames:  frameSrc,
		Tools:   reg,
		Probe:   newProbe(cfg.Probe),
		Log:     convLog,
		Events:  hm,
		Logger:  log,
	}
	if playback != nil {
		deps.Playback = playback
	}
	orch, err = live.New(liveOptions(cfg), deps)
	if err != nil {
		return err
	}

	// Stop and wait for every goroutine before the store and sink close.
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	if cfg.Gateway.Enabled {
		srv := gateway.New(cfg.Gateway, log,
			gateway.WithController(orch),
			gateway.WithHistory(convLog),
			gateway.WithHooks(hm),
		)
		captions.NewFlusher(captions.Config{}, srv, log).Attach(hm)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				log.Error().Err(err).Msg("gateway stopped")
			}
		}()
	}

	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.New(cfg.MQTT, log)
		if err != nil {
			return err
		}
		pub.Attach(hm)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pub.Run(ctx); err != nil {
				log.Error().Err(err).Msg("mqtt publisher stopped")
			}
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		frameSrc.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := orch.Run(ctx); err != nil {
			log.Error().Err(err).Msg("orchestrator stopped")
		}
	}()

	if err := startCapture(ctx, &wg, cfg.Audio, orch); err != nil {
		return err
	}

	orch.Start()
	log.Info().Str("model", cfg.Live.Model).Bool("gateway", cfg.Gateway.Enabled).Msg("live session running")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}

// startCapture pumps microphone PCM into the orchestrator. Stdin reads
// cannot be interrupted, so that pump is not waited for on shutdown.
func startCapture(ctx context.Context, wg *sync.WaitGroup, cfg config.AudioConfig, orch *live.Orchestrator) error {
	if cfg.Input == "" {
		log.Info().Msg("no audio input configured, microphone disabled")
		return nil
	}

	format := audio.Format{SampleRate: cfg.SampleRate}
	pump := &audio.Pump{
		Chunker: audio.NewChunker(format.BytesFor(time.Duration(cfg.ChunkMs) * time.Millisecond)),
		Detector: audio.NewEnergyDetector(format, cfg.SpeechThreshold,
			time.Duration(cfg.SpeechDebounceMs)*time.Millisecond,
			time.Duration(cfg.SilenceMs)*time.Millisecond),
		OnChunk:  orch.MicChunk,
		OnSpeech: orch.SpeechStarted,
	}

	run := func() {
		if err := pump.Run(ctx); err != nil {
			log.Error().Err(err).Msg("audio capture stopped")
		}
	}

	if cfg.Input == "-" {
		pump.Reader = os.Stdin
		go run()
		return nil
	}

	f, err := os.Open(cfg.Input)
	if err != nil {
		return fmt.Errorf("opening audio input: %w", err)
	}
	pump.Reader = f
	wg.Add(2)
	go func() {
		defer wg.Done()
		run()
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		f.Close()
	}()
	return nil
}

// openPlayback opens the configured sink. It returns a nil playback when
// output is discarded; the closer is never nil.
func openPlayback(cfg config.AudioConfig, opts audio.PlaybackOptions) (*audio.WriterPlayback, io.Closer, error) {
	var w io.Writer
	switch cfg.Output {
	case "":
		return nil, closers(nil), nil
	case "-":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening audio output: %w", err)
		}
		w = f
		// Regular files accept audio instantly; pace them so playback
		// state follows real time. Pipes and devices block on their own.
		opts.Pace = isRegularFile(cfg.Output)
		p := audio.NewWriterPlayback(w, opts, log)
		return p, closers{p, f}, nil
	}
	p := audio.NewWriterPlayback(w, opts, log)
	return p, p, nil
}

type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for _, c := range cs {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func liveOptions(cfg config.Config) live.Options {
	return live.Options{
		Model:                cfg.Live.Model,
		FrameInterval:        cfg.Live.FrameInterval,
		ReconnectDelay:       cfg.Live.ReconnectDelay,
		ReconnectMaxAttempts: cfg.Live.ReconnectMaxAttempts,
		ReconnectEscalate:    cfg.Live.ReconnectEscalate,
		ToolTimeout:          cfg.Live.ToolTimeout,
		PrimingText:          cfg.Live.PrimingText,
		WakeWordRequired:     cfg.WakeWord.Required,
		WakeWords:            cfg.WakeWord.Variants,
		ProposalTool:         tools.ProposeReplyName,
		Proactive: live.ProactiveOptions{
			Enabled:       cfg.Proactive.Enabled,
			Cooldown:      cfg.Proactive.Cooldown,
			SafetyTimeout: cfg.Proactive.SafetyTimeout,
			Apps:          cfg.Proactive.Apps,
			Instruction:   cfg.Proactive.Instruction,
		},
	}
}

func newProbe(cfg config.ProbeConfig) live.ContextProbe {
	if cfg.Command != "" {
		return probe.NewCommandProbe(cfg.Command, log)
	}
	return probe.StaticProbe{Value: probe.Parse(cfg.App)}
}

func storePath(cfg config.Config) string {
	if cfg.Store.Path != "" {
		return cfg.Store.Path
	}
	return paths.DB
}

func framesPath(cfg config.Config) string {
	if cfg.Frames.Path != "" {
		return cfg.Frames.Path
	}
	return filepath.Join(paths.Frames, defaultFrameFile)
}

// loadConfig reads the config file. A missing file yields defaults.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading %s: %w", paths.Config, err)
	}
	return cfg, nil
}

func reopenLogger(lc config.LoggingConfig) error {
	opts := logging.Options{Level: lc.Level, Style: lc.Style, File: lc.File, Verbose: lc.Verbose}
	if logLevel != "" {
		opts.Level = logLevel
	}
	if verbose {
		opts.Verbose = true
	}
	l, c, err := logging.Open(opts)
	if err != nil {
		return err
	}
	logCloser.Close()
	log, logCloser = l, c
	return nil
}
