package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/soyeahso/iris/internal/config"
	"github.com/soyeahso/iris/internal/gateway"
	"github.com/soyeahso/iris/internal/hooks"
	"github.com/soyeahso/iris/internal/version"
	"github.com/spf13/cobra"
)

const statusTimeout = 3 * time.Second

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and the state of a running session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "iris %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := loadConfig()
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}
			printSummary(out, cfg)
			printHooks(out, cfg.Hooks)

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			if cfg.Gateway.Enabled {
				fmt.Fprintln(out)
				printRemoteStatus(cmd.Context(), out, cfg.Gateway)
			}
			return nil
		},
	}

	return cmd
}

func printSummary(w io.Writer, cfg config.Config) {
	key := "missing"
	if cfg.Live.APIKey != "" {
		key = "set"
	}
	fmt.Fprintf(w, "Live:      model=%s voice=%s apiKey=%s\n", cfg.Live.Model, cfg.Live.Voice, key)

	wake := "off"
	if cfg.WakeWord.Required {
		wake = strings.Join(cfg.WakeWord.Variants, ", ")
	}
	fmt.Fprintf(w, "WakeWord:  %s\n", wake)

	if cfg.Proactive.Enabled {
		fmt.Fprintf(w, "Proactive: cooldown=%s apps=%d\n", cfg.Proactive.Cooldown, len(cfg.Proactive.Apps))
	} else {
		fmt.Fprintln(w, "Proactive: off")
	}

	fmt.Fprintf(w, "Store:     backend=%s path=%s\n", cfg.Store.Backend, storePath(cfg))
	fmt.Fprintf(w, "Tools:     %d command tool(s)\n", len(cfg.Tools))

	if cfg.Gateway.Enabled {
		fmt.Fprintf(w, "Gateway:   port=%d bind=%s token=%v\n",
			cfg.Gateway.Port, cfg.Gateway.Bind, gateway.ResolveToken(cfg.Gateway.Auth) != "")
	} else {
		fmt.Fprintln(w, "Gateway:   off")
	}
	if cfg.MQTT.Broker != "" {
		fmt.Fprintf(w, "MQTT:      broker=%s prefix=%s\n", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
	} else {
		fmt.Fprintln(w, "MQTT:      off")
	}
}

// printHooks lists the events that have hook commands attached, as the
// live command would register them.
func printHooks(w io.Writer, hc config.HooksConfig) {
	hm := hooks.NewManager(log)
	hm.RegisterCommands(hc)
	events := hm.Events()
	if len(events) == 0 {
		fmt.Fprintln(w, "Hooks:     none")
		return
	}
	fmt.Fprintln(w, "Hooks:")
	for _, event := range events {
		fmt.Fprintf(w, "  %-20s %d command(s)\n", event, hm.Count(event))
	}
}

// printRemoteStatus asks a running instance for its session state over
// the overlay feed.
func printRemoteStatus(ctx context.Context, w io.Writer, gc config.GatewayConfig) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	host := "127.0.0.1"
	if gc.Bind == "custom" && gc.CustomBindHost != "" {
		host = gc.CustomBindHost
	}
	r, err := gateway.Dial(ctx, gateway.URL(host, gc.Port), gateway.ResolveToken(gc.Auth),
		gateway.ClientInfo{ID: "iris-cli", Version: version.Version})
	if err != nil {
		fmt.Fprintln(w, "Session:   not running")
		log.Debug().Err(err).Msg("gateway unreachable")
		return
	}
	defer r.Close()

	var st gateway.StatusResponse
	if err := r.Call(ctx, "status", nil, &st); err != nil {
		fmt.Fprintf(w, "Session:   error: %v\n", err)
		return
	}
	s := st.Session
	fmt.Fprintf(w, "Session:   %s mode=%s clients=%d uptime=%s\n",
		s.Connection, s.Mode, st.Clients, (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
	if s.SessionID != "" {
		fmt.Fprintf(w, "           id=%s\n", s.SessionID)
	}
	if s.SuggestionPending {
		fmt.Fprintln(w, "           suggestion pending")
	}
}
