package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/store"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit    int
		query    string
		sessions bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the conversation log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			convLog, closer, err := store.OpenLog(cfg.Store.Backend, storePath(cfg), log)
			if err != nil {
				return fmt.Errorf("opening conversation log: %w", err)
			}
			defer closer.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if sessions {
				list, err := convLog.Sessions(ctx, limit)
				if err != nil {
					return err
				}
				printSessions(out, list)
				return nil
			}

			var msgs []domain.Message
			if query != "" {
				msgs, err = convLog.Search(ctx, query, limit)
			} else {
				msgs, err = convLog.Recent(ctx, limit)
			}
			if err != nil {
				return err
			}
			printMessages(out, msgs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().StringVarP(&query, "search", "s", "", "only show messages matching these words")
	cmd.Flags().BoolVar(&sessions, "sessions", false, "list sessions instead of messages")

	return cmd
}

func printMessages(w io.Writer, msgs []domain.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "(no messages)")
		return
	}
	for _, m := range msgs {
		fmt.Fprintf(w, "[%s] %s: %s\n", m.Timestamp.Local().Format(time.DateTime), m.Label(), m.Content)
	}
}

func printSessions(w io.Writer, list []domain.Session) {
	if len(list) == 0 {
		fmt.Fprintln(w, "(no sessions)")
		return
	}
	for _, s := range list {
		ended := "running"
		if !s.EndedAt.IsZero() {
			ended = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s  %s  %-24s %s\n", s.StartedAt.Local().Format(time.DateTime), s.ID, s.Model, ended)
	}
}
