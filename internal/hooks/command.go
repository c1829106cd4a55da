package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/soyeahso/iris/internal/config"
)

const defaultCommandTimeout = 10 * time.Second

// CommandHandler returns a Handler that runs command through sh -c with the
// JSON payload on stdin. The command runs detached from the caller so a slow
// hook never holds up the event source; failures are logged by the manager's
// logger.
func (m *Manager) CommandHandler(command string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return func(_ context.Context, p Payload) error {
		body, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
		go func() {
			if err := runCommand(command, timeout, body); err != nil {
				m.log.Warn().Err(err).Str("event", p.Event).Str("command", command).Msg("hook command failed")
			}
		}()
		return nil
	}
}

func runCommand(command string, timeout time.Duration, stdin []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("exited %d: %s", exitErr.ExitCode(), stderr.String())
		}
		return err
	}
	return nil
}

// RegisterCommands wires the configured command hooks into the manager.
// Unknown event names are skipped with a warning.
func (m *Manager) RegisterCommands(cfg config.HooksConfig) int {
	n := 0
	for event, entries := range cfg {
		if event != EventAny && !IsKnown(event) {
			m.log.Warn().Str("event", event).Msg("ignoring hook for unknown event")
			continue
		}
		for i, e := range entries {
			name := fmt.Sprintf("command.%s.%d", event, i)
			m.On(event, name, m.CommandHandler(e.Command, time.Duration(e.Timeout)*time.Millisecond))
			n++
		}
	}
	return n
}
