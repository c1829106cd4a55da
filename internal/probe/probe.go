// Package probe reports which application is in front and what kind of
// element has keyboard focus.
package probe

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/logging"
)

const defaultTimeout = 2 * time.Second

// CommandProbe runs a shell command that prints the frontmost application
// on its first line and the focused element's role on its second.
type CommandProbe struct {
	command string
	timeout time.Duration
	log     *logging.Logger
}

// NewCommandProbe creates a probe around command.
func NewCommandProbe(command string, log *logging.Logger) *CommandProbe {
	return &CommandProbe{command: command, timeout: defaultTimeout, log: log.Sub("probe")}
}

// Foreground runs the command. Any failure yields an empty Foreground, which
// matches no application.
func (p *CommandProbe) Foreground(ctx context.Context) domain.Foreground {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", p.command)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		p.log.Debug().Err(err).Msg("probe command failed")
		return domain.Foreground{}
	}
	return Parse(stdout.String())
}

// Parse reads the "app\nrole" probe output.
func Parse(out string) domain.Foreground {
	lines := strings.SplitN(strings.TrimSpace(out), "\n", 3)
	var fg domain.Foreground
	if len(lines) > 0 {
		fg.AppID = strings.TrimSpace(lines[0])
	}
	if len(lines) > 1 {
		fg.FocusRole = strings.TrimSpace(lines[1])
	}
	return fg
}

// StaticProbe always reports the same foreground.
type StaticProbe struct {
	Value domain.Foreground
}

func (p StaticProbe) Foreground(context.Context) domain.Foreground { return p.Value }
