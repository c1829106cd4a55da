package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/soyeahso/iris/internal/config"
	"github.com/soyeahso/iris/internal/domain"
)

// maxOutput caps the result returned to the model.
const maxOutput = 8 * 1024

// CommandTool runs a shell command. Arguments are exported to the command
// as IRIS_ARG_<NAME> environment variables and stdout is the result.
type CommandTool struct {
	name        string
	description string
	command     string
	params      []domain.ToolParam
}

// NewCommandTool builds a tool from its configuration.
func NewCommandTool(c config.CommandTool) *CommandTool {
	names := make([]string, 0, len(c.Params))
	for n := range c.Params {
		names = append(names, n)
	}
	sort.Strings(names)
	params := make([]domain.ToolParam, 0, len(names))
	for _, n := range names {
		params = append(params, domain.ToolParam{Name: n, Description: c.Params[n]})
	}

	desc := c.Description
	if desc == "" {
		desc = "Runs " + c.Name
	}
	return &CommandTool{name: c.Name, description: desc, command: c.Command, params: params}
}

func (t *CommandTool) Name() string               { return t.name }
func (t *CommandTool) Description() string        { return t.description }
func (t *CommandTool) Params() []domain.ToolParam { return t.params }

func (t *CommandTool) Execute(ctx context.Context, args domain.Args) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", t.command)
	cmd.Env = append(os.Environ(), argEnv(args)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = strings.TrimSpace(stdout.String())
			}
			return "", fmt.Errorf("exited %d: %s", exitErr.ExitCode(), msg)
		}
		return "", err
	}

	out := strings.TrimSpace(stdout.String())
	if len(out) > maxOutput {
		out = out[:maxOutput] + "\n[truncated]"
	}
	if out == "" {
		out = "done"
	}
	return out, nil
}

// argEnv converts arguments to IRIS_ARG_ variables. Names are upper-cased
// and anything other than letters and digits becomes an underscore.
func argEnv(args domain.Args) []string {
	env := make([]string, 0, len(args))
	for _, a := range args {
		key := strings.Map(func(r rune) rune {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				return unicode.ToUpper(r)
			}
			return '_'
		}, a.Key)
		env = append(env, "IRIS_ARG_"+key+"="+args.String(a.Key))
	}
	return env
}

// RegisterCommands adds every configured command tool to r.
func RegisterCommands(r *Registry, cfgs []config.CommandTool) {
	for _, c := range cfgs {
		r.Register(NewCommandTool(c))
	}
}
