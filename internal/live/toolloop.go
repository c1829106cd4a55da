package live

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/soyeahso/iris/internal/domain"
	"github.com/soyeahso/iris/internal/hooks"
)

// wakeWordBlockedOutput is returned to the model for tool calls issued in a
// turn where the wake word was required but not spoken.
const wakeWordBlockedOutput = "Not executed: the user did not address the assistant by its wake word."

type pendingTool struct {
	call      domain.ToolCall
	proactive bool
}

// toolLoop runs tool calls one at a time in arrival order.
type toolLoop struct {
	queue   []pendingTool
	running *pendingTool
	seq     uint64
	cancel  context.CancelFunc
}

func (l *toolLoop) outstanding() int {
	n := len(l.queue)
	if l.running != nil {
		n++
	}
	return n
}

// toolOutstanding gates outbound microphone audio.
func (o *Orchestrator) toolOutstanding() bool {
	return o.tools.outstanding() > 0
}

func (o *Orchestrator) onToolCall(call domain.ToolCall) {
	proactive := o.turn.origin == OriginProactive
	if o.proactive.inProgress {
		// The proposal tool call is the only output a proactive check may
		// produce; clear the check before the general gates run so output
		// suppression does not swallow it.
		o.proactive.inProgress = false
		o.disarm(timerProactiveSafety)
		proactive = true
	}
	if call.ResponseID == "" {
		call.ResponseID = uuid.NewString()
	}

	if o.wakeWordBlocks() && !proactive {
		o.log.Info().Str("tool", call.Name).Msg("tool call blocked, wake word not spoken")
		o.send(Outbound{Kind: OutToolResponse, Result: domain.ToolResult{
			ResponseID: call.ResponseID,
			Name:       call.Name,
			Output:     wakeWordBlockedOutput,
			Failed:     true,
		}})
		o.emit(hooks.EventToolFinished, map[string]any{
			"id": call.ResponseID, "name": call.Name, "failed": true, "blocked": true,
		})
		return
	}

	o.tools.queue = append(o.tools.queue, pendingTool{call: call, proactive: proactive})
	if o.tools.running == nil {
		o.dispatchNextTool()
	}
}

func (o *Orchestrator) dispatchNextTool() {
	if len(o.tools.queue) == 0 {
		return
	}
	next := o.tools.queue[0]
	o.tools.queue = o.tools.queue[1:]
	o.tools.running = &next
	o.tools.seq++

	ctx, cancel := context.WithCancel(o.ctx)
	o.tools.cancel = cancel
	o.setTurn(o.turn.WithMode(domain.ModeToolRunning))
	if o.opts.ToolTimeout > 0 {
		o.arm(timerToolTimeout, o.opts.ToolTimeout)
	}

	call := next.call
	o.log.Info().Str("tool", call.Name).Str("id", call.ResponseID).Interface("args", call.Args).Msg("tool call")
	o.emit(hooks.EventToolStarted, map[string]any{
		"id": call.ResponseID, "name": call.Name, "args": call.Args.Map(), "proactive": next.proactive,
	})

	exec := o.deps.Tools
	gen, seq := o.gen, o.tools.seq
	o.spawn(func() {
		out, err := exec.Execute(ctx, call.Name, call.Args)
		o.box.post(toolDone{gen: gen, seq: seq, output: out, err: err})
	})
}

func (o *Orchestrator) onToolDone(d toolDone) {
	if d.gen != o.gen || o.tools.running == nil || d.seq != o.tools.seq {
		o.log.Debug().Msg("late tool result ignored")
		return
	}
	res := domain.ToolResult{
		ResponseID: o.tools.running.call.ResponseID,
		Name:       o.tools.running.call.Name,
		Output:     d.output,
	}
	if d.err != nil {
		res.Output = "Error: " + d.err.Error()
		res.Failed = true
	}
	o.finishTool(res)
}

func (o *Orchestrator) onToolTimeout() {
	if o.tools.running == nil {
		return
	}
	call := o.tools.running.call
	o.log.Warn().Str("tool", call.Name).Dur("timeout", o.opts.ToolTimeout).Msg("tool call timed out")
	o.finishTool(domain.ToolResult{
		ResponseID: call.ResponseID,
		Name:       call.Name,
		Output:     fmt.Sprintf("Error: %s did not finish within %s", call.Name, o.opts.ToolTimeout),
		Failed:     true,
	})
}

// finishTool returns res to the model and moves on to the next queued call.
// With the queue empty the model is expected to keep talking.
func (o *Orchestrator) finishTool(res domain.ToolResult) {
	done := *o.tools.running
	o.tools.running = nil
	if o.tools.cancel != nil {
		o.tools.cancel()
		o.tools.cancel = nil
	}
	o.disarm(timerToolTimeout)

	o.send(Outbound{Kind: OutToolResponse, Result: res})
	o.log.Debug().Str("tool", res.Name).Bool("failed", res.Failed).Msg("tool response sent")
	o.emit(hooks.EventToolFinished, map[string]any{
		"id": res.ResponseID, "name": res.Name, "failed": res.Failed, "output": res.Output,
	})

	if res.Name == o.opts.ProposalTool && !res.Failed {
		o.proposeSuggestion(done.call.Args)
	}

	if len(o.tools.queue) > 0 {
		o.dispatchNextTool()
		return
	}
	o.setTurn(o.turn.WithMode(domain.ModeModelSpeaking))
}

// abandonTools forgets every queued and running call. No responses are sent;
// the connection they belonged to is gone.
func (o *Orchestrator) abandonTools() {
	if o.tools.running != nil {
		o.log.Warn().Str("tool", o.tools.running.call.Name).Msg("tool call orphaned by disconnect")
	}
	if o.tools.cancel != nil {
		o.tools.cancel()
	}
	o.tools = toolLoop{seq: o.tools.seq}
	o.disarm(timerToolTimeout)
}
