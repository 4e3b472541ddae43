package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/curaai/internal/toolbox"
	"github.com/MrWong99/curaai/pkg/provider/llm"
	"github.com/MrWong99/curaai/pkg/types"
)

// DefaultMaxTurns bounds the model round trips of one run.
const DefaultMaxTurns = 10

// ErrMaxTurns is returned when the model keeps calling tools past the limit.
var ErrMaxTurns = errors.New("agent: max turns exceeded")

// ToolExecutor runs tool calls. *toolbox.Box implements it.
type ToolExecutor interface {
	Execute(ctx context.Context, call types.ToolCall) toolbox.Result
}

var _ ToolExecutor = (*toolbox.Box)(nil)

// RunResult is the outcome of one run.
type RunResult struct {
	// Output is the model's final text. When the final response had no text
	// it falls back to the last successful echo-tool output.
	Output string

	// ToolCalls counts executed tool calls, failed ones included.
	ToolCalls int

	// Turns counts model round trips.
	Turns int

	// Usage sums token usage over all round trips.
	Usage llm.Usage
}

// Runner executes the tool-calling loop for an Instance.
type Runner struct {
	llm      llm.Provider
	tools    ToolExecutor
	maxTurns int
	echoTool string
	logger   *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxTurns sets the round-trip limit. Non-positive values are ignored.
func WithMaxTurns(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxTurns = n
		}
	}
}

// WithEchoTool names the tool whose output stands in for an empty final
// response.
func WithEchoTool(name string) RunnerOption {
	return func(r *Runner) { r.echoTool = name }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner.
func NewRunner(provider llm.Provider, tools ToolExecutor, opts ...RunnerOption) *Runner {
	r := &Runner{
		llm:      provider,
		tools:    tools,
		maxTurns: DefaultMaxTurns,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run sends the instance's input to the model and executes the tool calls it
// requests, in order, until a response carries no tool calls. Tool failures
// are reported to the model and never end the run.
func (r *Runner) Run(ctx context.Context, inst *Instance) (RunResult, error) {
	var res RunResult
	var lastEcho string

	msgs := []types.Message{{Role: types.RoleUser, Content: inst.Input}}
	for res.Turns < r.maxTurns {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("agent: %w", err)
		}

		resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: inst.Instructions,
			Messages:     msgs,
			Tools:        inst.Tools,
			Temperature:  inst.Temperature,
		})
		res.Turns++
		if err != nil {
			return res, fmt.Errorf("agent: completion: %w", err)
		}
		if resp == nil {
			resp = &llm.CompletionResponse{}
		}
		res.Usage.PromptTokens += resp.Usage.PromptTokens
		res.Usage.CompletionTokens += resp.Usage.CompletionTokens
		res.Usage.TotalTokens += resp.Usage.TotalTokens

		if len(resp.ToolCalls) == 0 {
			res.Output = resp.Content
			if strings.TrimSpace(res.Output) == "" {
				res.Output = lastEcho
			}
			return res, nil
		}

		msgs = append(msgs, types.Message{
			Role:      types.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			out := r.tools.Execute(ctx, call)
			res.ToolCalls++
			if call.Name == r.echoTool && r.echoTool != "" && !out.Failed() {
				lastEcho = out.Output
			}
			msgs = append(msgs, types.Message{
				Role:       types.RoleTool,
				Content:    out.Output,
				Name:       call.Name,
				ToolCallID: call.ID,
			})
		}
		r.logger.Debug("agent: tool round complete", "turn", res.Turns, "calls", len(resp.ToolCalls))
	}
	return res, ErrMaxTurns
}
