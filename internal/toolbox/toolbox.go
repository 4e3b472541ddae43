// Package toolbox is the capability table the agent dispatches through.
//
// The model selects tools by name; [Box.Execute] resolves that name to a
// registered [Handler] and runs it. Handlers never return Go errors to the
// runner. They return a [Result] whose Output is what the model sees. A
// failed call carries a human-readable sentinel in Output and the underlying
// error in Err for logging. The agent run therefore never aborts because a
// tool failed; the model is told and decides what to do next.
package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/curaai/pkg/types"
)

// GenericSentinel is shown to the model for unknown tools, malformed calls
// and handler panics.
const GenericSentinel = "TOOL ERROR"

// Result is the outcome of one tool call.
type Result struct {
	// Output is the text returned to the model. For failures it is the
	// tool's sentinel string.
	Output string

	// Err is the cause of a failure. It is logged, never shown to the model.
	Err error
}

// OK returns a successful Result.
func OK(output string) Result { return Result{Output: output} }

// Fail returns a failed Result that shows sentinel to the model.
func Fail(sentinel string, err error) Result {
	if err == nil {
		err = fmt.Errorf("toolbox: %s", sentinel)
	}
	return Result{Output: sentinel, Err: err}
}

// Failed reports whether the call failed.
func (r Result) Failed() bool { return r.Err != nil }

// Handler executes a tool. args is the JSON object chosen by the model.
type Handler func(ctx context.Context, args string) Result

// Tool couples the definition offered to the model with its handler.
type Tool struct {
	Definition types.ToolDefinition
	Handler    Handler

	// Timeout bounds a single call. Zero means no limit beyond the caller's
	// context; speech playback runs as long as the audio does.
	Timeout time.Duration
}

// Recorder receives per-call measurements.
type Recorder interface {
	RecordToolCall(ctx context.Context, tool string, d time.Duration, failed bool)
}

// Box is a name → handler table. It is safe for concurrent use.
type Box struct {
	logger   *slog.Logger
	recorder Recorder

	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// Option is a functional option for Box.
type Option func(*Box)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Box) { b.logger = l }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(b *Box) { b.recorder = r }
}

// New creates an empty Box.
func New(opts ...Option) *Box {
	b := &Box{logger: slog.Default(), tools: make(map[string]Tool)}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Register adds a tool. Registering a name twice is an error.
func (b *Box) Register(tool Tool) error {
	name := tool.Definition.Name
	if name == "" {
		return fmt.Errorf("toolbox: tool must have a non-empty name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("toolbox: tool %q must have a non-nil handler", name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.tools[name]; exists {
		return fmt.Errorf("toolbox: tool %q already registered", name)
	}
	b.tools[name] = tool
	b.order = append(b.order, name)
	return nil
}

// Definitions returns the registered definitions in registration order.
func (b *Box) Definitions() []types.ToolDefinition {
	b.mu.RLock()
	defer b.mu.RUnlock()
	defs := make([]types.ToolDefinition, 0, len(b.order))
	for _, name := range b.order {
		defs = append(defs, b.tools[name].Definition)
	}
	return defs
}

// Names returns the registered tool names in registration order.
func (b *Box) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), b.order...)
}

// Lookup returns the tool registered under name.
func (b *Box) Lookup(name string) (Tool, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tools[name]
	return t, ok
}

// Execute runs the tool named by call. It never panics and never returns a
// Go error; see [Result].
func (b *Box) Execute(ctx context.Context, call types.ToolCall) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Fail(GenericSentinel, fmt.Errorf("toolbox: tool %q panicked: %v", call.Name, r))
		}
		if res.Failed() {
			b.logger.Warn("tool call failed", "tool", call.Name, "sentinel", res.Output, "err", res.Err)
		} else {
			b.logger.Debug("tool call completed", "tool", call.Name, "duration", time.Since(start))
		}
		if b.recorder != nil {
			b.recorder.RecordToolCall(ctx, call.Name, time.Since(start), res.Failed())
		}
	}()

	tool, ok := b.Lookup(call.Name)
	if !ok {
		return Fail(GenericSentinel, fmt.Errorf("toolbox: unknown tool %q", call.Name))
	}

	if tool.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tool.Timeout)
		defer cancel()
	}
	return tool.Handler(ctx, call.Arguments)
}

// DecodeArgs unmarshals a tool's JSON arguments into T. An empty string is
// treated as an empty object.
func DecodeArgs[T any](args string) (T, error) {
	var v T
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), &v); err != nil {
		return v, fmt.Errorf("toolbox: invalid arguments: %w", err)
	}
	return v, nil
}

// StringParam builds the JSON schema of an object with a single required
// string property, the shape shared by every CuraAI tool.
func StringParam(name, description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			name: map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required":             []string{name},
		"additionalProperties": false,
	}
}
