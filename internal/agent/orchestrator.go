package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/curaai/internal/observe"
	"github.com/MrWong99/curaai/internal/session"
	"github.com/MrWong99/curaai/internal/toolbox"
	"github.com/MrWong99/curaai/pkg/provider/llm"
)

// ErrNoOutput is returned when a run ends without any text to check for
// termination. The caller keeps listening.
var ErrNoOutput = errors.New("agent: run produced no text output")

// Outcome describes one handled utterance.
type Outcome struct {
	// Output is the agent's final output for the turn.
	Output string

	// Ended is true when Output is the termination phrase.
	Ended bool

	// ToolCalls counts executed tool calls.
	ToolCalls int
}

// TurnRecorder receives per-turn measurements.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, d time.Duration, toolCalls int, err error)
}

// Config holds the orchestrator settings.
type Config struct {
	Instance InstanceConfig

	// Window is the number of ledger turns shown to the model.
	Window int

	// MaxTurns bounds model round trips per utterance.
	MaxTurns int
}

// Orchestrator handles transcribed utterances: it records the patient's turn,
// builds a fresh Instance and runs it. The speak tool records the agent's
// replies, so the ledger of a turn with one spoken reply grows by two.
type Orchestrator struct {
	box      *toolbox.Box
	runner   *Runner
	logger   *slog.Logger
	recorder TurnRecorder

	mu  sync.RWMutex
	cfg Config
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithRecorder attaches a metrics recorder.
func WithRecorder(r TurnRecorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// NewOrchestrator creates an Orchestrator that offers every tool in box to
// the model behind provider.
func NewOrchestrator(provider llm.Provider, box *toolbox.Box, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Window <= 0 {
		cfg.Window = session.DefaultWindow
	}
	if cfg.Instance.Name == "" {
		cfg.Instance.Name = session.DefaultAssistantName
	}
	o := &Orchestrator{box: box, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	o.runner = NewRunner(provider, box,
		WithMaxTurns(cfg.MaxTurns),
		WithEchoTool(cfg.Instance.SpeakTool),
		WithRunnerLogger(o.logger),
	)
	return o
}

// HandleUtterance processes one transcribed utterance against ledger.
//
// The patient's turn stays in the ledger even when the run fails. The final
// output is not written to the ledger.
func (o *Orchestrator) HandleUtterance(ctx context.Context, ledger *session.Ledger, text string) (out Outcome, err error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "agent.turn")
	defer func() {
		span.SetAttributes(
			attribute.Int("curaai.turn.tool_calls", out.ToolCalls),
			attribute.Bool("curaai.turn.ended", out.Ended),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if o.recorder != nil {
			o.recorder.RecordTurn(ctx, time.Since(start), out.ToolCalls, err)
		}
	}()

	text = strings.TrimSpace(text)
	if err := ledger.Append(session.User, text); err != nil {
		return Outcome{}, fmt.Errorf("agent: record user turn: %w", err)
	}

	o.mu.RLock()
	cfg := o.cfg
	o.mu.RUnlock()

	inst, err := NewInstance(cfg.Instance, ledger.Render(cfg.Window), text, o.box.Definitions())
	if err != nil {
		return Outcome{}, err
	}
	span.SetAttributes(attribute.String("curaai.agent.model", inst.Model))

	res, err := o.runner.Run(session.NewContext(ctx, ledger), inst)
	out.ToolCalls = res.ToolCalls
	if err != nil {
		return out, err
	}

	out.Output = res.Output
	if strings.TrimSpace(out.Output) == "" {
		return out, ErrNoOutput
	}
	out.Ended = IsTermination(out.Output)
	observe.Enrich(ctx, o.logger).Debug("agent: turn complete",
		"model", inst.Model,
		"tool_calls", res.ToolCalls,
		"rounds", res.Turns,
		"tokens", res.Usage.TotalTokens,
		"ended", out.Ended,
	)
	return out, nil
}

// SetPrompt replaces the instructions template used by subsequent turns. Nil
// restores the built-in prompt.
func (o *Orchestrator) SetPrompt(p *Prompt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg.Instance.Prompt = p
}

// Tune replaces the render window and sampling temperature used by
// subsequent turns. A non-positive window keeps the current one.
func (o *Orchestrator) Tune(window int, temperature float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if window > 0 {
		o.cfg.Window = window
	}
	o.cfg.Instance.Temperature = temperature
}

// Settings returns the current window and temperature.
func (o *Orchestrator) Settings() (window int, temperature float64) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg.Window, o.cfg.Instance.Temperature
}
