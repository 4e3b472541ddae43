// Package engine runs the per-utterance voice loop of one conversation.
//
// Every clip produced by the segmenter goes through the same synchronous
// pipeline: the codec bridge decodes it to canonical PCM, the PCM is written
// to a scratch WAV file, the transcriber turns that file into text and the
// orchestrator handles the text against the conversation ledger. The next
// clip is not processed until the current one is done.
//
// Failures of a single clip (undecodable audio, silence, transcription or
// model errors) are logged and dropped; the conversation keeps listening.
// Only cancellation and the termination phrase end the loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/curaai/internal/agent"
	"github.com/MrWong99/curaai/internal/observe"
	"github.com/MrWong99/curaai/internal/segment"
	"github.com/MrWong99/curaai/internal/session"
	"github.com/MrWong99/curaai/pkg/audio"
	"github.com/MrWong99/curaai/pkg/audio/codec"
	"github.com/MrWong99/curaai/pkg/provider/stt"
)

// ErrConversationEnded is returned from the clip handler after the agent
// said the termination phrase. The segmenter passes it through unchanged.
var ErrConversationEnded = errors.New("engine: conversation ended")

// Clip outcomes reported to the Recorder.
const (
	OutcomeHandled     = "handled"
	OutcomeEnded       = "ended"
	OutcomeDecodeError = "decode_error"
	OutcomeSilence     = "silence"
	OutcomeSTTError    = "stt_error"
	OutcomeNoOutput    = "no_output"
	OutcomeAgentError  = "agent_error"
)

// Pipeline stages reported to the Recorder.
const (
	StageTranscode  = "transcode"
	StageTranscribe = "transcribe"
)

// Decoder turns one compressed clip into canonical PCM. *codec.Bridge
// implements it.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*audio.PCM, error)
}

var _ Decoder = (*codec.Bridge)(nil)

// Agent handles a transcribed utterance. *agent.Orchestrator implements it.
type Agent interface {
	HandleUtterance(ctx context.Context, ledger *session.Ledger, text string) (agent.Outcome, error)
}

var _ Agent = (*agent.Orchestrator)(nil)

// Recorder receives per-clip measurements.
type Recorder interface {
	RecordStage(ctx context.Context, stage string, d time.Duration, err error)
	RecordClip(ctx context.Context, outcome string)
}

// Engine processes clips for any number of conversations. It holds no
// per-conversation state and is safe for concurrent use.
type Engine struct {
	decoder    Decoder
	stt        stt.Provider
	agent      Agent
	scratchDir string
	logger     *slog.Logger
	recorder   Recorder
}

// Option is a functional option for Engine.
type Option func(*Engine)

// WithScratchDir sets the directory for temporary utterance WAV files.
// Defaults to os.TempDir().
func WithScratchDir(dir string) Option { return func(e *Engine) { e.scratchDir = dir } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

// New creates an Engine.
func New(dec Decoder, transcriber stt.Provider, a Agent, opts ...Option) *Engine {
	e := &Engine{
		decoder: dec,
		stt:     transcriber,
		agent:   a,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Handler returns a segment.Handler that processes clips against ledger.
func (e *Engine) Handler(ledger *session.Ledger) segment.Handler {
	return func(ctx context.Context, clip segment.Clip) error {
		return e.ProcessClip(ctx, ledger, clip)
	}
}

// ProcessClip runs one clip through the pipeline. It returns
// ErrConversationEnded on termination, the context error on cancellation and
// nil for everything else, including dropped clips.
func (e *Engine) ProcessClip(ctx context.Context, ledger *session.Ledger, clip segment.Clip) (err error) {
	ctx, span := observe.StartSpan(ctx, "engine.clip",
		trace.WithAttributes(attribute.Int("curaai.clip.bytes", len(clip.Data))),
	)
	defer func() {
		if err != nil && !errors.Is(err, ErrConversationEnded) {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	log := observe.Enrich(ctx, e.logger).With("bytes", len(clip.Data), "chunks", clip.Chunks)

	text, err := e.transcribe(ctx, clip.Data)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var outcome string
		switch {
		case errors.Is(err, stt.ErrEmptyTranscript):
			outcome = OutcomeSilence
			log.Debug("engine: empty transcript, clip dropped")
		case isDecodeError(err):
			outcome = OutcomeDecodeError
			log.Warn("engine: clip could not be decoded", "err", err)
		default:
			outcome = OutcomeSTTError
			log.Warn("engine: transcription failed", "err", err)
		}
		e.recordClip(ctx, outcome)
		return nil
	}
	log.Info("engine: utterance transcribed", "text", text)

	out, err := e.agent.HandleUtterance(ctx, ledger, text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, agent.ErrNoOutput) {
			e.recordClip(ctx, OutcomeNoOutput)
			log.Warn("engine: agent produced no text output, still listening")
			return nil
		}
		e.recordClip(ctx, OutcomeAgentError)
		log.Error("engine: turn abandoned", "err", err)
		return nil
	}

	if out.Ended {
		e.recordClip(ctx, OutcomeEnded)
		log.Info("engine: conversation ended by agent", "output", out.Output)
		return ErrConversationEnded
	}
	e.recordClip(ctx, OutcomeHandled)
	log.Debug("engine: turn handled", "output", out.Output, "tool_calls", out.ToolCalls)
	return nil
}

type decodeError struct{ err error }

func (d *decodeError) Error() string { return d.err.Error() }
func (d *decodeError) Unwrap() error { return d.err }

func isDecodeError(err error) bool {
	var d *decodeError
	return errors.As(err, &d)
}

// transcribe decodes data, stores it as a scratch WAV and transcribes it. The
// scratch file is removed before transcribe returns.
func (e *Engine) transcribe(ctx context.Context, data []byte) (string, error) {
	start := time.Now()
	pcm, err := e.decoder.Decode(ctx, data)
	e.recordStage(ctx, StageTranscode, time.Since(start), err)
	if err != nil {
		return "", &decodeError{err: err}
	}

	f, err := os.CreateTemp(e.scratchDir, "curaai-utterance-*.wav")
	if err != nil {
		return "", fmt.Errorf("engine: create scratch file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("engine: remove scratch file", "path", path, "err", err)
		}
	}()

	if err := audio.WriteWAV(path, pcm); err != nil {
		return "", fmt.Errorf("engine: write scratch file: %w", err)
	}

	start = time.Now()
	text, err := e.stt.Transcribe(ctx, path)
	e.recordStage(ctx, StageTranscribe, time.Since(start), err)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", stt.ErrEmptyTranscript
	}
	return text, nil
}

func (e *Engine) recordStage(ctx context.Context, stage string, d time.Duration, err error) {
	if e.recorder != nil {
		e.recorder.RecordStage(ctx, stage, d, err)
	}
}

func (e *Engine) recordClip(ctx context.Context, outcome string) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("curaai.clip.outcome", outcome))
	if e.recorder != nil {
		e.recorder.RecordClip(ctx, outcome)
	}
}
