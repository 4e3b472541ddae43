// Package speak provides the assistant_response tool, the only way the agent
// talks to the patient.
//
// A call synthesizes the reply, writes it to a scratch WAV file, plays it and
// waits for playback to finish. Only then is the reply recorded as an
// assistant turn in the conversation ledger carried by the context. The
// scratch file is removed on every path.
package speak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/MrWong99/curaai/internal/session"
	"github.com/MrWong99/curaai/internal/toolbox"
	"github.com/MrWong99/curaai/pkg/audio"
	"github.com/MrWong99/curaai/pkg/audio/playback"
	"github.com/MrWong99/curaai/pkg/provider/tts"
	"github.com/MrWong99/curaai/pkg/types"
)

const (
	// Name is the identifier the model calls.
	Name = "assistant_response"

	// Sentinel is shown to the model when speaking fails.
	Sentinel = toolbox.GenericSentinel
)

var (
	errEmptyResponse = errors.New("speak: ai_response must not be empty")
	errNoLedger      = errors.New("speak: no conversation ledger in context")
)

type args struct {
	AIResponse string `json:"ai_response"`
}

type config struct {
	scratchDir string
	logger     *slog.Logger
}

// Option configures the tool.
type Option func(*config)

// WithScratchDir sets where reply WAV files are written. Empty uses the
// system temp directory.
func WithScratchDir(dir string) Option { return func(c *config) { c.scratchDir = dir } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// Tool returns the assistant_response tool.
func Tool(synth tts.Provider, player playback.Player, opts ...Option) toolbox.Tool {
	cfg := &config{logger: slog.Default()}
	for _, o := range opts {
		o(cfg)
	}
	s := &speaker{synth: synth, player: player, cfg: cfg}
	return toolbox.Tool{
		Definition: types.ToolDefinition{
			Name:        Name,
			Description: "Generate a response to a user input. The text is spoken aloud to the patient.",
			Parameters:  toolbox.StringParam("ai_response", "The exact words to say to the patient."),
		},
		Handler: s.handle,
	}
}

type speaker struct {
	synth  tts.Provider
	player playback.Player
	cfg    *config
}

func (s *speaker) handle(ctx context.Context, raw string) toolbox.Result {
	a, err := toolbox.DecodeArgs[args](raw)
	if err != nil {
		return toolbox.Fail(Sentinel, err)
	}
	text := strings.TrimSpace(a.AIResponse)
	if text == "" {
		return toolbox.Fail(Sentinel, errEmptyResponse)
	}
	ledger, ok := session.FromContext(ctx)
	if !ok {
		return toolbox.Fail(Sentinel, errNoLedger)
	}

	if err := s.say(ctx, text); err != nil {
		return toolbox.Fail(Sentinel, err)
	}
	if err := ledger.Append(session.Assistant, text); err != nil {
		return toolbox.Fail(Sentinel, err)
	}
	return toolbox.OK(text)
}

// say synthesizes, plays and removes the reply. A scratch file that cannot be
// removed fails the call even after successful playback.
func (s *speaker) say(ctx context.Context, text string) (err error) {
	pcm, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("speak: synthesize: %w", err)
	}

	f, err := os.CreateTemp(s.cfg.scratchDir, "curaai-reply-*.wav")
	if err != nil {
		return fmt.Errorf("speak: create scratch file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	defer func() {
		rmErr := os.Remove(path)
		if rmErr == nil || errors.Is(rmErr, os.ErrNotExist) {
			return
		}
		s.cfg.logger.Warn("speak: remove scratch file", "path", path, "err", rmErr)
		if err == nil {
			err = fmt.Errorf("speak: remove scratch file: %w", rmErr)
		}
	}()

	if err := audio.WriteWAV(path, pcm); err != nil {
		return fmt.Errorf("speak: %w", err)
	}

	done, err := s.player.Play(ctx, path)
	if err != nil {
		return fmt.Errorf("speak: play: %w", err)
	}
	if err := playback.Wait(ctx, done); err != nil {
		return fmt.Errorf("speak: %w", err)
	}
	s.cfg.logger.Debug("speak: reply played", "chars", len(text), "duration", pcm.Duration())
	return nil
}
