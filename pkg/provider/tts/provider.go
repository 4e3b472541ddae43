// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A provider renders one reply into mono 16-bit PCM. The speak tool writes
// the result to a scratch WAV file and hands it to a playback.Player, so
// providers never deal with files or devices.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/curaai/pkg/audio"
)

// ErrEmptyText is returned when asked to synthesize blank text.
var ErrEmptyText = errors.New("tts: empty text")

// ErrNoAudio is returned when the backend answered without audio data.
var ErrNoAudio = errors.New("tts: backend returned no audio")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text to mono PCM at the backend's native rate.
	Synthesize(ctx context.Context, text string) (*audio.PCM, error)
}
