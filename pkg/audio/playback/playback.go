// Package playback plays synthesized speech to the patient.
//
// A [Player] starts playing a WAV file and returns a completion channel that
// yields exactly one value: nil when the audio finished, or the error that
// stopped it. Callers wait on that channel and on their context instead of
// polling the device.
package playback

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSink is returned by the client player when the context carries no
// connection to send audio to.
var ErrNoSink = errors.New("playback: no client sink in context")

// Mode names a Player implementation in configuration.
type Mode string

const (
	// ModeLocal plays on the host's default output device.
	ModeLocal Mode = "local"

	// ModeClient sends the WAV back over the client's websocket.
	ModeClient Mode = "client"

	// ModeNone discards audio. Useful for text-only testing.
	ModeNone Mode = "none"
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeLocal, ModeClient, ModeNone:
		return true
	}
	return false
}

// Player plays WAV files.
type Player interface {
	// Play starts playback of the WAV file at path. The file must stay in
	// place until the returned channel delivers its value. The channel is
	// buffered so an abandoned wait never blocks the player.
	Play(ctx context.Context, path string) (<-chan error, error)
}

// Wait blocks until done delivers or ctx ends.
func Wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("playback: %w", ctx.Err())
	}
}

// finished returns a completion channel that already holds err.
func finished(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	close(ch)
	return ch
}

// None is a Player that completes immediately.
type None struct{}

var _ Player = None{}

// Play implements Player.
func (None) Play(context.Context, string) (<-chan error, error) {
	return finished(nil), nil
}
