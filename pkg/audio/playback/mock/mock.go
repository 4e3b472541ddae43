// Package mock provides a test double for playback.Player.
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/MrWong99/curaai/pkg/audio/playback"
)

// PlayCall records one Play invocation.
type PlayCall struct {
	Path    string
	Existed bool
}

// Player is a mock implementation of playback.Player.
type Player struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by Play.
	PlayErr error

	// DoneErr is delivered on the completion channel.
	DoneErr error

	// Block, if non-nil, delays completion until it is closed.
	Block chan struct{}

	// OnPlay, if set, is called with the path before Play returns.
	OnPlay func(path string)

	calls []PlayCall
}

var _ playback.Player = (*Player)(nil)

// Play records the call and completes according to the configured fields.
func (p *Player) Play(ctx context.Context, path string) (<-chan error, error) {
	_, statErr := os.Stat(path)

	p.mu.Lock()
	p.calls = append(p.calls, PlayCall{Path: path, Existed: statErr == nil})
	playErr, doneErr, block, onPlay := p.PlayErr, p.DoneErr, p.Block, p.OnPlay
	p.mu.Unlock()

	if onPlay != nil {
		onPlay(path)
	}

	if playErr != nil {
		return nil, playErr
	}
	done := make(chan error, 1)
	go func() {
		defer close(done)
		if block != nil {
			select {
			case <-block:
			case <-ctx.Done():
				done <- ctx.Err()
				return
			}
		}
		done <- doneErr
	}()
	return done, nil
}

// Calls returns the recorded calls.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PlayCall(nil), p.calls...)
}
