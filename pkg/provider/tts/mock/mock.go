// Package mock provides a test double for the tts.Provider interface.
//
// By default Synthesize returns a short silent clip at 16 kHz whose length
// scales with the text, which is enough for speak-tool and playback tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/curaai/pkg/audio"
	"github.com/MrWong99/curaai/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// PCM, if non-nil, is returned by every call.
	PCM *audio.PCM

	// Err, if non-nil, is returned by every call.
	Err error

	// SynthesizeFunc, if set, overrides every other field.
	SynthesizeFunc func(ctx context.Context, text string) (*audio.PCM, error)

	texts []string
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records text and returns the scripted clip.
func (p *Provider) Synthesize(ctx context.Context, text string) (*audio.PCM, error) {
	p.mu.Lock()
	p.texts = append(p.texts, text)
	fn, pcm, err := p.SynthesizeFunc, p.PCM, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, tts.ErrEmptyText
	}
	if pcm != nil {
		return pcm, nil
	}
	// 1ms of audio per character.
	return &audio.PCM{Samples: make([]int16, 16*len(text)), SampleRate: audio.CanonicalRate}, nil
}

// Texts returns the texts passed to Synthesize, in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}
