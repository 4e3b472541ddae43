package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/curaai/pkg/audio"
	"github.com/MrWong99/curaai/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	perm := cfg.Permanent
	cfg.Permanent = func(err error) bool {
		return errors.Is(err, tts.ErrEmptyText) || (perm != nil && perm(err))
	}
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders text with the first healthy provider. The clip's sample
// rate depends on which backend answered.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (*audio.PCM, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*audio.PCM, error) {
		return p.Synthesize(ctx, text)
	})
}

// States reports the breaker state per backend.
func (f *TTSFallback) States() map[string]State { return f.group.States() }
