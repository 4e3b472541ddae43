package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/curaai/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
//
// [stt.ErrEmptyTranscript] means the clip held no speech, so it is returned
// straight away without asking the next backend.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	perm := cfg.Permanent
	cfg.Permanent = func(err error) bool {
		return errors.Is(err, stt.ErrEmptyTranscript) || (perm != nil && perm(err))
	}
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe transcribes the WAV file at wavPath with the first healthy
// provider.
func (f *STTFallback) Transcribe(ctx context.Context, wavPath string) (string, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, wavPath)
	})
}

// States reports the breaker state per backend.
func (f *STTFallback) States() map[string]State { return f.group.States() }
