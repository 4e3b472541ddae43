// Package mock provides a test double for the stt.Provider interface.
//
// Texts are returned by successive Transcribe calls. Each call records the
// WAV path and whether the file existed at call time, so callers can verify
// scratch-file handling.
//
// Example:
//
//	p := &mock.Provider{Texts: []string{"I have a headache."}}
//	text, _ := p.Transcribe(ctx, path)
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/MrWong99/curaai/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	Path string

	// Existed reports whether Path was present when Transcribe ran.
	Existed bool

	// Size is the file size at call time, or -1 if it did not exist.
	Size int64
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Texts are returned by successive calls. Once exhausted, Text is used.
	Texts []string

	// Text is the fallback transcript.
	Text string

	// Err, if non-nil, is returned by every call.
	Err error

	// TranscribeFunc, if set, overrides every other field.
	TranscribeFunc func(ctx context.Context, wavPath string) (string, error)

	calls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the next scripted transcript.
func (p *Provider) Transcribe(ctx context.Context, wavPath string) (string, error) {
	call := TranscribeCall{Path: wavPath, Size: -1}
	if fi, err := os.Stat(wavPath); err == nil {
		call.Existed = true
		call.Size = fi.Size()
	}

	p.mu.Lock()
	p.calls = append(p.calls, call)
	fn := p.TranscribeFunc
	if fn != nil {
		p.mu.Unlock()
		return fn(ctx, wavPath)
	}
	defer p.mu.Unlock()

	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Texts) > 0 {
		next := p.Texts[0]
		p.Texts = p.Texts[1:]
		return next, nil
	}
	if p.Text == "" {
		return "", stt.ErrEmptyTranscript
	}
	return p.Text, nil
}

// Calls returns a snapshot of recorded calls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TranscribeCall(nil), p.calls...)
}
