// Package coqui provides a TTS provider for a locally-running Coqui server.
// It implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu), GET /api/tts with query parameters.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server, POST /tts_to_audio/ with a
//     JSON body. The speaker is a reference WAV known to the server.
//
// Both servers answer with a WAV file, which is decoded into mono PCM.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	pcm, err := p.Synthesize(ctx, "How long have you had the cough?")
package coqui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/MrWong99/curaai/pkg/audio"
	"github.com/MrWong99/curaai/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	xttsEndpoint    = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server.
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server. Default.
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSpeaker sets the speaker id (standard) or reference WAV (XTTS).
func WithSpeaker(speaker string) Option {
	return func(p *Provider) { p.speaker = speaker }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.apiMode = mode }
}

// Provider implements tts.Provider backed by a Coqui TTS server.
type Provider struct {
	language string
	speaker  string
	apiMode  APIMode
	timeout  time.Duration
	http     *resty.Client
}

// New creates a Provider that targets the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		language: defaultLanguage,
		apiMode:  APIModeStandard,
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	p.http = resty.New().
		SetBaseURL(strings.TrimRight(serverURL, "/")).
		SetTimeout(p.timeout).
		SetHeader("Accept", "audio/wav")
	return p, nil
}

type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (*audio.PCM, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	req := p.http.R().SetContext(ctx)
	var (
		resp *resty.Response
		err  error
		path string
	)
	if p.apiMode == APIModeXTTS {
		path = xttsEndpoint
		resp, err = req.
			SetBody(xttsRequest{Text: text, SpeakerWav: p.speaker, Language: p.language}).
			Post(path)
	} else {
		path = apiTTSEndpoint
		req.SetQueryParam("text", text)
		if p.speaker != "" {
			req.SetQueryParam("speaker_id", p.speaker)
		}
		if p.language != "" {
			req.SetQueryParam("language_id", p.language)
		}
		resp, err = req.Get(path)
	}
	if err != nil {
		return nil, fmt.Errorf("coqui: %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("coqui: %s returned status %d", path, resp.StatusCode())
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, tts.ErrNoAudio
	}
	pcm, err := audio.DecodeWAV(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}
	if pcm.Frames() == 0 {
		return nil, tts.ErrNoAudio
	}
	return pcm, nil
}
