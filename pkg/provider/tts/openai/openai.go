// Package openai provides a TTS provider backed by the OpenAI speech endpoint.
// Audio is requested as raw PCM (24 kHz, 16-bit, mono).
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/curaai/pkg/audio"
	"github.com/MrWong99/curaai/pkg/provider/tts"
)

const (
	// DefaultModel is used when New is called with an empty model.
	DefaultModel = "gpt-4o-mini-tts"

	// DefaultVoice is used when no voice is configured.
	DefaultVoice = "alloy"

	// pcmRate is the fixed sample rate of the "pcm" response format.
	pcmRate = 24000
)

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	voice        string
	instructions string
	speed        float64
}

type config struct {
	baseURL      string
	voice        string
	instructions string
	speed        float64
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option { return func(c *config) { c.baseURL = url } }

// WithVoice selects the voice (alloy, nova, shimmer, ...).
func WithVoice(v string) Option { return func(c *config) { c.voice = v } }

// WithInstructions sets delivery instructions, e.g. "calm and reassuring".
// Ignored by tts-1 and tts-1-hd.
func WithInstructions(s string) Option { return func(c *config) { c.instructions = s } }

// WithSpeed sets the playback speed in [0.25, 4]. Zero keeps the default.
func WithSpeed(s float64) Option { return func(c *config) { c.speed = s } }

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.timeout = d } }

// New constructs an OpenAI TTS provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{voice: DefaultVoice}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		voice:        cfg.voice,
		instructions: cfg.instructions,
		speed:        cfg.speed,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (*audio.PCM, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(p.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if p.instructions != "" {
		params.Instructions = oai.String(p.instructions)
	}
	if p.speed > 0 {
		params.Speed = oai.Float(p.speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read body: %w", err)
	}
	if len(raw) < 2 {
		return nil, tts.ErrNoAudio
	}
	return &audio.PCM{Samples: audio.BytesToInt16s(raw), SampleRate: pcmRate}, nil
}
