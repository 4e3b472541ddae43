// Package deepgram provides a Deepgram-backed STT provider using the
// pre-recorded audio REST API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/MrWong99/curaai/pkg/provider/stt"
)

const (
	defaultBaseURL  = "https://api.deepgram.com/v1"
	defaultModel    = "nova-3"
	defaultLanguage = "en"
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3-medical", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// WithKeywords adds vocabulary hints such as drug names.
func WithKeywords(words ...string) Option {
	return func(p *Provider) { p.keywords = append(p.keywords, words...) }
}

// WithTimeout sets the HTTP timeout. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// Provider implements stt.Provider backed by the Deepgram REST API.
type Provider struct {
	apiKey   string
	model    string
	language string
	baseURL  string
	keywords []string
	timeout  time.Duration
	http     *resty.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		baseURL:  defaultBaseURL,
		timeout:  30 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	p.http = resty.New().
		SetBaseURL(strings.TrimRight(p.baseURL, "/")).
		SetTimeout(p.timeout).
		SetHeader("Authorization", "Token "+p.apiKey)
	return p, nil
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
	ErrMsg string `json:"err_msg"`
}

// Transcribe posts the WAV file to /listen and returns the best alternative of
// the first channel.
func (p *Provider) Transcribe(ctx context.Context, wavPath string) (string, error) {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return "", fmt.Errorf("deepgram: read audio: %w", err)
	}

	req := p.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "audio/wav").
		SetQueryParams(map[string]string{
			"model":        p.model,
			"language":     p.language,
			"punctuate":    strconv.FormatBool(true),
			"smart_format": strconv.FormatBool(true),
		}).
		SetBody(data)
	for _, kw := range p.keywords {
		req.QueryParam.Add("keyterm", kw)
	}

	var out listenResponse
	resp, err := req.SetResult(&out).SetError(&out).Post("/listen")
	if err != nil {
		return "", fmt.Errorf("deepgram: request: %w", err)
	}
	if resp.IsError() {
		if out.ErrMsg != "" {
			return "", fmt.Errorf("deepgram: HTTP %d: %s", resp.StatusCode(), out.ErrMsg)
		}
		return "", fmt.Errorf("deepgram: HTTP %d", resp.StatusCode())
	}

	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", stt.ErrEmptyTranscript
	}
	text := strings.TrimSpace(out.Results.Channels[0].Alternatives[0].Transcript)
	if text == "" {
		return "", stt.ErrEmptyTranscript
	}
	return text, nil
}
