// Package whisper provides STT providers backed by whisper.cpp.
//
// [Provider] talks to a running whisper.cpp server over HTTP and uploads the
// utterance WAV to its /inference endpoint. [NativeProvider] links
// whisper.cpp through its cgo bindings and runs inference in-process.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/MrWong99/curaai/pkg/provider/stt"
)

const defaultLanguage = "en"

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model name sent with each request. whisper.cpp servers
// that host a single model ignore it.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language code for transcription (e.g. "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the HTTP timeout for one inference. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// Provider implements stt.Provider against a whisper.cpp HTTP server.
type Provider struct {
	model    string
	language string
	timeout  time.Duration
	http     *resty.Client
}

// New creates a Provider for the whisper.cpp server at serverURL
// (e.g. "http://localhost:8178").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		language: defaultLanguage,
		timeout:  30 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	p.http = resty.New().
		SetBaseURL(strings.TrimRight(serverURL, "/")).
		SetTimeout(p.timeout)
	return p, nil
}

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe uploads the WAV file and returns the server's text.
func (p *Provider) Transcribe(ctx context.Context, wavPath string) (string, error) {
	form := map[string]string{"response_format": "json"}
	if p.language != "" {
		form["language"] = p.language
	}
	if p.model != "" {
		form["model"] = p.model
	}

	var out inferenceResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetFile("file", wavPath).
		SetFormData(form).
		SetResult(&out).
		Post("/inference")
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode())
	}
	if out.Error != "" {
		return "", fmt.Errorf("whisper: server error: %s", out.Error)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", stt.ErrEmptyTranscript
	}
	return text, nil
}
