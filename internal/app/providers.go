package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/curaai/internal/config"
	"github.com/MrWong99/curaai/pkg/provider/llm"
	"github.com/MrWong99/curaai/pkg/provider/stt"
	"github.com/MrWong99/curaai/pkg/provider/tts"
)

// Named pairs a provider with the name it was configured under.
type Named[T any] struct {
	Name     string
	Provider T
}

// Providers holds the external services the pipeline depends on. The
// primaries are required; fallbacks are tried in order when a primary keeps
// failing.
type Providers struct {
	LLM Named[llm.Provider]
	STT Named[stt.Provider]
	TTS Named[tts.Provider]

	LLMFallbacks []Named[llm.Provider]
	STTFallbacks []Named[stt.Provider]
	TTSFallbacks []Named[tts.Provider]
}

// BuildProviders instantiates every provider named in cfg through reg.
// Unconfigured primaries stay nil; New reports them.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	var errs []error

	if e := cfg.Providers.LLM; e.Name != "" {
		p, err := reg.CreateLLM(withModel(e, cfg.Agent.Model))
		errs = appendErr(errs, "llm", e.Name, err)
		ps.LLM = Named[llm.Provider]{Name: e.Name, Provider: p}
	}
	if e := cfg.Providers.STT; e.Name != "" {
		p, err := reg.CreateSTT(e)
		errs = appendErr(errs, "stt", e.Name, err)
		ps.STT = Named[stt.Provider]{Name: e.Name, Provider: p}
	}
	if e := cfg.Providers.TTS; e.Name != "" {
		p, err := reg.CreateTTS(e)
		errs = appendErr(errs, "tts", e.Name, err)
		ps.TTS = Named[tts.Provider]{Name: e.Name, Provider: p}
	}

	for _, e := range cfg.Providers.Fallbacks.LLM {
		p, err := reg.CreateLLM(withModel(e, cfg.Agent.Model))
		if errs = appendErr(errs, "llm", e.Name, err); err == nil {
			ps.LLMFallbacks = append(ps.LLMFallbacks, Named[llm.Provider]{Name: e.Name, Provider: p})
		}
	}
	for _, e := range cfg.Providers.Fallbacks.STT {
		p, err := reg.CreateSTT(e)
		if errs = appendErr(errs, "stt", e.Name, err); err == nil {
			ps.STTFallbacks = append(ps.STTFallbacks, Named[stt.Provider]{Name: e.Name, Provider: p})
		}
	}
	for _, e := range cfg.Providers.Fallbacks.TTS {
		p, err := reg.CreateTTS(e)
		if errs = appendErr(errs, "tts", e.Name, err); err == nil {
			ps.TTSFallbacks = append(ps.TTSFallbacks, Named[tts.Provider]{Name: e.Name, Provider: p})
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return ps, nil
}

func withModel(e config.ProviderEntry, model string) config.ProviderEntry {
	if e.Model == "" {
		e.Model = model
	}
	return e
}

func appendErr(errs []error, kind, name string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("create %s provider %q: %w", kind, name, err))
	}
	slog.Info("provider created", "kind", kind, "name", name)
	return errs
}
