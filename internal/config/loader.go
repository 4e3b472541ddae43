package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/curaai/internal/agent"
	"github.com/MrWong99/curaai/internal/session"
	"github.com/MrWong99/curaai/pkg/audio/codec"
	"github.com/MrWong99/curaai/pkg/audio/playback"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "deepgram", "whisper", "whisper-native"},
	"tts": {"openai", "elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references in
// secrets, applies defaults and validates the result. An empty document
// yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandEnv(cfg)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero values with their defaults. It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.AudioPath == "" {
		cfg.Server.AudioPath = DefaultAudioPath
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = session.DefaultAssistantName
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = DefaultModel
	}
	if cfg.Agent.Window == 0 {
		cfg.Agent.Window = session.DefaultWindow
	}
	if cfg.Agent.MaxTurns == 0 {
		cfg.Agent.MaxTurns = agent.DefaultMaxTurns
	}
	if cfg.Session.Scope == "" {
		cfg.Session.Scope = session.ScopeShared
	}
	if cfg.Tools.SummaryPath == "" {
		cfg.Tools.SummaryPath = DefaultSummaryPath
	}
	if cfg.Tools.PubMed.MaxResults == 0 {
		cfg.Tools.PubMed.MaxResults = DefaultMaxResults
	}
	if cfg.Tools.PubMed.Timeout == 0 {
		cfg.Tools.PubMed.Timeout = DefaultPubMedLimit
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Resampler == "" {
		cfg.Audio.Resampler = "soxr"
	}
	if cfg.Playback.Mode == "" {
		cfg.Playback.Mode = playback.ModeClient
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.idle_timeout %s must be positive", cfg.Server.IdleTimeout))
	}
	if cfg.Server.AudioPath != "" && !strings.HasPrefix(cfg.Server.AudioPath, "/") {
		errs = append(errs, fmt.Errorf("server.audio_path %q must start with /", cfg.Server.AudioPath))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for i, fb := range cfg.Providers.Fallbacks.LLM {
		errs = appendFallbackErr(errs, "llm", i, fb)
	}
	for i, fb := range cfg.Providers.Fallbacks.STT {
		errs = appendFallbackErr(errs, "stt", i, fb)
	}
	for i, fb := range cfg.Providers.Fallbacks.TTS {
		errs = appendFallbackErr(errs, "tts", i, fb)
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; utterances will be transcribed but never answered")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; audio cannot be transcribed")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; the assistant_response tool will fail")
	}

	// Agent
	if cfg.Agent.Window < 0 {
		errs = append(errs, fmt.Errorf("agent.window %d must not be negative", cfg.Agent.Window))
	}
	if cfg.Agent.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("agent.max_turns %d must not be negative", cfg.Agent.MaxTurns))
	}
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0, 2]", cfg.Agent.Temperature))
	}

	// Session
	if cfg.Session.Scope != "" && !cfg.Session.Scope.IsValid() {
		errs = append(errs, fmt.Errorf("session.scope %q is invalid; valid values: shared, connection", cfg.Session.Scope))
	}

	// Tools
	if cfg.Tools.PubMed.MaxResults < 0 {
		errs = append(errs, fmt.Errorf("tools.pubmed.max_results %d must not be negative", cfg.Tools.PubMed.MaxResults))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if codec.ResamplerByName(cfg.Audio.Resampler) == nil {
		errs = append(errs, fmt.Errorf("audio.resampler %q is invalid; valid values: soxr, linear", cfg.Audio.Resampler))
	}

	// Playback
	if cfg.Playback.Mode != "" && !cfg.Playback.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("playback.mode %q is invalid; valid values: local, client, none", cfg.Playback.Mode))
	}

	// MCP
	if cfg.MCP.Enabled && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}
	if cfg.MCP.Enabled && cfg.MCP.Path == cfg.Server.AudioPath {
		errs = append(errs, fmt.Errorf("mcp.path %q collides with server.audio_path", cfg.MCP.Path))
	}

	return errors.Join(errs...)
}

func appendFallbackErr(errs []error, kind string, i int, e ProviderEntry) []error {
	if e.Name == "" {
		return append(errs, fmt.Errorf("providers.fallbacks.%s[%d].name is required", kind, i))
	}
	validateProviderName(kind, e.Name)
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// expandEnv replaces ${VAR} and $VAR references in secrets and endpoints.
func expandEnv(cfg *Config) {
	expandEntry := func(e *ProviderEntry) {
		e.APIKey = os.ExpandEnv(e.APIKey)
		e.BaseURL = os.ExpandEnv(e.BaseURL)
	}
	expandEntry(&cfg.Providers.LLM)
	expandEntry(&cfg.Providers.STT)
	expandEntry(&cfg.Providers.TTS)
	for _, list := range [][]ProviderEntry{cfg.Providers.Fallbacks.LLM, cfg.Providers.Fallbacks.STT, cfg.Providers.Fallbacks.TTS} {
		for i := range list {
			expandEntry(&list[i])
		}
	}
	cfg.Tools.PubMed.APIKey = os.ExpandEnv(cfg.Tools.PubMed.APIKey)
	cfg.Tools.PubMed.BaseURL = os.ExpandEnv(cfg.Tools.PubMed.BaseURL)
}
