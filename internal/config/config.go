// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry of CuraAI.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/curaai/internal/session"
	"github.com/MrWong99/curaai/pkg/audio/playback"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to a slog level. Unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr  = ":8080"
	DefaultAudioPath   = "/audio"
	DefaultIdleTimeout = 3 * time.Second
	DefaultSummaryPath = "diagnosis_summary.txt"
	DefaultMCPPath     = "/mcp"
	DefaultModel       = "gpt-4o-mini"
	DefaultSampleRate  = 16000
	DefaultMaxResults  = 5
	DefaultPubMedLimit = 10 * time.Second
)

// Config is the root configuration. Load it with [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Agent     AgentConfig     `yaml:"agent"`
	Session   SessionConfig   `yaml:"session"`
	Tools     ToolsConfig     `yaml:"tools"`
	Audio     AudioConfig     `yaml:"audio"`
	Playback  PlaybackConfig  `yaml:"playback"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is applied on hot reload.
	LogLevel LogLevel `yaml:"log_level"`

	// IdleTimeout is the silence after which an utterance ends. Default 3s.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// AudioPath is the websocket route. Default "/audio".
	AudioPath string `yaml:"audio_path"`

	// AllowedOrigins lists host patterns of cross-origin browser clients.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the implementation of each external service.
// Each entry names a provider registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`

	// Fallbacks are tried in order when the primary provider of the same
	// kind keeps failing.
	Fallbacks FallbacksConfig `yaml:"fallbacks"`
}

// FallbacksConfig lists secondary providers per kind.
type FallbacksConfig struct {
	LLM []ProviderEntry `yaml:"llm"`
	STT []ProviderEntry `yaml:"stt"`
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. ${VAR} references are
	// expanded from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values such as "language" or "voice".
	Options map[string]any `yaml:"options"`
}

// AgentConfig tunes the per-turn agent.
type AgentConfig struct {
	// Name labels the assistant in the prompt and transcript. Default "CuraAI".
	Name string `yaml:"name"`

	// Model is passed to the LLM provider when its entry has none.
	Model string `yaml:"model"`

	// Window is the number of turns rendered into the prompt. Default 20.
	Window int `yaml:"window"`

	// MaxTurns bounds model round trips per utterance. Default 10.
	MaxTurns int `yaml:"max_turns"`

	// Temperature is the sampling temperature. Zero leaves it to the provider.
	Temperature float64 `yaml:"temperature"`

	// PromptFile replaces the built-in instructions template.
	PromptFile string `yaml:"prompt_file"`
}

// SessionConfig selects how connections map to conversations.
type SessionConfig struct {
	Scope session.Scope `yaml:"scope"`
}

// ToolsConfig configures the agent's tools.
type ToolsConfig struct {
	// SummaryPath is where diagnosis summaries are written.
	SummaryPath string `yaml:"summary_path"`

	PubMed PubMedConfig `yaml:"pubmed"`
}

// PubMedConfig configures the literature client.
type PubMedConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// AudioConfig configures decoding.
type AudioConfig struct {
	// SampleRate is the canonical rate clips are resampled to. Default 16000.
	SampleRate int `yaml:"sample_rate"`

	// Resampler is "soxr" (default) or "linear".
	Resampler string `yaml:"resampler"`

	// ScratchDir holds temporary WAV files. Default os.TempDir().
	ScratchDir string `yaml:"scratch_dir"`
}

// PlaybackConfig selects where synthesized speech is played.
type PlaybackConfig struct {
	Mode playback.Mode `yaml:"mode"`
}

// MCPConfig configures the MCP tool server.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}
