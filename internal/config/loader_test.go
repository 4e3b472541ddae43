package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/curaai/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"log level", func(c *config.Config) { c.Server.LogLevel = "bananas" }, "server.log_level"},
		{"negative idle timeout", func(c *config.Config) { c.Server.IdleTimeout = -1 }, "server.idle_timeout"},
		{"relative audio path", func(c *config.Config) { c.Server.AudioPath = "audio" }, "server.audio_path"},
		{"half tls", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "c.pem"} }, "server.tls"},
		{"unnamed fallback", func(c *config.Config) {
			c.Providers.Fallbacks.STT = []config.ProviderEntry{{APIKey: "x"}}
		}, "providers.fallbacks.stt[0].name"},
		{"negative window", func(c *config.Config) { c.Agent.Window = -1 }, "agent.window"},
		{"temperature", func(c *config.Config) { c.Agent.Temperature = 2.5 }, "agent.temperature"},
		{"scope", func(c *config.Config) { c.Session.Scope = "global" }, "session.scope"},
		{"resampler", func(c *config.Config) { c.Audio.Resampler = "cubic" }, "audio.resampler"},
		{"playback mode", func(c *config.Config) { c.Playback.Mode = "speaker" }, "playback.mode"},
		{"mcp path collision", func(c *config.Config) {
			c.MCP.Enabled = true
			c.MCP.Path = "/audio"
		}, "mcp.path"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.LogLevel = "loud"
	cfg.Session.Scope = "everyone"
	cfg.Agent.MaxTurns = -3

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"server.log_level", "session.scope", "agent.max_turns"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error misses %q: %v", want, err)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "curaai.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{"llm", "stt", "tts"} {
		names := config.ValidProviderNames[kind]
		if len(names) == 0 {
			t.Fatalf("ValidProviderNames[%q] should not be empty", kind)
		}
		found := false
		for _, n := range names {
			if n == "openai" {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("ValidProviderNames[%q] should contain \"openai\"", kind)
		}
	}
}
