package main

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/curaai/internal/config"
)

func TestOptHelpers(t *testing.T) {
	t.Parallel()

	opts := map[string]any{
		"language": "en",
		"speed":    1.25,
		"threads":  4,
		"timeout":  "30s",
		"keywords": []any{"migraine", 7, "ibuprofen"},
		"bad":      "soon",
	}
	if got := optString(opts, "language"); got != "en" {
		t.Errorf("optString = %q", got)
	}
	if got := optString(opts, "speed"); got != "" {
		t.Errorf("optString on number = %q", got)
	}
	if got := optFloat(opts, "speed"); got != 1.25 {
		t.Errorf("optFloat(speed) = %v", got)
	}
	if got := optFloat(opts, "threads"); got != 4 {
		t.Errorf("optFloat(threads) = %v", got)
	}
	if got := optDuration(opts, "timeout"); got != 30*time.Second {
		t.Errorf("optDuration = %v", got)
	}
	if got := optDuration(opts, "bad"); got != 0 {
		t.Errorf("optDuration(bad) = %v", got)
	}
	if got := optStrings(opts, "keywords"); !slices.Equal(got, []string{"migraine", "ibuprofen"}) {
		t.Errorf("optStrings = %v", got)
	}
	if got := optString(nil, "language"); got != "" {
		t.Errorf("optString(nil) = %q", got)
	}
}

func TestRegisterBuiltinProviders_CoversValidNames(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	for kind, names := range config.ValidProviderNames {
		registered := reg.Names(kind)
		for _, n := range names {
			if !slices.Contains(registered, n) {
				t.Errorf("%s provider %q is valid but not registered", kind, n)
			}
		}
	}
}
