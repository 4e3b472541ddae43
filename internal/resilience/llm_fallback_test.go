package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/curaai/pkg/provider/llm"
	llmmock "github.com/MrWong99/curaai/pkg/provider/llm/mock"
	"github.com/MrWong99/curaai/pkg/types"
)

func TestLLMFallback_Complete(t *testing.T) {
	tests := []struct {
		name          string
		primaryErr    error
		secondaryErr  error
		wantContent   string
		wantErr       error
		wantSecondary int
	}{
		{name: "primary success", wantContent: "from primary"},
		{name: "failover", primaryErr: errors.New("rate limited"), wantContent: "from secondary", wantSecondary: 1},
		{name: "all fail", primaryErr: errors.New("down"), secondaryErr: errors.New("down too"), wantErr: ErrAllFailed, wantSecondary: 1},
		{name: "cancelled does not fail over", primaryErr: context.Canceled, wantErr: context.Canceled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			primary := &llmmock.Provider{
				CompleteResponse: &llm.CompletionResponse{Content: "from primary"},
				CompleteErr:      tc.primaryErr,
			}
			secondary := &llmmock.Provider{
				CompleteResponse: &llm.CompletionResponse{Content: "from secondary"},
				CompleteErr:      tc.secondaryErr,
			}
			fb := NewLLMFallback(primary, "primary", FallbackConfig{
				CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
			})
			fb.AddFallback("secondary", secondary)

			resp, err := fb.Complete(context.Background(), llm.CompletionRequest{SystemPrompt: "You are CuraAI."})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if resp.Content != tc.wantContent {
					t.Errorf("content = %q, want %q", resp.Content, tc.wantContent)
				}
			}
			if got := len(secondary.Calls()); got != tc.wantSecondary {
				t.Errorf("secondary called %d times, want %d", got, tc.wantSecondary)
			}
		})
	}
}

func TestLLMFallback_CapabilitiesFromPrimary(t *testing.T) {
	primary := &llmmock.Provider{ModelCapabilities: types.ModelCapabilities{ContextWindow: 128000, SupportsToolCalling: true}}
	secondary := &llmmock.Provider{ModelCapabilities: types.ModelCapabilities{ContextWindow: 8000}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	if got := fb.Capabilities(); got.ContextWindow != 128000 || !got.SupportsToolCalling {
		t.Errorf("Capabilities() = %+v, want primary's", got)
	}
}
