// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to script multi-step tool-calling exchanges
// without a live LLM backend. Responses are consumed in order; once they run
// out, CompleteResponse is returned for every further call.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []*llm.CompletionResponse{
//	        {ToolCalls: []types.ToolCall{{ID: "1", Name: "assistant_response", Arguments: `{"ai_response":"Hi"}`}}},
//	        {Content: "Hi"},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/curaai/pkg/provider/llm"
	"github.com/MrWong99/curaai/pkg/types"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned by successive Complete calls.
	Responses []*llm.CompletionResponse

	// CompleteResponse is returned once Responses is exhausted. May be nil.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// CompleteFunc, if set, overrides every other field.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities types.ModelCapabilities

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	msgs := make([]types.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn := p.CompleteFunc
	if fn == nil {
		defer p.mu.Unlock()
		if p.CompleteErr != nil {
			return nil, p.CompleteErr
		}
		if len(p.Responses) > 0 {
			next := p.Responses[0]
			p.Responses = p.Responses[1:]
			return next, nil
		}
		return p.CompleteResponse, nil
	}
	p.mu.Unlock()
	return fn(ctx, req)
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a snapshot of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
