package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/curaai/internal/toolbox"
	"github.com/MrWong99/curaai/pkg/provider/llm"
	llmmock "github.com/MrWong99/curaai/pkg/provider/llm/mock"
	"github.com/MrWong99/curaai/pkg/types"
)

type scriptedTools struct {
	mu      sync.Mutex
	results map[string]toolbox.Result
	calls   []types.ToolCall
}

func (s *scriptedTools) Execute(_ context.Context, call types.ToolCall) toolbox.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	if r, ok := s.results[call.Name]; ok {
		return r
	}
	return toolbox.Fail(toolbox.GenericSentinel, nil)
}

func call(id, name, args string) types.ToolCall {
	return types.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestRunner_ToolLoop(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []types.ToolCall{
			call("1", "get_medical_articles", `{"symptoms":"headache"}`),
			call("2", "assistant_response", `{"ai_response":"I found some articles."}`),
		}},
		{Content: "I found some articles."},
	}}
	tools := &scriptedTools{results: map[string]toolbox.Result{
		"get_medical_articles": toolbox.OK("PMID: 1"),
		"assistant_response":   toolbox.OK("I found some articles."),
	}}

	r := NewRunner(provider, tools, WithEchoTool("assistant_response"))
	res, err := r.Run(context.Background(), &Instance{Instructions: "sys", Input: "my head hurts"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != "I found some articles." || res.ToolCalls != 2 || res.Turns != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	calls := provider.Calls()
	if len(calls) != 2 {
		t.Fatalf("provider called %d times", len(calls))
	}
	if calls[0].Req.SystemPrompt != "sys" || calls[0].Req.Messages[0].Content != "my head hurts" {
		t.Errorf("first request = %+v", calls[0].Req)
	}
	second := calls[1].Req.Messages
	if len(second) != 4 {
		t.Fatalf("second request has %d messages, want 4", len(second))
	}
	if second[1].Role != types.RoleAssistant || len(second[1].ToolCalls) != 2 {
		t.Errorf("assistant message = %+v", second[1])
	}
	if second[2].Role != types.RoleTool || second[2].ToolCallID != "1" || second[2].Content != "PMID: 1" {
		t.Errorf("first tool message = %+v", second[2])
	}
	if second[3].ToolCallID != "2" {
		t.Errorf("tool results out of order: %+v", second[3])
	}
}

func TestRunner_EmptyFinalFallsBackToEcho(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []types.ToolCall{call("1", "assistant_response", `{"ai_response":"Goodbye, have a nice day!"}`)}},
		{Content: ""},
	}}
	tools := &scriptedTools{results: map[string]toolbox.Result{
		"assistant_response": toolbox.OK("Goodbye, have a nice day!"),
	}}

	res, err := NewRunner(provider, tools, WithEchoTool("assistant_response")).
		Run(context.Background(), &Instance{Input: "bye"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != "Goodbye, have a nice day!" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestRunner_ToolFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{Responses: []*llm.CompletionResponse{
		{ToolCalls: []types.ToolCall{call("1", "get_medical_articles", `{}`)}},
		{Content: "Sorry, I could not reach PubMed."},
	}}
	tools := &scriptedTools{results: map[string]toolbox.Result{
		"get_medical_articles": toolbox.Fail("PUBMED TOOL ERROR", errors.New("503")),
	}}

	res, err := NewRunner(provider, tools).Run(context.Background(), &Instance{Input: "x"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	msgs := provider.Calls()[1].Req.Messages
	if msgs[2].Content != "PUBMED TOOL ERROR" {
		t.Errorf("model saw %q, want sentinel", msgs[2].Content)
	}
	if res.Output != "Sorry, I could not reach PubMed." {
		t.Errorf("output = %q", res.Output)
	}
}

func TestRunner_Errors(t *testing.T) {
	t.Parallel()

	loop := &llm.CompletionResponse{ToolCalls: []types.ToolCall{call("1", "assistant_response", `{}`)}}
	tests := []struct {
		name     string
		provider *llmmock.Provider
		ctx      func() context.Context
		wantErr  error
		wantLLM  bool
	}{
		{
			name:     "max turns",
			provider: &llmmock.Provider{CompleteResponse: loop},
			ctx:      context.Background,
			wantErr:  ErrMaxTurns,
		},
		{
			name:     "llm error",
			provider: &llmmock.Provider{CompleteErr: errors.New("rate limited")},
			ctx:      context.Background,
			wantLLM:  true,
		},
		{
			name:     "cancelled",
			provider: &llmmock.Provider{CompleteResponse: loop},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErr: context.Canceled,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := NewRunner(tc.provider, &scriptedTools{}, WithMaxTurns(3))
			res, err := r.Run(tc.ctx(), &Instance{Input: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
			if tc.name == "max turns" && res.Turns != 3 {
				t.Errorf("turns = %d, want 3", res.Turns)
			}
		})
	}
}
