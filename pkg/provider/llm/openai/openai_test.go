package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/curaai/pkg/provider/llm"
	"github.com/MrWong99/curaai/pkg/types"
)

func TestToMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		msg   types.Message
		check func(t *testing.T, m types.Message)
	}{
		{name: "system", msg: types.Message{Role: types.RoleSystem, Content: "You are CuraAI."}},
		{name: "user", msg: types.Message{Role: types.RoleUser, Content: "I have a headache."}},
		{name: "assistant", msg: types.Message{
			Role:      types.RoleAssistant,
			ToolCalls: []types.ToolCall{{ID: "call_1", Name: "get_medical_articles", Arguments: `{"symptoms":"headache"}`}},
		}},
		{name: "tool", msg: types.Message{Role: types.RoleTool, Content: "No relevant articles found.", ToolCallID: "call_1"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, err := toMessage(tc.msg)
			if err != nil {
				t.Fatalf("toMessage: %v", err)
			}
			switch tc.msg.Role {
			case types.RoleSystem:
				if p.OfSystem == nil {
					t.Fatal("expected OfSystem")
				}
			case types.RoleUser:
				if p.OfUser == nil {
					t.Fatal("expected OfUser")
				}
			case types.RoleAssistant:
				if p.OfAssistant == nil || len(p.OfAssistant.ToolCalls) != 1 {
					t.Fatalf("expected one assistant tool call, got %+v", p.OfAssistant)
				}
				tc := p.OfAssistant.ToolCalls[0]
				if tc.ID != "call_1" || tc.Function.Name != "get_medical_articles" || tc.Function.Arguments != `{"symptoms":"headache"}` {
					t.Errorf("unexpected tool call %+v", tc)
				}
			case types.RoleTool:
				if p.OfTool == nil || p.OfTool.ToolCallID != "call_1" {
					t.Fatalf("unexpected tool message %+v", p.OfTool)
				}
			}
		})
	}

	if _, err := toMessage(types.Message{Role: "narrator"}); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "o1-mini"); !errors.Is(err, llm.ErrNoToolCalling) {
		t.Errorf("err = %v, want ErrNoToolCalling", err)
	}
	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL("https://gateway.example.com"), WithOrganization("org-1"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
	if p.Capabilities().MaxOutputTokens != 16_384 {
		t.Errorf("capabilities = %+v", p.Capabilities())
	}
}

// completionServer answers every chat completion with one choice built from
// finish and toolCalls, and records the last request body.
func completionServer(t *testing.T, finish, toolCalls string, body *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		if body != nil {
			_ = json.Unmarshal(raw, body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "`+finish+`",
				"message": {"role": "assistant", "content": "", "tool_calls": `+toolCalls+`}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func request() llm.CompletionRequest {
	return llm.CompletionRequest{
		SystemPrompt: "You are CuraAI.",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "I have a headache."}},
		Tools: []types.ToolDefinition{{
			Name:        "assistant_response",
			Description: "Speak to the user.",
			Parameters:  map[string]any{"type": "object"},
		}},
		Temperature: 0.7,
	}
}

func TestComplete_ToolCalls(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := completionServer(t, "tool_calls", `[
		{"id": "call_1", "type": "function", "function": {"name": "assistant_response", "arguments": "{\"ai_response\":\"How long?\"}"}},
		{"id": "", "type": "function", "function": {"name": "generate_file", "arguments": ""}}
	]`, &body)

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), request())
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "call_1" || resp.ToolCalls[0].Name != "assistant_response" {
		t.Errorf("first call = %+v", resp.ToolCalls[0])
	}
	if second := resp.ToolCalls[1]; !strings.HasPrefix(second.ID, "call_") || second.Arguments != "{}" {
		t.Errorf("second call not normalized: %+v", second)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", resp.Usage.TotalTokens)
	}

	if msgs, _ := body["messages"].([]any); len(msgs) != 2 {
		t.Errorf("expected system + user messages, got %d", len(msgs))
	}
	if tools, _ := body["tools"].([]any); len(tools) != 1 {
		t.Errorf("expected 1 tool, got %d", len(tools))
	}
	if body["temperature"] != 0.7 {
		t.Errorf("temperature = %v", body["temperature"])
	}
}

func TestComplete_TruncatedToolCall(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, "length", `[
		{"id": "call_1", "type": "function", "function": {"name": "assistant_response", "arguments": "{\"ai_resp"}}
	]`, nil)

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Complete(context.Background(), request()); !errors.Is(err, llm.ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}
