package agent

import (
	"strings"
	"testing"

	"github.com/MrWong99/curaai/pkg/types"
)

func TestNewInstance_RendersDefaultPrompt(t *testing.T) {
	t.Parallel()

	cfg := InstanceConfig{
		Name:        "CuraAI",
		Model:       "gpt-4o-mini",
		SpeakTool:   "assistant_response",
		SearchTool:  "get_medical_articles",
		FetchTool:   "search_by_pmid",
		SummaryTool: "generate_file",
	}
	tools := []types.ToolDefinition{{Name: "assistant_response"}}
	conv := "User: I have a headache.\nCuraAI: Since when?"

	inst, err := NewInstance(cfg, conv, "Two days.", tools)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	for _, want := range []string{
		"You are CuraAI, a medical voice assistant.",
		"using the 'assistant_response' tool",
		conv,
		"call get_medical_articles(symptoms)",
		"call search_by_pmid(pmid)",
		"call generate_file(diagnosis_summary)",
		`return "Goodbye, have a nice day!" using the tool`,
		"Family history (diabetes, hypertension, high blood pressure)",
	} {
		if !strings.Contains(inst.Instructions, want) {
			t.Errorf("instructions missing %q", want)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(inst.Instructions), "Two days.") {
		t.Error("instructions must end with the user's message")
	}
	if inst.Input != "Two days." || inst.Model != "gpt-4o-mini" {
		t.Errorf("unexpected instance %+v", inst)
	}

	tools[0].Name = "mutated"
	if inst.Tools[0].Name != "assistant_response" {
		t.Error("instance must own its tool slice")
	}
}

func TestParsePrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"valid", "Hi {{.Name}}: {{.Input}}", false},
		{"syntax error", "Hi {{.Name", true},
		{"unknown field", "Hi {{.Patient}}", true},
	}
	for _, tc := range tests {
		_, err := ParsePrompt(tc.text)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}
