package agent

import (
	"fmt"
	"strings"
	"text/template"
)

// DefaultPrompt is the CuraAI instruction template. It is rendered once per
// turn with the conversation view and the patient's newest message.
const DefaultPrompt = `You are {{.Name}}, a medical voice assistant.
You must always respond to the user using the '{{.SpeakTool}}' tool.

Here is the conversation so far:
{{.Conversation}}

Your goal is to maintain a natural conversation with the patient.
Gather the following key info if possible:
- Symptoms
- How long the patient has had the condition
- Family history (diabetes, hypertension, high blood pressure)

Ask follow-up questions only once if some info is missing.
If the patient already provided most of the info, continue without insisting.

After you have enough info, call {{.SearchTool}}(symptoms) to fetch PubMed results.
Pick the most relevant PMID and call {{.FetchTool}}(pmid) to get details.
Summarize the findings for the user and always respond via {{.SpeakTool}}.

If you give a diagnosis to the patient, also call {{.SummaryTool}}(diagnosis_summary) to save a summary.

If the user says goodbye, return "{{.Termination}}" using the tool.

The user's message is:
{{.Input}}
`

// PromptData is the data a prompt template is rendered with.
type PromptData struct {
	Name         string
	Conversation string
	Input        string
	Termination  string

	SpeakTool   string
	SearchTool  string
	FetchTool   string
	SummaryTool string
}

// Prompt is a parsed instruction template.
type Prompt struct {
	tmpl *template.Template
}

// ParsePrompt parses text as a prompt template. A trial render rejects
// templates that reference fields PromptData does not have.
func ParsePrompt(text string) (*Prompt, error) {
	tmpl, err := template.New("instructions").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("agent: parse prompt: %w", err)
	}
	p := &Prompt{tmpl: tmpl}
	if _, err := p.Render(PromptData{}); err != nil {
		return nil, err
	}
	return p, nil
}

// MustParsePrompt is ParsePrompt that panics on error. For package-level
// defaults only.
func MustParsePrompt(text string) *Prompt {
	p, err := ParsePrompt(text)
	if err != nil {
		panic(err)
	}
	return p
}

// Render executes the template.
func (p *Prompt) Render(data PromptData) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("agent: render prompt: %w", err)
	}
	return b.String(), nil
}

var defaultPrompt = MustParsePrompt(DefaultPrompt)
