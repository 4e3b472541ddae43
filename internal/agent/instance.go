// Package agent drives one conversational turn of the medical assistant.
//
// Every utterance gets a fresh [Instance]: the instruction text is rendered
// from the current ledger view and the new input, and the tool set is bound
// anew. Nothing from a previous turn's model exchange carries over; the
// ledger is the only memory. The [Runner] executes the tool-calling loop and
// the [Orchestrator] ties the ledger, the runner and the termination check
// together.
package agent

import (
	"github.com/MrWong99/curaai/pkg/types"
)

// Instance is the agent configuration for a single turn. It is built by
// NewInstance and discarded after the turn.
type Instance struct {
	Name string

	// Model names the model for logs and traces. The provider is bound to
	// its model when it is built, so requests do not carry it.
	Model string

	Instructions string
	Input        string
	Tools        []types.ToolDefinition
	Temperature  float64
}

// InstanceConfig carries the static parts of an Instance.
type InstanceConfig struct {
	Name        string
	Model       string // informational, see Instance.Model
	Temperature float64
	Prompt      *Prompt

	// Tool names substituted into the prompt.
	SpeakTool   string
	SearchTool  string
	FetchTool   string
	SummaryTool string
}

// NewInstance renders the instructions for conversation and input and binds
// tools. The tools slice is copied.
func NewInstance(cfg InstanceConfig, conversation, input string, tools []types.ToolDefinition) (*Instance, error) {
	prompt := cfg.Prompt
	if prompt == nil {
		prompt = defaultPrompt
	}
	text, err := prompt.Render(PromptData{
		Name:         cfg.Name,
		Conversation: conversation,
		Input:        input,
		Termination:  TerminationPhrase,
		SpeakTool:    cfg.SpeakTool,
		SearchTool:   cfg.SearchTool,
		FetchTool:    cfg.FetchTool,
		SummaryTool:  cfg.SummaryTool,
	})
	if err != nil {
		return nil, err
	}
	return &Instance{
		Name:         cfg.Name,
		Model:        cfg.Model,
		Instructions: text,
		Input:        input,
		Tools:        append([]types.ToolDefinition(nil), tools...),
		Temperature:  cfg.Temperature,
	}, nil
}
