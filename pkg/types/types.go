// Package types defines the shared types used across CuraAI packages.
//
// These types are the common vocabulary between the LLM providers, the tool
// box and the agent runner. Each package keeps its own domain types; only
// cross-cutting structures live here to avoid import cycles.
package types

// Message roles understood by every LLM provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser, RoleAssistant or RoleTool.
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is RoleTool, identifying which tool call this responds to.
	ToolCallID string
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	// ID is the provider-assigned identifier for this call.
	ID string

	// Name is the tool name. It must match a registered ToolDefinition.Name.
	Name string

	// Arguments is the JSON-encoded arguments object.
	Arguments string
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	// Name is the tool's unique identifier. The agent prompt refers to tools
	// by this exact string.
	Name string

	// Description explains what the tool does (included in LLM requests).
	Description string

	// Parameters is the JSON Schema describing the tool's input object.
	Parameters map[string]any
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool
}
