package llm

import (
	"strings"

	"github.com/google/uuid"

	"github.com/MrWong99/curaai/pkg/types"
)

// NormalizeToolCalls prepares tool calls from a backend response for
// execution. Blank arguments become "{}" so argument decoding does not fail on
// parameterless calls, and calls without an ID get a generated one so the
// tool result can be paired with its call on the next round trip. Some local
// backends omit both.
func NormalizeToolCalls(calls []types.ToolCall) []types.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]types.ToolCall, len(calls))
	for i, c := range calls {
		c.Name = strings.TrimSpace(c.Name)
		if strings.TrimSpace(c.Arguments) == "" {
			c.Arguments = "{}"
		}
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		out[i] = c
	}
	return out
}
