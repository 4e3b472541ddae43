package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/curaai/pkg/types"
)

// ErrNoToolCalling is returned by adapter constructors for models that cannot
// call tools. Every agent turn answers through a tool, so such models are
// rejected up front instead of failing on the first utterance.
var ErrNoToolCalling = errors.New("llm: model does not support tool calling")

// family is one row of the capability table. Rows are matched in order and
// the first prefix hit wins, so more specific prefixes come first.
type family struct {
	prefixes []string
	window   int
	output   int
	noTools  bool
}

var families = []family{
	{prefixes: []string{"o1-mini", "o1-preview"}, window: 128_000, output: 65_536, noTools: true},
	{prefixes: []string{"o1", "o3", "o4"}, window: 200_000, output: 100_000},
	{prefixes: []string{"gpt-4o", "gpt-4.1"}, window: 128_000, output: 16_384},
	{prefixes: []string{"gpt-4-turbo"}, window: 128_000, output: 4_096},
	{prefixes: []string{"gpt-4"}, window: 8_192, output: 4_096},
	{prefixes: []string{"gpt-3.5-turbo"}, window: 16_385, output: 4_096},
	{prefixes: []string{"claude"}, window: 200_000, output: 8_192},
	{prefixes: []string{"gemini-1.5-pro"}, window: 2_097_152, output: 8_192},
	{prefixes: []string{"gemini"}, window: 1_048_576, output: 8_192},
	{prefixes: []string{"deepseek-reasoner"}, window: 64_000, output: 8_192, noTools: true},
	{prefixes: []string{"deepseek"}, window: 64_000, output: 8_192},
	{prefixes: []string{"llama", "mistral", "mixtral", "qwen"}, window: 32_768, output: 4_096},
}

// CapabilitiesFor looks up a model by name, ignoring case. Unknown models are
// assumed to call tools with a 128k window.
func CapabilitiesFor(model string) types.ModelCapabilities {
	lower := strings.ToLower(strings.TrimSpace(model))
	for _, f := range families {
		for _, p := range f.prefixes {
			if strings.HasPrefix(lower, p) {
				return types.ModelCapabilities{
					ContextWindow:       f.window,
					MaxOutputTokens:     f.output,
					SupportsToolCalling: !f.noTools,
				}
			}
		}
	}
	return types.ModelCapabilities{
		ContextWindow:       128_000,
		MaxOutputTokens:     4_096,
		SupportsToolCalling: true,
	}
}

// CheckModel validates a model name for use by the agent.
func CheckModel(model string) error {
	if strings.TrimSpace(model) == "" {
		return errors.New("llm: model must not be empty")
	}
	if !CapabilitiesFor(model).SupportsToolCalling {
		return fmt.Errorf("%w: %s", ErrNoToolCalling, model)
	}
	return nil
}

// ErrTruncated is returned when the model hit its output limit while emitting
// tool calls. The arguments of such calls are cut-off JSON and must not run.
var ErrTruncated = errors.New("llm: response truncated during tool call")
