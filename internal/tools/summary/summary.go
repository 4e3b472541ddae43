// Package summary provides the generate_file tool, which writes the
// diagnosis summary to a fixed text file. Each call overwrites the previous
// summary.
package summary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/curaai/internal/toolbox"
	"github.com/MrWong99/curaai/pkg/types"
)

const (
	// Name is the identifier the model calls.
	Name = "generate_file"

	// Sentinel is shown to the model when the file cannot be written.
	Sentinel = "GENERATE FILE TOOL ERROR"

	// DefaultPath is used when Tool is given an empty path.
	DefaultPath = "diagnosis_summary.txt"
)

// Tool returns the generate_file tool writing to path.
func Tool(path string) toolbox.Tool {
	if path == "" {
		path = DefaultPath
	}
	return toolbox.Tool{
		Definition: types.ToolDefinition{
			Name:        Name,
			Description: "Generate a text file with the diagnosis summary.",
			Parameters:  toolbox.StringParam("diagnosis_summary", "The full diagnosis summary to save."),
		},
		Handler: func(_ context.Context, raw string) toolbox.Result {
			a, err := toolbox.DecodeArgs[struct {
				DiagnosisSummary string `json:"diagnosis_summary"`
			}](raw)
			if err != nil {
				return toolbox.Fail(Sentinel, err)
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return toolbox.Fail(Sentinel, fmt.Errorf("summary: create directory: %w", err))
				}
			}
			if err := os.WriteFile(path, []byte(a.DiagnosisSummary), 0o644); err != nil {
				return toolbox.Fail(Sentinel, fmt.Errorf("summary: write: %w", err))
			}
			return toolbox.OK("Diagnosis summary saved to " + path)
		},
		Timeout: 5 * time.Second,
	}
}
