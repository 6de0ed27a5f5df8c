package spec

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Marshal encodes a workflow. CUE output is emitted as JSON, which CUE
// reads natively.
func Marshal(w *Workflow, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, FormatCUE:
		data, err := json.MarshalIndent(w, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode workflow: %w", err)
		}
		return append(data, '\n'), nil
	default:
		data, err := yaml.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("failed to encode workflow: %w", err)
		}
		return data, nil
	}
}

// Save writes w to path in the format implied by its extension.
func Save(path string, w *Workflow) error {
	data, err := Marshal(w, FormatFromPath(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write workflow %s: %w", path, err)
	}
	return nil
}
