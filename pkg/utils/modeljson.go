package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeModelJSON unmarshals a JSON object out of an LLM response. Models in
// JSON mode still occasionally wrap the object in markdown fences or prose, so
// the decoder slices from the first '{' to the last '}' before unmarshaling.
func DecodeModelJSON(content string, v any) error {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return fmt.Errorf("no JSON object in model response")
	}

	if err := json.Unmarshal([]byte(trimmed[start:end+1]), v); err != nil {
		return fmt.Errorf("failed to decode model JSON: %w", err)
	}
	return nil
}
