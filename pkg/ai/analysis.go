package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Analysis is the structured diagnosis returned by the model.
type Analysis struct {
	Analysis   string `json:"analysis"`
	Fix        *Fix   `json:"fix,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// Fix is a single suggested variable override.
type Fix struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ParseAnalysis decodes a model reply into an Analysis, tolerating markdown
// code fences around the JSON body.
func ParseAnalysis(content string) (*Analysis, error) {
	clean := strings.TrimSpace(content)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	var a Analysis
	if err := json.Unmarshal([]byte(clean), &a); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w", err)
	}
	return &a, nil
}
