package ai

import (
	"encoding/json"
	"os"
	"time"
)

type interactionEntry struct {
	Timestamp string `json:"timestamp"`
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Tokens    int    `json:"tokens"`
}

// logInteraction appends one prompt/response pair to ai_history.jsonl.
// Logging failures are reported but never surfaced to the caller.
func (c *Client) logInteraction(prompt, response string, tokens int) {
	if c.logPath == "" {
		return
	}
	entry := interactionEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Model:     c.model,
		Prompt:    prompt,
		Response:  response,
		Tokens:    tokens,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("marshal interaction log entry", "error", err)
		return
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		c.logger.Warn("open interaction log", "path", c.logPath, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		c.logger.Warn("append interaction log", "error", err)
	}
}
