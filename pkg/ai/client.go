// Package ai calls an OpenAI-compatible chat-completions endpoint to diagnose
// task failures and hold an operator chat. Every call is quota-checked first
// and appended to a JSONL interaction log afterwards. Failures here are
// logged by callers, never fatal to the control loop.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.openai.com/v1"

// Options configures a Client. StateDir holds quota.json and ai_history.jsonl.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	StateDir    string
	QuotaTokens int     // 0 means unlimited
	QuotaUSD    float64 // 0 means unlimited
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

type Client struct {
	http    *http.Client
	apiKey  string
	baseURL string
	model   string
	quota   *QuotaTracker
	logger  *slog.Logger
	logPath string
}

// ChatMessage is one turn in a conversation, using OpenAI role conventions.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	quota, err := LoadQuota(opts.StateDir, opts.QuotaTokens, opts.QuotaUSD)
	if err != nil {
		return nil, fmt.Errorf("load quota state: %w", err)
	}
	var logPath string
	if opts.StateDir != "" {
		logPath = opts.StateDir + "/ai_history.jsonl"
	}
	return &Client{
		http:    opts.HTTPClient,
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		model:   opts.Model,
		quota:   quota,
		logger:  opts.Logger,
		logPath: logPath,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Usage reports tokens and estimated USD spent today.
func (c *Client) Usage() (int, float64) { return c.quota.UsageToday() }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// AnalyzeFailure asks the model to explain a task failure and optionally
// propose a single variable change. vars and facts are included verbatim as
// pretty-printed JSON context.
func (c *Client) AnalyzeFailure(ctx context.Context, taskName, errMsg string, vars, facts any) (*Analysis, error) {
	if err := c.quota.CheckLimit(); err != nil {
		return nil, err
	}

	system := "You are an expert Ansible debugger. " +
		"Analyze the following task failure and provided variables. " +
		"Explain why it failed and suggest a specific variable change or fix. " +
		`Output ONLY valid JSON in the following format: ` +
		`{ "analysis": "...explanation...", "fix": { "key": "variable_name", "value": ...val... } } ` +
		`If no fix is possible, omit the "fix" field.`

	user := fmt.Sprintf("Task: %s\nError: %s\nVariables: %s\nFacts: %s",
		taskName, errMsg, prettyJSON(vars), prettyJSON(facts))

	content, tokens, err := c.complete(ctx, []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
	if err != nil {
		return nil, err
	}
	c.logInteraction(user, content, tokens)

	analysis, err := ParseAnalysis(content)
	if err != nil {
		return nil, err
	}
	analysis.TokensUsed = tokens
	if err := c.quota.AddUsage(tokens, c.model); err != nil {
		c.logger.Warn("persist quota usage", "error", err)
	}
	return analysis, nil
}

// Chat sends a conversation history and returns the assistant reply. A
// system prompt is prepended if the history carries none.
func (c *Client) Chat(ctx context.Context, history []ChatMessage) (ChatMessage, error) {
	if err := c.quota.CheckLimit(); err != nil {
		return ChatMessage{}, err
	}

	messages := history
	hasSystem := false
	for _, m := range history {
		if m.Role == "system" {
			hasSystem = true
			break
		}
	}
	if !hasSystem {
		messages = append([]ChatMessage{{
			Role: "system",
			Content: "You are a helpful AI assistant integrated into playctl. " +
				"Help the user debug playbooks, explain errors, and suggest fixes. " +
				"When providing code, use markdown code blocks.",
		}}, history...)
	}

	content, tokens, err := c.complete(ctx, messages)
	if err != nil {
		return ChatMessage{}, err
	}
	lastUser := ""
	if len(history) > 0 {
		lastUser = history[len(history)-1].Content
	}
	c.logInteraction(lastUser, content, tokens)
	if err := c.quota.AddUsage(tokens, c.model); err != nil {
		c.logger.Warn("persist quota usage", "error", err)
	}
	return ChatMessage{Role: "assistant", Content: content}, nil
}

// ListModels queries the provider's model catalog, falling back to the
// configured model alone when discovery fails.
func (c *Client) ListModels(ctx context.Context) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return []string{c.model}
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return []string{c.model}
	}
	defer resp.Body.Close()

	var models struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil || len(models.Data) == 0 {
		return []string{c.model}
	}
	names := make([]string, 0, len(models.Data)+1)
	seen := map[string]bool{}
	for _, m := range models.Data {
		if !seen[m.ID] {
			names = append(names, m.ID)
			seen[m.ID] = true
		}
	}
	if !seen[c.model] {
		names = append(names, c.model)
	}
	sort.Strings(names)
	return names
}

func (c *Client) complete(ctx context.Context, messages []ChatMessage) (string, int, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", 0, fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("send request to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, fmt.Errorf("chat completions: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", 0, fmt.Errorf("parse chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", 0, fmt.Errorf("no response content from model")
	}
	tokens := 0
	if cr.Usage != nil {
		tokens = cr.Usage.TotalTokens
	}
	return cr.Choices[0].Message.Content, tokens, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func prettyJSON(v any) string {
	if v == nil {
		return "None"
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
