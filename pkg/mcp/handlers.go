package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/playctl/playctl/pkg/query"
	"github.com/playctl/playctl/pkg/session"
)

type handlers struct {
	archiveDir string
}

// ListSessions implements the playctl/sessions MCP tool.
func (h *handlers) ListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := os.ReadDir(h.archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return textResult("No archived sessions found."), nil
		}
		return errorResult(fmt.Sprintf("read archive directory: %s", err)), nil
	}

	var sessions []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".json.gz") {
			sessions = append(sessions, filepath.Join(h.archiveDir, entry.Name()))
		}
	}
	if len(sessions) == 0 {
		return textResult("No archived sessions found."), nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(sessions)))
	return textResult(strings.Join(sessions, "\n")), nil
}

// Status implements the playctl/status MCP tool.
func (h *handlers) Status(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, name, res := h.loadSession(req)
	if res != nil {
		return res, nil
	}

	failed, changed := 0, 0
	for _, task := range sess.History {
		switch {
		case task.Failed:
			failed++
		case task.Changed:
			changed++
		}
	}
	ok := len(sess.History) - failed - changed

	summary := fmt.Sprintf(
		"Session: %s\nHosts: %d\nTasks: %d total (%d ok, %d changed, %d failed)\nUnreachable: %d",
		name, len(sess.Hosts), len(sess.History), ok, changed, failed, len(sess.Unreachable),
	)
	return textResult(summary), nil
}

// Query implements the playctl/query MCP tool.
func (h *handlers) Query(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, _, res := h.loadSession(req)
	if res != nil {
		return res, nil
	}
	q, _ := req.GetArguments()["query"].(string)
	if q == "" {
		return errorResult("query argument is required"), nil
	}

	doc, err := sess.Document()
	if err != nil {
		return errorResult(fmt.Sprintf("build session document: %s", err)), nil
	}
	result, err := query.NewEngine(doc).Eval(q)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("render result: %s", err)), nil
	}
	return textResult(string(data)), nil
}

// Failures implements the playctl/failures MCP tool.
func (h *handlers) Failures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, _, res := h.loadSession(req)
	if res != nil {
		return res, nil
	}

	var b strings.Builder
	count := 0
	for _, task := range sess.History {
		if !task.Failed {
			continue
		}
		count++
		fmt.Fprintf(&b, "%d. %s (%s)\n", count, task.Name, task.Host)
		if task.Error != "" {
			fmt.Fprintf(&b, "   error: %s\n", task.Error)
		}
		if task.Analysis != nil {
			fmt.Fprintf(&b, "   analysis: %s\n", task.Analysis.Analysis)
			if fix := task.Analysis.Fix; fix != nil {
				fmt.Fprintf(&b, "   suggested fix: %s = %v\n", fix.Key, fix.Value)
			}
		}
	}
	if count == 0 {
		return textResult("No failed tasks in this session."), nil
	}
	return textResult(strings.TrimRight(b.String(), "\n")), nil
}

// loadSession resolves and loads the session named in the request. A non-nil
// third return value is the error result to hand back to the client.
func (h *handlers) loadSession(req mcp.CallToolRequest) (*session.Session, string, *mcp.CallToolResult) {
	name, _ := req.GetArguments()["session"].(string)
	if name == "" {
		return nil, "", errorResult("session argument is required")
	}
	path := name
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(h.archiveDir, name)
	}
	sess, err := session.Load(path)
	if err != nil {
		return nil, "", errorResult(fmt.Sprintf("load session %q: %s", name, err))
	}
	return sess, name, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
