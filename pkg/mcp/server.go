// Package mcp exposes archived playctl sessions to MCP clients over stdio.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates a new MCP server with playctl tools registered.
// archiveDir is where finished sessions are stored.
func NewServer(version, archiveDir string) *server.MCPServer {
	s := server.NewMCPServer(
		"playctl",
		version,
		server.WithToolCapabilities(true),
	)

	h := &handlers{archiveDir: archiveDir}

	s.AddTool(
		mcp.NewTool("playctl/sessions",
			mcp.WithDescription("List archived playctl session files, newest first"),
		),
		h.ListSessions,
	)

	s.AddTool(
		mcp.NewTool("playctl/status",
			mcp.WithDescription("Summarize a playctl session (host counts, task counts, failures)"),
			mcp.WithString("session", mcp.Required(), mcp.Description("Session archive filename or path")),
		),
		h.Status,
	)

	s.AddTool(
		mcp.NewTool("playctl/query",
			mcp.WithDescription("Run an expression query against a saved playctl session"),
			mcp.WithString("session", mcp.Required(), mcp.Description("Session archive filename or path")),
			mcp.WithString("query", mcp.Required(), mcp.Description("Query expression, e.g. filter(history, .failed)")),
		),
		h.Query,
	)

	s.AddTool(
		mcp.NewTool("playctl/failures",
			mcp.WithDescription("List failed tasks from a session, with AI analyses when present"),
			mcp.WithString("session", mcp.Required(), mcp.Description("Session archive filename or path")),
		),
		h.Failures,
	)

	return s
}
