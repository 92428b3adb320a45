// Package mcp provides the Model Context Protocol (MCP) server implementation.
package mcp

import (
	"context"

	"github.com/huangsam/codeaudit/core"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer initializes and configures the codeaudit MCP server without starting it.
// This is exposed for unit testing.
func NewMCPServer(baseCfg *contract.Config, env *core.Env) *server.MCPServer {
	s := server.NewMCPServer(
		"Codeaudit Findings Server",
		"1.0.0",
		server.WithLogging(),
	)

	h := &toolHandler{
		baseCfg: baseCfg,
		env:     env,
	}

	severities := mcp.Enum("critical", "high", "medium", "low", "info")

	// --- 1. Tool: get_report ---
	s.AddTool(mcp.NewTool("get_report",
		mcp.WithDescription("List the findings of an audit run, most severe first."),
		mcp.WithString("run", mcp.Description("Run ID or 'latest' (the newest complete run). Defaults to 'latest'.")),
		mcp.WithString("min_severity", mcp.Description("Hide findings below this severity."), severities),
		mcp.WithNumber("limit", mcp.Description("Limit the number of findings returned.")),
		mcp.WithBoolean("include_duplicates", mcp.Description("Also return findings marked as cross-source duplicates.")),
	), h.handleGetReport)

	// --- 2. Tool: get_summary ---
	s.AddTool(mcp.NewTool("get_summary",
		mcp.WithDescription("Count the findings of an audit run by source, severity, category and file."),
		mcp.WithString("run", mcp.Description("Run ID or 'latest'.")),
	), h.handleGetSummary)

	// --- 3. Tool: list_tasks ---
	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List review-bot findings with their classification and task state."),
		mcp.WithString("min_severity", mcp.Description("Hide findings below this severity."), severities),
		mcp.WithBoolean("pending", mcp.Description("Only actionable findings that have no task yet.")),
		mcp.WithNumber("limit", mcp.Description("Limit the number of results.")),
	), h.handleListTasks)

	// --- 4. Tool: get_status ---
	s.AddTool(mcp.NewTool("get_status",
		mcp.WithDescription("Report store health and whether each configured service can be reached."),
	), h.handleGetStatus)

	return s
}

// StartMCPServer starts the codeaudit MCP server on stdio.
func StartMCPServer(_ context.Context, baseCfg *contract.Config, env *core.Env) error {
	s := NewMCPServer(baseCfg, env)
	return server.ServeStdio(s)
}
