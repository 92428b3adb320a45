package mcp_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/huangsam/codeaudit/core"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/logger"
	mcp_internal "github.com/huangsam/codeaudit/internal/mcp"
	"github.com/huangsam/codeaudit/internal/store"
	"github.com/huangsam/codeaudit/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*server.MCPServer, *store.SQLStore) {
	t.Helper()
	st, err := store.Open(context.Background(), schema.SQLiteBackend, store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	baseCfg := &contract.Config{
		ResultLimit: contract.DefaultResultLimit,
		Tasks:       contract.TaskConfig{Allocator: contract.AllocatorLocal},
	}
	return mcp_internal.NewMCPServer(baseCfg, core.NewEnv(st, logger.Discard())), st
}

func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.GetTool(name)
	require.NotNil(t, tool, "Tool %s should exist", name)

	res, err := tool.Handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	require.NoError(t, err, "The MCP handler should not return a raw error for tool logic failures")
	return res
}

func resultText(res *mcp.CallToolResult) string {
	return res.Content[0].(mcp.TextContent).Text
}

func TestMCPServerHandlers_ValidationErrors(t *testing.T) {
	s, _ := newServer(t)

	t.Run("get_report invalid run", func(t *testing.T) {
		res := callTool(t, s, "get_report", map[string]any{"run": "first"})
		assert.True(t, res.IsError, "The response should indicate an error state")
		assert.Contains(t, resultText(res), "invalid report parameters")
	})

	t.Run("get_report invalid severity", func(t *testing.T) {
		res := callTool(t, s, "get_report", map[string]any{"min_severity": "urgent"})
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "invalid min_severity 'urgent'")
	})

	t.Run("get_summary without runs", func(t *testing.T) {
		res := callTool(t, s, "get_summary", map[string]any{})
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), "no complete run found")
	})
}

func TestMCPServerHandlers_Results(t *testing.T) {
	s, st := newServer(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	runID, err := st.BeginRun(ctx, "acme/widgets", 7, "abc123", now)
	require.NoError(t, err)
	for _, f := range []schema.NewFinding{
		{RunID: runID, Source: schema.SourceSARIF, Severity: schema.SeverityHigh, Path: "a.go", Line: 10, Description: "X"},
		{RunID: runID, Source: schema.SourceCodacy, Severity: schema.SeverityLow, Path: "b.go", Line: 2, Description: "Y"},
	} {
		_, err := st.InsertFinding(ctx, f)
		require.NoError(t, err)
	}
	require.NoError(t, st.SealRun(ctx, runID, now, []schema.Source{schema.SourceSARIF, schema.SourceCodacy}))

	t.Run("get_report", func(t *testing.T) {
		res := callTool(t, s, "get_report", map[string]any{"min_severity": "medium"})
		require.False(t, res.IsError, resultText(res))
		var report schema.Report
		require.NoError(t, json.Unmarshal([]byte(resultText(res)), &report))
		assert.Equal(t, runID, report.Run.ID)
		require.Len(t, report.Findings, 1)
		assert.Equal(t, "X", report.Findings[0].Description)
	})

	t.Run("get_summary", func(t *testing.T) {
		res := callTool(t, s, "get_summary", map[string]any{"run": "latest"})
		require.False(t, res.IsError, resultText(res))
		var summary schema.Summary
		require.NoError(t, json.Unmarshal([]byte(resultText(res)), &summary))
		assert.Equal(t, 2, summary.Total)
	})

	t.Run("list_tasks", func(t *testing.T) {
		res := callTool(t, s, "list_tasks", map[string]any{"pending": true})
		require.False(t, res.IsError, resultText(res))
		assert.JSONEq(t, "[]", resultText(res))
	})

	t.Run("get_status", func(t *testing.T) {
		res := callTool(t, s, "get_status", nil)
		require.False(t, res.IsError)
		var status schema.StatusReport
		require.NoError(t, json.Unmarshal([]byte(resultText(res)), &status))
		assert.True(t, status.Store.Connected)
		assert.Equal(t, int64(1), status.Store.TotalRuns)
	})
}
