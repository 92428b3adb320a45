package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/huangsam/codeaudit/core"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/schema"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolHandler holds common dependencies for MCP tool handlers.
type toolHandler struct {
	baseCfg *contract.Config
	env     *core.Env
}

// selection applies the run and severity arguments shared by the read tools.
func (h *toolHandler) selection(request mcp.CallToolRequest) (*contract.Config, error) {
	cfg := h.baseCfg.Clone()
	runID, err := contract.ParseRunSelector(request.GetString("run", ""))
	if err != nil {
		return nil, err
	}
	cfg.RunID = runID
	if s := request.GetString("min_severity", ""); s != "" {
		if cfg.MinSeverity, err = contract.ParseSeverityInput("min_severity", s); err != nil {
			return nil, err
		}
	}
	if l := request.GetInt("limit", 0); l > 0 {
		cfg.ResultLimit = min(l, contract.MaxResultLimit)
	}
	return cfg, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func (h *toolHandler) handleGetReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.selection(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid report parameters: %v", err)), nil
	}
	cfg.IncludeDuplicates = request.GetBool("include_duplicates", false)

	report, err := core.BuildReport(ctx, h.env.Store, cfg)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("report failed: %v", err)), nil
	}
	return jsonResult(report)
}

func (h *toolHandler) handleGetSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.selection(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid summary parameters: %v", err)), nil
	}
	run, err := core.ResolveRun(ctx, h.env.Store, cfg.RunID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("summary failed: %v", err)), nil
	}
	summary, err := core.Summarize(ctx, h.env.Store, run.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("summary failed: %v", err)), nil
	}
	return jsonResult(summary)
}

func (h *toolHandler) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg, err := h.selection(request)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid task parameters: %v", err)), nil
	}
	pending := request.GetBool("pending", false)

	records, err := h.env.Store.ListProcessed(ctx, schema.ProcessedFilter{
		MinSeverity:     cfg.MinSeverity,
		OnlyActionable:  pending,
		OnlyWithoutTask: pending,
		Limit:           cfg.ResultLimit,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing tasks failed: %v", err)), nil
	}
	return jsonResult(records)
}

func (h *toolHandler) handleGetStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(core.BuildStatus(ctx, h.baseCfg, h.env))
}
