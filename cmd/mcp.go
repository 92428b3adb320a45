package cmd

import (
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the codeaudit MCP server",
	Long:  `Launch an MCP server on stdio that lets AI agents read reports, summaries, tasks and status through standard tools.`,
	Args:  cobra.NoArgs,
	// Diagnostics already go to stderr, which leaves stdio to the protocol
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		err := mcp.StartMCPServer(rootCtx, cfg, env)
		closeEnv()
		if err != nil {
			contract.LogFatal("MCP server stopped", err)
		}
	},
}
