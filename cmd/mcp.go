package cmd

import (
	"github.com/huangsam/offcache/internal/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the offcache MCP server",
	Long: `Launch an MCP server on stdio that lets AI agents inspect the caches and
send requests through the worker via standard tools.`,
	PreRunE: sharedSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		// The console stays on stderr since stdout carries the protocol.
		dispatcher, reg, err := startHost(rootCtx, newConsole())
		if err != nil {
			return err
		}
		go reg.WatchClients(rootCtx, cfg.ClientIdle)
		return mcp.StartMCPServer(rootCtx, cfg, cacheManager, dispatcher)
	},
}
