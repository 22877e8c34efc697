// Package mcp exposes the Box tool catalog over the Model Context Protocol.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/box-mcp/internal/common"
	"github.com/bobmcallan/box-mcp/internal/dispatch"
)

// NewServer creates an MCP server with one tool per catalog entry plus
// get_version.
func NewServer(name string, d *dispatch.Dispatcher, logger *common.Logger) *server.MCPServer {
	mcpSrv := server.NewMCPServer(
		name,
		common.GetVersion(),
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	count := RegisterTools(mcpSrv, d)

	if _, taken := d.Catalog().Lookup(VersionToolName); taken {
		logger.Warn().Str("tool", VersionToolName).Msg("catalog defines get_version, built-in status tool disabled")
	} else {
		mcpSrv.AddTool(VersionTool(), VersionToolHandler(d))
	}

	for _, s := range d.Catalog().Skipped() {
		logger.Debug().Str("operation", s.Operation).Str("reason", s.Reason).Msg("operation not exposed as a tool")
	}
	logger.Info().
		Int("tools", count).
		Int("skipped", len(d.Catalog().Skipped())).
		Msg("MCP server initialized")

	return mcpSrv
}
