package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/box-mcp/internal/common"
	"github.com/bobmcallan/box-mcp/internal/dispatch"
)

// VersionToolName is the built-in status tool. A catalog tool of the same
// name takes precedence.
const VersionToolName = "get_version"

// connectivityTool is called by get_version to confirm the credentials work.
const connectivityTool = "get_users_me"

// versionInfo holds version fields for the binary.
type versionInfo struct {
	Version string `json:"version"`
	Build   string `json:"build"`
	Commit  string `json:"commit"`
}

type boxUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Login string `json:"login"`
}

type versionResult struct {
	BoxMCP   versionInfo `json:"box_mcp"`
	Tools    int         `json:"tools"`
	Skipped  int         `json:"skipped_operations"`
	BoxUser  *boxUser    `json:"box_user,omitempty"`
	BoxError string      `json:"box_error,omitempty"`
}

// VersionTool returns the mcp.Tool definition for get_version.
func VersionTool() mcp.Tool {
	return mcp.NewTool(VersionToolName,
		mcp.WithDescription("Get box-mcp version and status, and check that the configured Box credentials work."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

// VersionToolHandler reports version info plus the authenticated Box user.
// A failed Box call is reported in the result rather than as a tool error.
func VersionToolHandler(d *dispatch.Dispatcher) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := versionResult{
			BoxMCP: versionInfo{
				Version: common.GetVersion(),
				Build:   common.GetBuild(),
				Commit:  common.GetGitCommit(),
			},
			Tools:   d.Catalog().Len(),
			Skipped: len(d.Catalog().Skipped()),
		}

		if _, ok := d.Catalog().Lookup(connectivityTool); ok {
			res, err := d.Invoke(ctx, connectivityTool, map[string]any{"fields": "id,name,login"})
			if err != nil {
				result.BoxError = err.Error()
			} else {
				var u boxUser
				if err := res.Decode(&u); err != nil {
					result.BoxError = "unreadable user response: " + err.Error()
				} else {
					result.BoxUser = &u
				}
			}
		}

		out, err := json.Marshal(result)
		if err != nil {
			return errorResult("failed to marshal version info"), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(out))},
		}, nil
	}
}
