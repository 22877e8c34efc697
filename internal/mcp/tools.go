package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/box-mcp/internal/dispatch"
	"github.com/bobmcallan/box-mcp/internal/schema"
)

// BuildTool converts a catalog tool into an mcp.Tool with its input schema.
func BuildTool(t *schema.Tool) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}
	for _, p := range t.Params {
		opts = append(opts, paramOption(p))
	}

	switch t.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		opts = append(opts, mcp.WithReadOnlyHintAnnotation(true))
	case http.MethodDelete:
		opts = append(opts, mcp.WithDestructiveHintAnnotation(true))
	}
	opts = append(opts, mcp.WithOpenWorldHintAnnotation(true))

	return mcp.NewTool(t.Name, opts...)
}

// paramOption maps a catalog parameter to the matching mcp-go property option.
func paramOption(p schema.Parameter) mcp.ToolOption {
	var opts []mcp.PropertyOption
	if p.Description != "" {
		opts = append(opts, mcp.Description(p.Description))
	}
	if p.Required {
		opts = append(opts, mcp.Required())
	}

	switch p.Type {
	case schema.TypeNumber:
		return mcp.WithNumber(p.Name, opts...)
	case schema.TypeBoolean:
		return mcp.WithBoolean(p.Name, opts...)
	case schema.TypeObject:
		return mcp.WithObject(p.Name, opts...)
	case schema.TypeArray:
		// Path, query and header arrays are comma lists of strings on the wire.
		if p.In != schema.LocationBody {
			opts = append([]mcp.PropertyOption{mcp.WithStringItems()}, opts...)
		}
		return mcp.WithArray(p.Name, opts...)
	default:
		return mcp.WithString(p.Name, opts...)
	}
}

// ToolHandler routes an MCP tool call through the dispatcher. Failures come
// back as IsError results, never as protocol errors.
func ToolHandler(d *dispatch.Dispatcher, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := d.Invoke(ctx, name, r.GetArguments())
		if err != nil {
			var derr *dispatch.Error
			if errors.As(err, &derr) {
				return dispatchErrorResult(derr), nil
			}
			return errorResult("Error: " + err.Error()), nil
		}
		return toolResult(name, res), nil
	}
}

// RegisterTools adds every catalog tool to s and returns how many were added.
func RegisterTools(s *server.MCPServer, d *dispatch.Dispatcher) int {
	tools := d.Catalog().Tools()
	for _, t := range tools {
		s.AddTool(BuildTool(t), ToolHandler(d, t.Name))
	}
	return len(tools)
}
