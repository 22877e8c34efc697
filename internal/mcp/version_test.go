package mcp

import (
	"encoding/json"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/bobmcallan/box-mcp/internal/common"
	"github.com/bobmcallan/box-mcp/internal/credentials"
	"github.com/bobmcallan/box-mcp/internal/dispatch"
	"github.com/bobmcallan/box-mcp/internal/schema"
)

func TestVersionToolHandler_WithBoxUser(t *testing.T) {
	box := newFakeBox()
	handler := VersionToolHandler(newTestDispatcher(t, box, nil))

	result, err := handler(t.Context(), mcpgo.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}

	var out versionResult
	text := result.Content[0].(mcpgo.TextContent).Text
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if out.BoxMCP.Version != common.GetVersion() {
		t.Errorf("expected version %s, got %s", common.GetVersion(), out.BoxMCP.Version)
	}
	if out.Tools == 0 {
		t.Error("expected a non-zero tool count")
	}
	if out.BoxUser == nil || out.BoxUser.Login != "ada@example.com" {
		t.Errorf("expected Box user, got %+v", out.BoxUser)
	}
	if out.BoxError != "" {
		t.Errorf("unexpected box_error %q", out.BoxError)
	}

	req := box.lastRequest(t)
	if req.URL != "https://api.box.com/2.0/users/me?fields=id%2Cname%2Clogin" {
		t.Errorf("unexpected connectivity URL %s", req.URL)
	}
}

func TestVersionToolHandler_BadCredentials(t *testing.T) {
	handler := VersionToolHandler(newTestDispatcher(t, newFakeBox(), credentials.NewStatic("")))

	result, err := handler(t.Context(), mcpgo.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatal("credential problems should be reported, not raised")
	}

	var out versionResult
	json.Unmarshal([]byte(result.Content[0].(mcpgo.TextContent).Text), &out)
	if out.BoxError == "" {
		t.Error("expected box_error to be set")
	}
	if out.BoxUser != nil {
		t.Errorf("unexpected user %+v", out.BoxUser)
	}
}

func TestNewServer_CatalogGetVersionWins(t *testing.T) {
	catalog, err := schema.Load([]byte(`[
		{"name": "get_version", "method": "GET", "path": "/version", "description": "Catalog version tool"}
	]`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := dispatch.New(catalog, newFakeBox(), credentials.NewStatic("t"), common.NewSilentLogger(), dispatch.Options{BaseURL: "https://api.box.com/2.0"})

	tools := listTools(t, NewServer("box-mcp", d, common.NewSilentLogger()))
	if len(tools) != 1 {
		t.Fatalf("expected only the catalog tool, got %d", len(tools))
	}
	if tools[0].Description != "Catalog version tool" {
		t.Errorf("built-in get_version replaced the catalog tool: %q", tools[0].Description)
	}
}
