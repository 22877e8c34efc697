package mcp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/bobmcallan/box-mcp/internal/dispatch"
)

// errorResult creates an MCP error result.
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}

// dispatchErrorResult renders a dispatch failure as JSON so clients can act
// on kind and status_code.
func dispatchErrorResult(err *dispatch.Error) *mcp.CallToolResult {
	data, merr := json.Marshal(err)
	if merr != nil {
		return errorResult("Error: " + err.Error())
	}
	return errorResult(string(data))
}

// toolResult converts a successful response. JSON and text bodies come back
// as text; anything else (file downloads, thumbnails) as an embedded blob.
func toolResult(name string, res *dispatch.Result) *mcp.CallToolResult {
	if len(res.Body) == 0 {
		status := fmt.Sprintf("%d %s", res.StatusCode, http.StatusText(res.StatusCode))
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(status)}}
	}

	contentType := res.Header.Get("Content-Type")
	if res.IsJSON() || isTextual(contentType, res.Body) {
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(res.Body))}}
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	blob := mcp.BlobResourceContents{
		URI:      "box://" + name,
		MIMEType: contentType,
		Blob:     base64.StdEncoding.EncodeToString(res.Body),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("%d bytes of %s", len(res.Body), contentType)),
			mcp.NewEmbeddedResource(blob),
		},
	}
}

// isTextual covers non-JSON bodies that still read as text.
func isTextual(contentType string, body []byte) bool {
	if contentType == "" {
		return utf8.Valid(body)
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return utf8.Valid(body)
	}
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case mt == "application/xml", strings.HasSuffix(mt, "+xml"):
		return true
	}
	return false
}
