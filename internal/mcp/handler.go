package mcp

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/box-mcp/internal/common"
	"github.com/bobmcallan/box-mcp/internal/credentials"
)

// TokenHeader carries a caller's own Box access token when passthrough is on.
const TokenHeader = "X-Box-Access-Token"

// HandlerOptions configures the HTTP endpoint.
type HandlerOptions struct {
	// APIKey, when set, must be presented as a Bearer token or X-API-Key.
	APIKey string
	// AllowTokenPassthrough lets callers supply their own Box token in TokenHeader.
	AllowTokenPassthrough bool
}

// Handler is the HTTP handler for the MCP endpoint.
// It wraps mcp-go's StreamableHTTPServer and delegates to it.
type Handler struct {
	streamable  *mcpserver.StreamableHTTPServer
	logger      *common.Logger
	apiKey      []byte
	passthrough bool
}

// NewHandler creates an HTTP handler for mcpSrv.
func NewHandler(mcpSrv *mcpserver.MCPServer, opts HandlerOptions, logger *common.Logger) *Handler {
	streamable := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithStateLess(true),
	)
	return &Handler{
		streamable:  streamable,
		logger:      logger,
		apiKey:      []byte(opts.APIKey),
		passthrough: opts.AllowTokenPassthrough,
	}
}

// ServeHTTP checks the API key (if configured), attaches a passthrough
// token to the context and delegates to the StreamableHTTPServer.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(h.apiKey) > 0 && !h.authorized(r) {
		h.logger.Warn().Str("remote", r.RemoteAddr).Msg("rejected MCP request without valid API key")
		w.Header().Set("WWW-Authenticate", `Bearer realm="box-mcp"`)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "unauthorized",
			"error_description": "A valid API key is required to access the MCP endpoint",
		})
		return
	}

	if h.passthrough {
		if token := strings.TrimSpace(r.Header.Get(TokenHeader)); token != "" {
			r = r.WithContext(credentials.WithToken(r.Context(), token))
		}
	}

	h.streamable.ServeHTTP(w, r)
}

func (h *Handler) authorized(r *http.Request) bool {
	presented := r.Header.Get("X-API-Key")
	if presented == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			presented = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), h.apiKey) == 1
}
