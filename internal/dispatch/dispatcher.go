// Package dispatch turns a tool name plus arguments into one HTTP exchange with the Box API.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/box-mcp/internal/common"
	"github.com/bobmcallan/box-mcp/internal/schema"
)

// Request is one outgoing HTTP exchange handed to a Transport.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is what a Transport received.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs the network exchange. Retry, backoff and timeouts are its concern.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// CredentialProvider yields a ready-to-use Authorization header value.
type CredentialProvider interface {
	AuthHeader(ctx context.Context) (string, error)
}

// Result is a successful (2xx) invocation.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsJSON reports whether the response body declares a JSON media type.
func (r *Result) IsJSON() bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// Decode unmarshals a JSON body into v.
func (r *Result) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// ToolInfo is the listing view of a tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Options tunes a Dispatcher.
type Options struct {
	// BaseURL is prefixed to every tool path, e.g. https://api.box.com/2.0.
	BaseURL string
	// AllowExtraParams ignores undeclared arguments instead of rejecting them.
	AllowExtraParams bool
	// UserAgent is sent on every request when set.
	UserAgent string
}

// Dispatcher invokes catalog tools. It holds no per-call state and is safe
// for concurrent use.
type Dispatcher struct {
	catalog   *schema.Catalog
	transport Transport
	creds     CredentialProvider
	logger    *common.Logger
	opts      Options
}

// New creates a Dispatcher over an already-loaded catalog.
func New(catalog *schema.Catalog, transport Transport, creds CredentialProvider, logger *common.Logger, opts Options) *Dispatcher {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Dispatcher{
		catalog:   catalog,
		transport: transport,
		creds:     creds,
		logger:    logger,
		opts:      opts,
	}
}

// Catalog returns the catalog the dispatcher serves.
func (d *Dispatcher) Catalog() *schema.Catalog {
	return d.catalog
}

// ListTools returns the name and description of every tool in catalog order.
func (d *Dispatcher) ListTools() []ToolInfo {
	tools := d.catalog.Tools()
	out := make([]ToolInfo, len(tools))
	for i, t := range tools {
		out[i] = ToolInfo{Name: t.Name, Description: t.Description}
	}
	return out
}

// Invoke runs one tool. The returned error is always a *Error on failure.
// Argument problems are reported before credentials are fetched or anything
// is sent.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args map[string]any) (*Result, error) {
	logger := d.logger.WithCorrelationId(correlationID(ctx))

	tool, ok := d.catalog.Lookup(name)
	if !ok {
		logger.Warn().Str("tool", name).Msg("unknown tool")
		return nil, unknownTool(name)
	}

	parts, extras, err := partition(tool, args, d.opts.AllowExtraParams)
	if err != nil {
		logger.Debug().Str("tool", name).Str("error", err.Error()).Msg("invalid tool arguments")
		return nil, err
	}
	if len(extras) > 0 {
		logger.Debug().Str("tool", name).Str("ignored", strings.Join(extras, ",")).Msg("ignoring undeclared arguments")
	}

	req, err := d.buildRequest(tool, parts)
	if err != nil {
		return nil, err
	}

	auth, err := d.creds.AuthHeader(ctx)
	if err != nil {
		logger.Error().Str("tool", name).Str("error", err.Error()).Msg("credential lookup failed")
		return nil, &Error{Kind: KindAuth, Tool: name, Message: err.Error(), Err: err}
	}
	req.Header.Set("Authorization", auth)

	logger.Debug().Str("tool", name).Str("method", req.Method).Str("path", tool.Path).Msg("tool request")

	start := time.Now()
	resp, err := d.transport.Send(ctx, req)
	duration := time.Since(start)
	if err != nil {
		logger.Error().Str("tool", name).Str("method", req.Method).Int64("duration_ms", duration.Milliseconds()).Str("error", err.Error()).Msg("tool request failed")
		return nil, &Error{Kind: KindTransport, Tool: name, Message: err.Error(), Err: err}
	}

	logger.Debug().Str("tool", name).Int("status", resp.StatusCode).Int64("duration_ms", duration.Milliseconds()).Msg("tool response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := remoteError(name, resp.StatusCode, resp.Body)
		logger.Warn().Str("tool", name).Int("status", resp.StatusCode).Str("error", rerr.Message).Msg("tool returned error status")
		return nil, rerr
	}

	header := resp.Header
	if header == nil {
		header = http.Header{}
	}
	return &Result{StatusCode: resp.StatusCode, Header: header, Body: resp.Body}, nil
}

// correlationID reuses the caller's request id so HTTP and tool logs join up.
func correlationID(ctx context.Context) string {
	if id := common.CorrelationIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.New().String()
}

// buildRequest substitutes the path, encodes query and headers, and
// serializes the body if the tool declares one.
func (d *Dispatcher) buildRequest(tool *schema.Tool, parts *partitioned) (*Request, error) {
	path := tool.Path
	for name, val := range parts.path {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(val))
	}

	target := d.opts.BaseURL + path
	if len(parts.query) > 0 {
		q := url.Values{}
		for k, v := range parts.query {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}

	header := make(http.Header)
	if d.opts.UserAgent != "" {
		header.Set("User-Agent", d.opts.UserAgent)
	}
	keys := make([]string, 0, len(parts.header))
	for k := range parts.header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		header.Set(k, parts.header[k])
	}

	req := &Request{Method: tool.Method, URL: target, Header: header}
	if !tool.HasBody {
		return req, nil
	}

	var payload any
	switch {
	case tool.RawBody && parts.hasRaw:
		payload = parts.raw
	case tool.RawBody:
		payload = nil
	case len(parts.body) > 0:
		payload = parts.body
	case tool.Method == http.MethodPost || tool.Method == http.MethodPut || tool.Method == http.MethodPatch:
		payload = map[string]any{}
	}
	if payload == nil {
		return req, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, invalidParameter(tool.Name, "body", "cannot encode as JSON: %v", err)
	}
	req.Body = data
	contentType := tool.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}
