// Package config loads box-mcp configuration from TOML files and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/bobmcallan/box-mcp/internal/common"
)

// Transport names accepted by [server] transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig         `toml:"server"`
	Box     BoxConfig            `toml:"box"`
	Auth    AuthConfig           `toml:"auth"`
	Logging common.LoggingConfig `toml:"logging"`
}

// ServerConfig contains MCP server settings.
type ServerConfig struct {
	Name      string `toml:"name"`
	Transport string `toml:"transport"` // stdio, http
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	// APIKey guards the HTTP endpoint when set.
	APIKey string `toml:"api_key"`
	// AllowTokenPassthrough accepts a caller's Box token in X-Box-Access-Token.
	AllowTokenPassthrough bool `toml:"allow_token_passthrough"`
}

// Addr returns host:port for the HTTP listener.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BoxConfig contains Box API and tool catalog settings.
type BoxConfig struct {
	BaseURL          string  `toml:"base_url"`
	SchemaPath       string  `toml:"schema_path"` // empty uses the embedded catalog
	AllowExtraParams bool    `toml:"allow_extra_params"`
	Timeout          string  `toml:"timeout"`
	MaxResponseMB    int     `toml:"max_response_mb"`
	RateLimit        float64 `toml:"rate_limit"` // requests per second, 0 disables
	MaxRetries       int     `toml:"max_retries"`
	CacheTTL         string  `toml:"cache_ttl"` // empty or 0 disables
	CacheMaxEntries  int     `toml:"cache_max_entries"`
	UserAgent        string  `toml:"user_agent"`
}

// GetTimeout parses and returns the request timeout.
func (c *BoxConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// GetCacheTTL parses the cache TTL. Zero means caching is off.
func (c *BoxConfig) GetCacheTTL() time.Duration {
	if c.CacheTTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// MaxResponseBytes converts MaxResponseMB to bytes.
func (c *BoxConfig) MaxResponseBytes() int64 {
	return int64(c.MaxResponseMB) << 20
}

// AuthConfig contains Box credentials.
type AuthConfig struct {
	AccessToken  string `toml:"access_token"`
	TokenFile    string `toml:"token_file"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenURL     string `toml:"token_url"`
}

// Mode reports which credential provider the settings select: "oauth" when
// a token file is configured, "static" for a plain access token, else "".
func (c *AuthConfig) Mode() string {
	switch {
	case c.TokenFile != "":
		return "oauth"
	case c.AccessToken != "":
		return "static"
	}
	return ""
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies BOX_MCP_* and BOX_* environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("BOX_MCP_TRANSPORT"); v != "" {
		config.Server.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("BOX_MCP_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("BOX_MCP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			config.Server.Port = p
		}
	}
	if v := os.Getenv("BOX_MCP_API_KEY"); v != "" {
		config.Server.APIKey = v
	}
	if v := os.Getenv("BOX_MCP_SCHEMA"); v != "" {
		config.Box.SchemaPath = v
	}
	if v := os.Getenv("BOX_MCP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("BOX_BASE_URL"); v != "" {
		config.Box.BaseURL = v
	}
	if v := os.Getenv("BOX_ACCESS_TOKEN"); v != "" {
		config.Auth.AccessToken = v
	} else if v := os.Getenv("BOX_DEVELOPER_TOKEN"); v != "" {
		config.Auth.AccessToken = v
	}
	if v := os.Getenv("BOX_TOKEN_FILE"); v != "" {
		config.Auth.TokenFile = v
	}
	if v := os.Getenv("BOX_CLIENT_ID"); v != "" {
		config.Auth.ClientID = v
	}
	if v := os.Getenv("BOX_CLIENT_SECRET"); v != "" {
		config.Auth.ClientSecret = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host string, stdio bool, schemaPath string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if stdio {
		config.Server.Transport = TransportStdio
	}
	if schemaPath != "" {
		config.Box.SchemaPath = schemaPath
	}
}

// Validate returns human-readable problems with the configuration. An empty
// slice means the configuration is usable.
func (c *Config) Validate() []string {
	var issues []string

	switch c.Server.Transport {
	case TransportStdio:
	case TransportHTTP:
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			issues = append(issues, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
	default:
		issues = append(issues, fmt.Sprintf("server.transport %q must be %q or %q", c.Server.Transport, TransportStdio, TransportHTTP))
	}

	if u, err := url.Parse(c.Box.BaseURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		issues = append(issues, fmt.Sprintf("box.base_url %q must be an absolute http(s) URL", c.Box.BaseURL))
	}
	if c.Box.Timeout != "" {
		if d, err := time.ParseDuration(c.Box.Timeout); err != nil || d <= 0 {
			issues = append(issues, fmt.Sprintf("box.timeout %q is not a positive duration", c.Box.Timeout))
		}
	}
	if c.Box.CacheTTL != "" {
		if d, err := time.ParseDuration(c.Box.CacheTTL); err != nil || d < 0 {
			issues = append(issues, fmt.Sprintf("box.cache_ttl %q is not a duration", c.Box.CacheTTL))
		}
	}
	if c.Box.MaxRetries < 0 {
		issues = append(issues, "box.max_retries must not be negative")
	}
	if c.Box.RateLimit < 0 {
		issues = append(issues, "box.rate_limit must not be negative")
	}
	if c.Box.MaxResponseMB < 0 {
		issues = append(issues, "box.max_response_mb must not be negative")
	}

	passthrough := c.Server.Transport == TransportHTTP && c.Server.AllowTokenPassthrough
	if c.Auth.Mode() == "" && !passthrough {
		issues = append(issues, "no Box credentials: set auth.access_token (or BOX_ACCESS_TOKEN) or auth.token_file")
	}
	if (c.Auth.ClientID == "") != (c.Auth.ClientSecret == "") {
		issues = append(issues, "auth.client_id and auth.client_secret must be set together")
	}

	return issues
}
