package config

import "github.com/bobmcallan/box-mcp/internal/common"

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "box-mcp",
			Transport: TransportStdio,
			Host:      "localhost",
			Port:      4250,
		},
		Box: BoxConfig{
			BaseURL:         "https://api.box.com/2.0",
			Timeout:         "60s",
			MaxResponseMB:   50,
			RateLimit:       10,
			MaxRetries:      3,
			CacheMaxEntries: 500,
		},
		Logging: common.LoggingConfig{
			Level:      "info",
			Format:     "text",
			Outputs:    []string{"console"},
			FilePath:   "logs/box-mcp.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}
