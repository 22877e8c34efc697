// Command box-mcp serves the Box REST API as MCP tools over stdio or HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"

	"github.com/bobmcallan/box-mcp/internal/common"
	"github.com/bobmcallan/box-mcp/internal/config"
	boxmcp "github.com/bobmcallan/box-mcp/internal/mcp"
	httpserver "github.com/bobmcallan/box-mcp/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("box-mcp", pflag.ContinueOnError)
	configFiles := flagSet.StringArrayP("config", "c", nil, "configuration file path (can be specified multiple times)")
	port := flagSet.IntP("port", "p", 0, "HTTP port (overrides config)")
	host := flagSet.String("host", "", "HTTP host (overrides config)")
	stdio := flagSet.Bool("stdio", false, "serve MCP over stdin/stdout")
	schemaPath := flagSet.String("schema", "", "OpenAPI document or flat tool catalog (default: embedded Box catalog)")
	listOnly := flagSet.Bool("list-tools", false, "print the tool catalog and exit")
	showVersion := flagSet.Bool("version", false, "print version information")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	common.LoadVersionFromFile()
	if *showVersion {
		fmt.Printf("box-mcp version %s\n", common.GetFullVersion())
		return nil
	}

	paths := *configFiles
	if len(paths) == 0 {
		for _, path := range configSearchPaths() {
			if _, err := os.Stat(path); err == nil {
				paths = append(paths, path)
				break
			}
		}
	}

	cfg, err := config.LoadFromFiles(paths...)
	if err != nil {
		return err
	}
	config.ApplyFlagOverrides(cfg, *port, *host, *stdio, *schemaPath)

	if *listOnly {
		catalog, err := loadCatalog(cfg.Box.SchemaPath)
		if err != nil {
			return err
		}
		printCatalog(os.Stdout, os.Stderr, catalog)
		return nil
	}

	if issues := cfg.Validate(); len(issues) > 0 {
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Configuration error, mandatory fields are missing or invalid:")
		fmt.Fprintln(os.Stderr, "")
		for _, issue := range issues {
			fmt.Fprintf(os.Stderr, "  - %s\n", issue)
		}
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Values can be set via TOML file, BOX_MCP_* / BOX_* environment variables, or CLI flags.")
		fmt.Fprintln(os.Stderr, "")
		return fmt.Errorf("invalid configuration")
	}

	logger := common.NewLoggerFromConfig(cfg.Logging)
	logger.Info().
		Str("transport", cfg.Server.Transport).
		Str("base_url", cfg.Box.BaseURL).
		Str("auth", cfg.Auth.Mode()).
		Str("config_files", fmt.Sprintf("%v", paths)).
		Msg("configuration loaded")

	d, err := buildDispatcher(cfg, logger)
	if err != nil {
		return err
	}
	mcpSrv := boxmcp.NewServer(cfg.Server.Name, d, logger)

	if cfg.Server.Transport == config.TransportStdio {
		// stdout carries the protocol from here on.
		return server.ServeStdio(mcpSrv)
	}
	return serveHTTP(cfg, mcpSrv, logger)
}

// serveHTTP runs the streamable HTTP endpoint until SIGINT or SIGTERM.
func serveHTTP(cfg *config.Config, mcpSrv *server.MCPServer, logger *common.Logger) error {
	handler := boxmcp.NewHandler(mcpSrv, boxmcp.HandlerOptions{
		APIKey:                cfg.Server.APIKey,
		AllowTokenPassthrough: cfg.Server.AllowTokenPassthrough,
	}, logger)
	srv := httpserver.New(handler, httpserver.Options{Addr: cfg.Server.Addr()}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// configSearchPaths returns TOML files to auto-discover (first match wins).
// Binary-relative paths are tried first, then the working directory.
func configSearchPaths() []string {
	candidates := []string{
		"box-mcp.toml",
		"config/box-mcp.toml",
	}

	exe, err := os.Executable()
	if err != nil {
		return candidates
	}
	binDir := filepath.Dir(exe)

	paths := []string{
		filepath.Join(binDir, "box-mcp.toml"),
		filepath.Join(binDir, "config", "box-mcp.toml"),
	}
	paths = append(paths, candidates...)

	seen := make(map[string]bool, len(paths))
	deduped := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		deduped = append(deduped, p)
	}
	return deduped
}
