package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bobmcallan/box-mcp/internal/cache"
	"github.com/bobmcallan/box-mcp/internal/common"
	"github.com/bobmcallan/box-mcp/internal/config"
	"github.com/bobmcallan/box-mcp/internal/credentials"
	"github.com/bobmcallan/box-mcp/internal/dispatch"
	"github.com/bobmcallan/box-mcp/internal/schema"
	"github.com/bobmcallan/box-mcp/internal/transport"
)

// loadCatalog reads the catalog at path, or the embedded one when path is empty.
func loadCatalog(path string) (*schema.Catalog, error) {
	if path == "" {
		return schema.Default()
	}
	return schema.LoadFile(path)
}

// buildDispatcher wires catalog, credentials and transport from config.
func buildDispatcher(cfg *config.Config, logger *common.Logger) (*dispatch.Dispatcher, error) {
	catalog, err := loadCatalog(cfg.Box.SchemaPath)
	if err != nil {
		return nil, err
	}

	creds, err := newCredentials(cfg, logger)
	if err != nil {
		return nil, err
	}

	var tr dispatch.Transport = transport.NewHTTP(transport.Options{
		Timeout:          cfg.Box.GetTimeout(),
		MaxResponseBytes: cfg.Box.MaxResponseBytes(),
		RateLimit:        cfg.Box.RateLimit,
		MaxRetries:       cfg.Box.MaxRetries,
	}, logger)
	if ttl := cfg.Box.GetCacheTTL(); ttl > 0 {
		tr = cache.NewTransport(tr, cache.NewStore(ttl, cfg.Box.CacheMaxEntries), logger)
	}

	userAgent := cfg.Box.UserAgent
	if userAgent == "" {
		userAgent = "box-mcp/" + common.GetVersion()
	}

	return dispatch.New(catalog, tr, creds, logger, dispatch.Options{
		BaseURL:          cfg.Box.BaseURL,
		AllowExtraParams: cfg.Box.AllowExtraParams,
		UserAgent:        userAgent,
	}), nil
}

// newCredentials picks the credential provider the auth settings describe.
func newCredentials(cfg *config.Config, logger *common.Logger) (dispatch.CredentialProvider, error) {
	var base dispatch.CredentialProvider
	switch cfg.Auth.Mode() {
	case "oauth":
		store := credentials.NewFileTokenStore(cfg.Auth.TokenFile)
		logger.Info().Str("token_file", store.Path()).Msg("using refreshable OAuth credentials")
		base = credentials.NewOAuth(credentials.OAuthConfig{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			TokenURL:     cfg.Auth.TokenURL,
		}, store, logger)
	case "static":
		base = credentials.NewStatic(cfg.Auth.AccessToken)
	}

	if cfg.Server.Transport == config.TransportHTTP && cfg.Server.AllowTokenPassthrough {
		return credentials.NewPassthrough(base), nil
	}
	if base == nil {
		return nil, credentials.ErrNoCredentials
	}
	return base, nil
}

// printCatalog writes one line per tool to out and skipped operations to errOut.
func printCatalog(out, errOut io.Writer, catalog *schema.Catalog) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, t := range catalog.Tools() {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\n", t.Name, t.Method, t.Path, t.Description)
	}
	tw.Flush()

	for _, s := range catalog.Skipped() {
		fmt.Fprintf(errOut, "skipped %s: %s\n", s.Operation, s.Reason)
	}
}
