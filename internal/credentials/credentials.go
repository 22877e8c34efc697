// Package credentials supplies Authorization headers for Box API calls.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client/transport"
	"golang.org/x/oauth2"

	"github.com/bobmcallan/box-mcp/internal/common"
)

// DefaultTokenURL is Box's OAuth2 token endpoint.
const DefaultTokenURL = "https://api.box.com/oauth2/token"

// ErrNoCredentials means no usable token is configured.
var ErrNoCredentials = errors.New("no Box credentials configured")

// Static returns the same bearer token for every call. It fits developer
// tokens and tokens injected by a surrounding platform.
type Static struct {
	token string
}

// NewStatic creates a Static provider. A "Bearer " prefix on token is tolerated.
func NewStatic(token string) *Static {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return &Static{token: token}
}

// AuthHeader implements dispatch.CredentialProvider.
func (s *Static) AuthHeader(_ context.Context) (string, error) {
	if s.token == "" {
		return "", ErrNoCredentials
	}
	return "Bearer " + s.token, nil
}

// OAuthConfig describes a Box OAuth2 application.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	// HTTPClient is used for token refreshes when set.
	HTTPClient *http.Client
}

// OAuth hands out the stored access token and refreshes it through the
// token endpoint when it expires. Box rotates refresh tokens, so every
// refreshed token is written back to the store before it is used.
type OAuth struct {
	mu      sync.Mutex
	config  *oauth2.Config
	client  *http.Client
	store   transport.TokenStore
	logger  *common.Logger
	current *oauth2.Token
	now     func() time.Time
}

// NewOAuth creates an OAuth provider. The token is read lazily on first use.
func NewOAuth(cfg OAuthConfig, store transport.TokenStore, logger *common.Logger) *OAuth {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: cfg.HTTPClient,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// AuthHeader implements dispatch.CredentialProvider. Concurrent callers
// share a single refresh.
func (o *OAuth) AuthHeader(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		stored, err := o.store.GetToken(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrNoToken) {
				return "", ErrNoCredentials
			}
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		o.current = fromStored(stored)
	}

	if o.fresh(o.current) {
		return "Bearer " + o.current.AccessToken, nil
	}
	if o.current.RefreshToken == "" {
		return "", fmt.Errorf("access token expired and no refresh token is stored")
	}

	if o.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)
	}
	// Expiry is forced into the past so the token source always refreshes.
	expired := *o.current
	expired.Expiry = o.now().Add(-time.Minute)
	tok, err := o.config.TokenSource(ctx, &expired).Token()
	if err != nil {
		o.logger.Error().Str("error", err.Error()).Msg("token refresh failed")
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	if err := o.store.SaveToken(ctx, toStored(tok)); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	o.current = tok
	o.logger.Info().Str("expires_at", tok.Expiry.Format(time.RFC3339)).Msg("refreshed Box access token")

	return "Bearer " + tok.AccessToken, nil
}

// fresh reports whether tok can be used for at least another 30 seconds.
// A token without an expiry is trusted until the API rejects it.
func (o *OAuth) fresh(tok *oauth2.Token) bool {
	if tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return o.now().Add(30 * time.Second).Before(tok.Expiry)
}

func fromStored(t *transport.Token) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
	}
}

func toStored(t *oauth2.Token) *transport.Token {
	out := &transport.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.Expiry,
	}
	if !t.Expiry.IsZero() {
		out.ExpiresIn = int64(time.Until(t.Expiry).Seconds())
	}
	return out
}
