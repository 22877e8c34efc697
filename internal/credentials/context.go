package credentials

import (
	"context"

	"github.com/bobmcallan/box-mcp/internal/dispatch"
)

// tokenContextKey is the context key for a per-request Box token.
type tokenContextKey struct{}

// WithToken returns a context carrying a caller-supplied Box access token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext extracts a token set by WithToken, if present.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey{}).(string)
	return token, ok && token != ""
}

// Passthrough prefers a per-request token from the context and falls back to
// another provider. A nil fallback makes the context token mandatory.
type Passthrough struct {
	fallback dispatch.CredentialProvider
}

// NewPassthrough creates a Passthrough provider.
func NewPassthrough(fallback dispatch.CredentialProvider) *Passthrough {
	return &Passthrough{fallback: fallback}
}

// AuthHeader implements dispatch.CredentialProvider.
func (p *Passthrough) AuthHeader(ctx context.Context) (string, error) {
	if token, ok := TokenFromContext(ctx); ok {
		return NewStatic(token).AuthHeader(ctx)
	}
	if p.fallback == nil {
		return "", ErrNoCredentials
	}
	return p.fallback.AuthHeader(ctx)
}
