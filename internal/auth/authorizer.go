package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/giselles-ai/giselle-sub007/internal/giselle/ports"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

type claimsKey struct{}

// WithClaims returns a context carrying claims.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFrom returns the claims stored by the middleware, if any.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

var (
	_ ports.Authorizer = JWTAuthorizer{}
	_ ports.Authorizer = AllowAll{}
)

// JWTAuthorizer checks the workspaces claim of the caller's token.
type JWTAuthorizer struct{}

func (JWTAuthorizer) AssertWorkspaceAccess(ctx context.Context, workspaceID string) error {
	c, ok := ClaimsFrom(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	if !c.Allows(workspaceID) {
		return fmt.Errorf("workspace %s: %w", workspaceID, ErrForbidden)
	}
	return nil
}

// AllowAll is used when no JWT secret is configured.
type AllowAll struct{}

func (AllowAll) AssertWorkspaceAccess(context.Context, string) error { return nil }

// NewAuthorizer picks JWTAuthorizer when a secret is set.
func NewAuthorizer(secret string) ports.Authorizer {
	if secret == "" {
		return AllowAll{}
	}
	return JWTAuthorizer{}
}
