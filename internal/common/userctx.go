package common

import (
	"context"
)

// Principal identifies the authenticated caller for a request. Jobs are
// owned by, and rate limits accounted against, the principal id. Source
// records how the identity arrived ("bearer" for JWT, "header" for
// gateway-injected X-Curio-User-ID).
type Principal struct {
	ID     string
	Source string
}

type contextKey int

const principalContextKey contextKey = iota

// WithPrincipal stores the authenticated principal in the request context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext retrieves the principal from context, or nil if the
// request was not authenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey).(*Principal)
	return p
}

// ResolvePrincipalID returns the authenticated principal id, or "" when the
// request carries no identity. Handlers treat "" as unauthenticated.
func ResolvePrincipalID(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.ID
	}
	return ""
}
