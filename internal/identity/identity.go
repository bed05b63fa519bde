// Package identity holds the authenticated principal handed to cart and
// order operations.
package identity

import "context"

const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

// Principal is the caller identity supplied by the authentication layer.
type Principal struct {
	ID   int64
	Role string
}

// Privileged principals may act on orders they do not own.
func (p Principal) Privileged() bool {
	return p.Role == RoleAdmin || p.Role == RoleSystem
}

// System is the actor used by background consumers.
func System() Principal { return Principal{Role: RoleSystem} }

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by the auth middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
