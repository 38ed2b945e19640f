package auth

import (
	"context"

	"github.com/civicwatch/incident-portal/internal/models"
	"github.com/google/uuid"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// Claims is the identity asserted by a verified credential.
type Claims struct {
	UserID uuid.UUID
	Email  string
	Role   models.Role
}

// IsAuthority reports whether the caller holds the authority role.
func (c Claims) IsAuthority() bool { return c.Role == models.RoleAuthority }

// WithClaims returns a copy of ctx carrying c.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// FromContext returns the claims stored by RequireAuth.
func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey).(Claims)
	return c, ok
}
