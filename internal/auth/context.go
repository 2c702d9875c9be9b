// ABOUTME: Authentication context for tracking the operator identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"

	"github.com/relaxkeren/openclaw/internal/token"
)

// AuthContext holds the authenticated identity extracted from a verified
// access token. The middleware attaches it to the request context.
type AuthContext struct {
	Email string // operator email from the token
	Role  string // always token.RoleOperator
	JTI   string // access token ID
}

// IsOperator reports whether the identity carries the operator role.
func (a *AuthContext) IsOperator() bool {
	return a != nil && a.Role == token.RoleOperator
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

func authContextFromPayload(p *token.AccessTokenPayload) *AuthContext {
	return &AuthContext{
		Email: p.Email,
		Role:  p.Role,
		JTI:   p.JTI,
	}
}
