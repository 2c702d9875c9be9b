// ABOUTME: Collaborator interfaces the auth routes depend on
// ABOUTME: Satisfied by token.Verifier and session.Store in production

package auth

import (
	"time"

	"github.com/relaxkeren/openclaw/internal/session"
	"github.com/relaxkeren/openclaw/internal/token"
)

// TokenVerifier defines the interface for access token verification.
type TokenVerifier interface {
	Verify(accessToken string) (*token.AccessTokenPayload, error)
}

// SessionStore is the subset of the session store used by the auth routes.
type SessionStore interface {
	Create(email string, meta session.Meta) (*session.Grant, error)
	Rotate(refreshToken string, meta session.Meta) (*session.Grant, error)
	Revoke(refreshToken string) bool
	RevokeAllForEmail(email string) int
	Count() int
	RefreshTTL() time.Duration
}

var (
	_ TokenVerifier = (*token.Verifier)(nil)
	_ SessionStore  = (*session.Store)(nil)
)
