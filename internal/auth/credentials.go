// ABOUTME: Operator credential check with constant-time comparisons
// ABOUTME: Supports a plaintext password or a bcrypt hash from configuration

package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Credentials are the single operator's configured login.
// When PasswordHash is set it takes precedence over Password.
type Credentials struct {
	Email        string
	Password     string
	PasswordHash string
}

// Enabled reports whether enough is configured for anyone to log in.
func (c Credentials) Enabled() bool {
	return c.Email != "" && (c.Password != "" || c.PasswordHash != "")
}

// CanonicalEmail returns the configured email in the form sessions are issued for.
func (c Credentials) CanonicalEmail() string {
	return NormalizeEmail(c.Email)
}

// Validate reports whether email and password match the configured operator.
// Both comparisons always run so timing does not reveal which one failed.
func (c Credentials) Validate(email, password string) bool {
	if !c.Enabled() {
		return false
	}

	emailOK := constantTimeEqual(NormalizeEmail(email), NormalizeEmail(c.Email))

	var passwordOK bool
	if c.PasswordHash != "" {
		passwordOK = bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) == nil
	} else {
		passwordOK = constantTimeEqual(password, c.Password)
	}

	return emailOK && passwordOK
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword returns a bcrypt hash suitable for auth.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// constantTimeEqual compares two strings without early exit on content.
// A length mismatch is still a plain failure, not a separate path.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
