// ABOUTME: HS256 access token codec built directly on crypto/hmac
// ABOUTME: Issues and verifies three-segment base64url tokens for the operator role

package token

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoleOperator is the only role this gateway knows about.
const RoleOperator = "operator"

// TypeAccess discriminates access tokens from any other signed artifact.
const TypeAccess = "access"

// Token errors
var (
	// ErrInvalidToken covers malformed, expired, tampered and revoked tokens alike.
	ErrInvalidToken = errors.New("invalid token")

	// ErrNotConfigured is returned when a codec is built without a secret or TTL.
	ErrNotConfigured = errors.New("token codec not configured")
)

// segmentEncoding is base64url without padding, as used by JWT.
var segmentEncoding = base64.RawURLEncoding

// header is the fixed JOSE header. Field order matters for the wire form.
type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// AccessTokenPayload is the claim set carried by every access token.
type AccessTokenPayload struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Iat   int64  `json:"iat"`
	Exp   int64  `json:"exp"`
	JTI   string `json:"jti"`
	Type  string `json:"type"`
}

// Issued is the result of signing a new access token.
type Issued struct {
	Token     string
	JTI       string
	ExpiresAt int64 // unix seconds
}

// Codec signs and verifies access tokens. It holds no mutable state and is
// safe for concurrent use.
type Codec struct {
	secret        []byte
	ttl           time.Duration
	encodedHeader string
	now           func() time.Time
}

// NewCodec creates a codec for the given signing secret and access token TTL.
// The TTL must be at least a second since iat and exp are whole seconds.
func NewCodec(secret []byte, ttl time.Duration) (*Codec, error) {
	if len(secret) == 0 || ttl < time.Second {
		return nil, ErrNotConfigured
	}

	h, err := json.Marshal(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return nil, fmt.Errorf("encoding header: %w", err)
	}

	return &Codec{
		secret:        bytes.Clone(secret),
		ttl:           ttl,
		encodedHeader: segmentEncoding.EncodeToString(h),
		now:           time.Now,
	}, nil
}

// TTL returns the lifetime of issued access tokens.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a fresh access token for email with a random JTI.
func (c *Codec) Issue(email string) (Issued, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Issued{}, fmt.Errorf("generating jti: %w", err)
	}

	now := c.now().Unix()
	payload := AccessTokenPayload{
		Sub:   email,
		Email: email,
		Role:  RoleOperator,
		Iat:   now,
		Exp:   now + int64(c.ttl/time.Second),
		JTI:   id.String(),
		Type:  TypeAccess,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Issued{}, fmt.Errorf("encoding payload: %w", err)
	}

	signingInput := c.encodedHeader + "." + segmentEncoding.EncodeToString(raw)
	return Issued{
		Token:     signingInput + "." + c.sign(signingInput),
		JTI:       payload.JTI,
		ExpiresAt: payload.Exp,
	}, nil
}

// Verify checks the signature, expiry and type of token. Any failure yields
// ErrInvalidToken so callers cannot tell which check rejected it.
func (c *Codec) Verify(tokenString string) (*AccessTokenPayload, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	expected := c.sign(parts[0] + "." + parts[1])
	if !hmac.Equal([]byte(parts[2]), []byte(expected)) {
		return nil, ErrInvalidToken
	}

	raw, err := segmentEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}

	var payload AccessTokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrInvalidToken
	}

	if payload.Exp < c.now().Unix() {
		return nil, ErrInvalidToken
	}
	if payload.Type != TypeAccess {
		return nil, ErrInvalidToken
	}

	return &payload, nil
}

// sign returns the base64url HMAC-SHA256 of the signing input.
func (c *Codec) sign(signingInput string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(signingInput))
	return segmentEncoding.EncodeToString(mac.Sum(nil))
}
