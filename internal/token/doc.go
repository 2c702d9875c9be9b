// Package token implements the gateway's access token format.
//
// Access tokens are standard HS256 JWTs built directly from crypto/hmac:
//
//	base64url(header) "." base64url(payload) "." base64url(HMAC-SHA256(secret, header "." payload))
//
// with the header fixed to {"alg":"HS256","typ":"JWT"} and no padding on any
// segment. The payload always carries role "operator" and type "access".
//
// # Verification
//
// Codec.Verify is a pure function of the token string, the secret and the
// clock. It never distinguishes between malformed, expired and tampered
// tokens; all of them produce ErrInvalidToken.
//
// Verifier layers soft revocation on top: when the session store has indexed
// a token's JTI and that session no longer exists, the token is rejected even
// though its signature and expiry are fine.
//
//	codec, err := token.NewCodec(secret, 15*time.Minute)
//	issued, err := codec.Issue("operator@example.com")
//	payload, err := token.NewVerifier(codec, sessions).Verify(issued.Token)
package token
