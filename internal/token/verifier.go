// ABOUTME: Access token verification combined with best-effort jti revocation
// ABOUTME: Rejects tokens whose backing session was removed before natural expiry

package token

// RevocationIndex resolves the session state behind an access token's JTI.
// known reports whether the JTI was ever indexed by this process; live
// reports whether the session it points at still exists.
type RevocationIndex interface {
	ResolveJTI(jti string) (known, live bool)
}

// Verifier checks access tokens with a Codec and consults a RevocationIndex
// for tokens whose session has been removed.
type Verifier struct {
	codec *Codec
	index RevocationIndex
}

// NewVerifier creates a Verifier. index may be nil, in which case only the
// codec checks apply.
func NewVerifier(codec *Codec, index RevocationIndex) *Verifier {
	return &Verifier{codec: codec, index: index}
}

// Verify returns the token payload, or ErrInvalidToken. A JTI unknown to the
// index (for example one issued by another process) is accepted at face value.
func (v *Verifier) Verify(tokenString string) (*AccessTokenPayload, error) {
	payload, err := v.codec.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	if v.index != nil {
		if known, live := v.index.ResolveJTI(payload.JTI); known && !live {
			return nil, ErrInvalidToken
		}
	}

	return payload, nil
}
