// ABOUTME: Request and response helpers for refresh cookies, bearer tokens and client identity
// ABOUTME: The refresh token only ever travels in an HttpOnly SameSite=Strict cookie

package auth

import (
	"net/http"
	"strings"
	"time"
)

// RefreshCookieName is the cookie carrying the opaque refresh token.
const RefreshCookieName = "refresh_token"

// CookieOptions are the configurable refresh cookie attributes.
type CookieOptions struct {
	Secure bool
	Domain string
}

func (o CookieOptions) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		Domain:   o.Domain,
		MaxAge:   maxAge,
		Secure:   o.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// SetRefreshCookie sets the refresh token cookie, valid for ttl.
func SetRefreshCookie(w http.ResponseWriter, refreshToken string, ttl time.Duration, opts CookieOptions) {
	http.SetCookie(w, opts.cookie(refreshToken, int(ttl.Seconds())))
}

// ClearRefreshCookie expires the refresh token cookie immediately (Max-Age=0).
func ClearRefreshCookie(w http.ResponseWriter, opts CookieOptions) {
	// net/http renders a negative MaxAge as "Max-Age=0".
	http.SetCookie(w, opts.cookie("", -1))
}

// RefreshTokenFromRequest returns the refresh token cookie value, or "" if absent.
func RefreshTokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive and the header must have exactly two
// space-separated parts.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// UserAgent returns the request's User-Agent header.
func UserAgent(r *http.Request) string {
	return r.Header.Get("User-Agent")
}
