// ABOUTME: HTTP middleware for bearer access token authentication
// ABOUTME: Lets public paths through and attaches AuthContext for everything else

package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// publicPaths are reachable without an access token.
var publicPaths = map[string]bool{
	"/api/auth/login":   true,
	"/api/auth/refresh": true,
	"/api/auth/logout":  true,
	"/login":            true,
	"/health":           true,
}

// publicPrefixes are path prefixes reachable without an access token.
var publicPrefixes = []string{"/assets/"}

// IsPublicPath reports whether r may proceed without authentication.
// CORS preflights to the auth routes are always public.
func IsPublicPath(r *http.Request) bool {
	path := r.URL.Path
	if r.Method == http.MethodOptions && strings.HasPrefix(path, "/api/auth/") {
		return true
	}
	if publicPaths[path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// authFailure describes why a request could not be authenticated.
type authFailure struct {
	code    ErrorCode
	message string
}

// authenticate verifies the request's bearer token.
func authenticate(verifier TokenVerifier, r *http.Request) (*AuthContext, *authFailure) {
	tok, ok := BearerToken(r)
	if !ok {
		return nil, &authFailure{code: CodeAuthRequired, message: msgAuthRequired}
	}
	payload, err := verifier.Verify(tok)
	if err != nil {
		return nil, &authFailure{code: CodeTokenInvalid, message: msgTokenInvalid}
	}
	return authContextFromPayload(payload), nil
}

// MiddlewareOption configures HTTPAuthMiddleware.
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	loginPath string
	proxies   TrustedProxies
}

// WithLoginRedirect sends unauthenticated page loads (GET or HEAD outside
// /api/) to path with a 302 instead of a JSON 401.
func WithLoginRedirect(path string) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.loginPath = path
	}
}

// WithTrustedProxies sets how rejected requests are attributed in logs.
func WithTrustedProxies(proxies TrustedProxies) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.proxies = proxies
	}
}

// isPageLoad reports whether r looks like browser navigation rather than an API call.
func isPageLoad(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return r.URL.Path != "/api" && !strings.HasPrefix(r.URL.Path, "/api/")
}

// HTTPAuthMiddleware creates an HTTP middleware that requires a valid bearer
// access token on every non-public path. A nil verifier means authentication
// is not configured and every request passes through unchanged.
func HTTPAuthMiddleware(verifier TokenVerifier, logger *slog.Logger, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	var o middlewareOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil || IsPublicPath(r) {
				next.ServeHTTP(w, r)
				return
			}

			authCtx, failure := authenticate(verifier, r)
			if failure != nil {
				logger.Debug("request rejected",
					"path", r.URL.Path,
					"client", o.proxies.ClientIP(r),
					"code", failure.code,
				)
				if o.loginPath != "" && isPageLoad(r) {
					http.Redirect(w, r, o.loginPath, http.StatusFound)
					return
				}
				writeError(w, http.StatusUnauthorized, failure.code, failure.message)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}
