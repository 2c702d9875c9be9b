// ABOUTME: End-to-end tests for the auth routes behind the auth middleware
// ABOUTME: Drives login, refresh rotation, logout, whoami and rate limiting through httptest

package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaxkeren/openclaw/internal/ratelimit"
	"github.com/relaxkeren/openclaw/internal/session"
	"github.com/relaxkeren/openclaw/internal/token"
)

const (
	testEmail    = "operator@example.com"
	testPassword = "correct horse battery staple"
)

var handlerTestSecret = []byte("auth-handler-test-secret-32byte!")

type testEnv struct {
	handler  http.Handler
	sessions *session.Store
	limiter  *ratelimit.Limiter
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, mutate ...func(*HandlerConfig)) *testEnv {
	t.Helper()

	codec, err := token.NewCodec(handlerTestSecret, 15*time.Minute)
	require.NoError(t, err)
	sessions := session.New(codec, 7*24*time.Hour)
	verifier := token.NewVerifier(codec, sessions)
	limiter := ratelimit.New(ratelimit.Config{})

	cfg := HandlerConfig{
		Credentials: Credentials{Email: testEmail, Password: testPassword},
		Sessions:    sessions,
		Verifier:    verifier,
		Limiter:     limiter,
		Logger:      discardLogger(),
	}
	for _, m := range mutate {
		m(&cfg)
	}

	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)
	mux.HandleFunc("/api/protected", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"email": FromContext(r.Context()).Email})
	})

	return &testEnv{
		handler:  HTTPAuthMiddleware(verifier, discardLogger())(mux),
		sessions: sessions,
		limiter:  limiter,
	}
}

func (e *testEnv) do(method, path, body string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, opts ...func(*http.Request)) (TokenResponse, *http.Cookie) {
	t.Helper()
	rec := e.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, testPassword), opts...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeJSON[TokenResponse](t, rec), refreshCookie(t, rec)
}

func loginBody(email, password string) string {
	b, _ := json.Marshal(LoginRequest{Email: email, Password: password})
	return string(b)
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
}

func withBearer(tok string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
}

func fromClient(ip string) func(*http.Request) {
	return func(r *http.Request) {
		r.RemoteAddr = ip + ":40000"
	}
}

func withForwardedFor(ip string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", ip)
	}
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", RefreshCookieName)
	return nil
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code ErrorCode) ErrorResponse {
	t.Helper()
	assert.Equal(t, status, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeJSON[ErrorResponse](t, rec)
	assert.Equal(t, code, body.Error)
	assert.NotEmpty(t, body.Message)
	return body
}

func TestAuthFlow_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	// Login with correct credentials.
	rec := env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, testPassword))
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeJSON[TokenResponse](t, rec)
	assert.NotEmpty(t, first.AccessToken)
	setCookie := rec.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, "refresh_token=")
	assert.Contains(t, setCookie, "HttpOnly")
	assert.Contains(t, setCookie, "SameSite=Strict")
	assert.Contains(t, setCookie, "Path=/")
	assert.Contains(t, setCookie, "Max-Age=604800")
	assert.NotContains(t, setCookie, "Secure")
	original := refreshCookie(t, rec)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), time.UnixMilli(first.ExpiresAt), time.Minute)

	// Wrong password.
	rec = env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, "wrong"))
	assertError(t, rec, http.StatusUnauthorized, CodeInvalidCredentials)

	// Refresh rotates both tokens.
	rec = env.do(http.MethodPost, "/api/auth/refresh", "", withCookie(original))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := decodeJSON[TokenResponse](t, rec)
	rotated := refreshCookie(t, rec)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.NotEqual(t, original.Value, rotated.Value)

	// The consumed refresh token is dead.
	rec = env.do(http.MethodPost, "/api/auth/refresh", "", withCookie(original))
	assertError(t, rec, http.StatusUnauthorized, CodeRefreshInvalid)

	// Logout clears the cookie.
	rec = env.do(http.MethodPost, "/api/auth/logout", "", withCookie(rotated))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeJSON[SuccessResponse](t, rec).Success)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
	assert.Equal(t, 0, env.sessions.Count())
}

func TestLogin_RateLimitedAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)

	var rec *httptest.ResponseRecorder
	for i := 1; i <= 6; i++ {
		rec = env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, "wrong"))
		if i < 3 {
			assertError(t, rec, http.StatusUnauthorized, CodeInvalidCredentials)
		}
	}

	body := assertError(t, rec, http.StatusTooManyRequests, CodeRateLimited)
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 900)
	assert.Equal(t, retryAfter, body.RetryAfter)
	assert.Contains(t, body.Message, "Too many login attempts")

	// Even correct credentials are refused while locked.
	rec = env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, testPassword))
	assertError(t, rec, http.StatusTooManyRequests, CodeRateLimited)

	// Another client is unaffected.
	env.login(t, fromClient("198.51.100.7"))
}

func TestLogin_ForwardedForCannotEscapeLockout(t *testing.T) {
	env := newTestEnv(t)

	blocked := 0
	for i := 0; i < 50; i++ {
		rec := env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, "wrong"),
			withForwardedFor(fmt.Sprintf("203.0.113.%d", i+1)))
		if rec.Code == http.StatusTooManyRequests {
			blocked++
		}
	}
	assert.Equal(t, 47, blocked)

	rec := env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, testPassword),
		withForwardedFor("198.51.100.200"))
	assertError(t, rec, http.StatusTooManyRequests, CodeRateLimited)
}

func TestLogin_TrustedProxyForwardedFor(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	env := newTestEnv(t, func(cfg *HandlerConfig) {
		cfg.TrustedProxies = proxies
	})

	viaProxy := func(client string) func(*http.Request) {
		return func(r *http.Request) {
			r.RemoteAddr = "10.0.0.2:40000"
			r.Header.Set("X-Forwarded-For", client)
		}
	}

	for i := 0; i < 3; i++ {
		env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, "wrong"), viaProxy("203.0.113.9"))
	}
	rec := env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, testPassword), viaProxy("203.0.113.9"))
	assertError(t, rec, http.StatusTooManyRequests, CodeRateLimited)

	// The proxy itself is not locked out: another client behind it still logs in.
	env.login(t, viaProxy("198.51.100.7"))
	assert.Equal(t, 5, env.limiter.Remaining("10.0.0.2", ratelimit.ActionLogin))
}

func TestLogin_Validation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   ErrorCode
	}{
		{"malformed json", `{"email":`, http.StatusBadRequest, CodeInvalidRequest},
		{"not an object", `["a","b"]`, http.StatusBadRequest, CodeInvalidRequest},
		{"empty body", "", http.StatusBadRequest, CodeInvalidCredentials},
		{"missing password", `{"email":"operator@example.com"}`, http.StatusBadRequest, CodeInvalidCredentials},
		{"missing email", `{"password":"x"}`, http.StatusBadRequest, CodeInvalidCredentials},
		{"unknown email", loginBody("intruder@example.com", testPassword), http.StatusUnauthorized, CodeInvalidCredentials},
		{"wrong password length", loginBody(testEmail, "short"), http.StatusUnauthorized, CodeInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(http.MethodPost, "/api/auth/login", tt.body)
			assertError(t, rec, tt.status, tt.code)

			// Every rejection costs the client a check and a failure.
			assert.Equal(t, 3, env.limiter.Remaining(ClientIP(httptest.NewRequest(http.MethodGet, "/", nil)), ratelimit.ActionLogin))
		})
	}
}

func TestLogin_EmailIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/login", loginBody("  Operator@Example.COM ", testPassword))
	require.Equal(t, http.StatusOK, rec.Code)

	tok := decodeJSON[TokenResponse](t, rec).AccessToken
	rec = env.do(http.MethodGet, "/api/auth/me", "", withBearer(tok))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testEmail, decodeJSON[MeResponse](t, rec).Email)
}

func TestLogin_PasswordHash(t *testing.T) {
	hash, err := HashPassword(testPassword)
	require.NoError(t, err)

	env := newTestEnv(t, func(cfg *HandlerConfig) {
		cfg.Credentials = Credentials{Email: testEmail, PasswordHash: hash}
	})

	env.login(t)
	rec := env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, hash))
	assertError(t, rec, http.StatusUnauthorized, CodeInvalidCredentials)
}

func TestLogin_CookieAttributes(t *testing.T) {
	env := newTestEnv(t, func(cfg *HandlerConfig) {
		cfg.Cookie = CookieOptions{Secure: true, Domain: "gateway.example.com"}
	})

	rec := env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, testPassword))
	require.Equal(t, http.StatusOK, rec.Code)
	setCookie := rec.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, "Secure")
	assert.Contains(t, setCookie, "Domain=gateway.example.com")

	rec = env.do(http.MethodPost, "/api/auth/logout", "")
	setCookie = rec.Header().Get("Set-Cookie")
	assert.Contains(t, setCookie, "Max-Age=0")
	assert.Contains(t, setCookie, "Secure")
	assert.Contains(t, setCookie, "Domain=gateway.example.com")
}

func TestRefresh_MissingCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/refresh", "")
	assertError(t, rec, http.StatusUnauthorized, CodeRefreshInvalid)
}

func TestRefresh_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	bogus := &http.Cookie{Name: RefreshCookieName, Value: "not-a-session"}

	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		rec = env.do(http.MethodPost, "/api/auth/refresh", "", withCookie(bogus))
	}
	body := assertError(t, rec, http.StatusTooManyRequests, CodeRateLimited)
	assert.Greater(t, body.RetryAfter, 60, "failures escalate into the longer block")
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLogout_AlwaysSucceeds(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		opts []func(*http.Request)
	}{
		{"no cookie", nil},
		{"unknown cookie", []func(*http.Request){withCookie(&http.Cookie{Name: RefreshCookieName, Value: "gone"})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/auth/logout", "", tt.opts...)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, decodeJSON[SuccessResponse](t, rec).Success)
			assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
		})
	}
}

func TestLogout_RevokesOutstandingAccessToken(t *testing.T) {
	env := newTestEnv(t)
	resp, cookie := env.login(t)

	rec := env.do(http.MethodGet, "/api/auth/me", "", withBearer(resp.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)

	env.do(http.MethodPost, "/api/auth/logout", "", withCookie(cookie))

	rec = env.do(http.MethodGet, "/api/auth/me", "", withBearer(resp.AccessToken))
	assertError(t, rec, http.StatusUnauthorized, CodeTokenInvalid)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.login(t)

	tests := []struct {
		name   string
		header string
		status int
		code   ErrorCode
	}{
		{"valid token", "Bearer " + resp.AccessToken, http.StatusOK, ""},
		{"lowercase scheme", "bearer " + resp.AccessToken, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, CodeAuthRequired},
		{"wrong scheme", "Basic " + resp.AccessToken, http.StatusUnauthorized, CodeAuthRequired},
		{"extra parts", "Bearer " + resp.AccessToken + " extra", http.StatusUnauthorized, CodeAuthRequired},
		{"garbage token", "Bearer not.a.token", http.StatusUnauthorized, CodeTokenInvalid},
		{"tampered token", "Bearer " + resp.AccessToken + "x", http.StatusUnauthorized, CodeTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/api/auth/me", "", func(r *http.Request) {
				if tt.header != "" {
					r.Header.Set("Authorization", tt.header)
				}
			})
			if tt.code != "" {
				assertError(t, rec, tt.status, tt.code)
				return
			}
			require.Equal(t, tt.status, rec.Code)
			me := decodeJSON[MeResponse](t, rec)
			assert.Equal(t, testEmail, me.Email)
			assert.Equal(t, token.RoleOperator, me.Role)
		})
	}
}

func TestProtectedRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/protected", "")
	assertError(t, rec, http.StatusUnauthorized, CodeAuthRequired)

	resp, _ := env.login(t)
	rec = env.do(http.MethodGet, "/api/protected", "", withBearer(resp.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testEmail, decodeJSON[map[string]string](t, rec)["email"])
}

func TestPreflightAndUnknownRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodOptions, "/api/auth/login", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(http.MethodOptions, "/api/auth/anything", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	resp, _ := env.login(t)
	rec = env.do(http.MethodGet, "/api/auth/nope", "", withBearer(resp.AccessToken))
	assertError(t, rec, http.StatusNotFound, CodeNotFound)
	rec = env.do(http.MethodGet, "/api/auth/login", "", withBearer(resp.AccessToken))
	assertError(t, rec, http.StatusNotFound, CodeNotFound)
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t, func(cfg *HandlerConfig) {
		cfg.CORSOrigin = "https://ui.example.com"
	})

	rec := env.do(http.MethodOptions, "/api/auth/login", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ui.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	plain := newTestEnv(t)
	rec = plain.do(http.MethodOptions, "/api/auth/login", "")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthNotConfigured(t *testing.T) {
	h := NewHandler(HandlerConfig{Logger: discardLogger()})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	handler := HTTPAuthMiddleware(nil, discardLogger())(mux)

	for _, path := range []string{"/api/auth/login", "/api/auth/refresh", "/api/auth/logout", "/api/auth/me"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assertError(t, rec, http.StatusServiceUnavailable, CodeAuthNotConfigured)
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t)
	a, _ := env.login(t)
	b, cookieB := env.login(t)
	require.Equal(t, 2, env.sessions.Count())

	rec := env.do(http.MethodPost, "/api/auth/logout-all", "")
	assertError(t, rec, http.StatusUnauthorized, CodeAuthRequired)

	rec = env.do(http.MethodPost, "/api/auth/logout-all", "", withBearer(a.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[SuccessResponse](t, rec)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Revoked)
	assert.Equal(t, 2, *resp.Revoked)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
	assert.Equal(t, 0, env.sessions.Count())

	rec = env.do(http.MethodGet, "/api/auth/me", "", withBearer(b.AccessToken))
	assertError(t, rec, http.StatusUnauthorized, CodeTokenInvalid)
	rec = env.do(http.MethodPost, "/api/auth/refresh", "", withCookie(cookieB))
	assertError(t, rec, http.StatusUnauthorized, CodeRefreshInvalid)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, "wrong"))
	resp, _ := env.login(t)

	rec := env.do(http.MethodGet, "/api/auth/status", "", withBearer(resp.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeJSON[StatusResponse](t, rec)
	assert.True(t, status.Authenticated)
	assert.Equal(t, testEmail, status.Email)
	assert.Equal(t, 1, status.Sessions)
	assert.Equal(t, 1, status.RateLimit.TotalEntries)
	require.Len(t, status.RateLimit.Entries, 1)
	assert.Equal(t, ratelimit.ActionLogin, status.RateLimit.Entries[0].Action)
	assert.Equal(t, 3, status.RateLimit.Entries[0].Count)
}

func TestRateLimitReset(t *testing.T) {
	env := newTestEnv(t)
	locked := "203.0.113.9"
	for i := 0; i < 6; i++ {
		env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, "wrong"), fromClient(locked))
	}
	rec := env.do(http.MethodPost, "/api/auth/login", loginBody(testEmail, testPassword), fromClient(locked))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	resp, _ := env.login(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing client", `{}`, http.StatusBadRequest},
		{"unknown action", `{"client":"203.0.113.9","action":"bogus"}`, http.StatusBadRequest},
		{"reset login", `{"client":"203.0.113.9","action":"login"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/auth/rate-limit/reset", tt.body, withBearer(resp.AccessToken))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	env.login(t, fromClient(locked))
}
