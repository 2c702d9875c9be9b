// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers public paths, bearer extraction, verification failures and context propagation

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaxkeren/openclaw/internal/token"
)

// stubVerifier accepts exactly one token.
type stubVerifier struct {
	valid string
	calls int
}

func (s *stubVerifier) Verify(tok string) (*token.AccessTokenPayload, error) {
	s.calls++
	if tok != s.valid {
		return nil, token.ErrInvalidToken
	}
	return &token.AccessTokenPayload{
		Sub:   "op@example.com",
		Email: "op@example.com",
		Role:  token.RoleOperator,
		JTI:   "jti-1",
		Type:  token.TypeAccess,
	}, nil
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	verifier := &stubVerifier{valid: "good"}
	middleware := HTTPAuthMiddleware(verifier, discardLogger())

	var gotAuthCtx *AuthContext
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuthCtx = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()

	middleware(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if gotAuthCtx == nil {
		t.Fatal("expected AuthContext in context")
	}
	if gotAuthCtx.Email != "op@example.com" {
		t.Errorf("expected email 'op@example.com', got '%s'", gotAuthCtx.Email)
	}
	if !gotAuthCtx.IsOperator() {
		t.Errorf("expected operator role, got '%s'", gotAuthCtx.Role)
	}
	if gotAuthCtx.JTI != "jti-1" {
		t.Errorf("expected jti 'jti-1', got '%s'", gotAuthCtx.JTI)
	}
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantCode ErrorCode
	}{
		{"missing header", "", CodeAuthRequired},
		{"wrong scheme", "Token good", CodeAuthRequired},
		{"no token", "Bearer", CodeAuthRequired},
		{"empty token", "Bearer ", CodeAuthRequired},
		{"too many parts", "Bearer good extra", CodeAuthRequired},
		{"invalid token", "Bearer bad", CodeTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := HTTPAuthMiddleware(&stubVerifier{valid: "good"}, discardLogger())
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			})

			req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			middleware(handler).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			body := decodeJSON[ErrorResponse](t, rec)
			if body.Error != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, body.Error)
			}
		})
	}
}

func TestHTTPAuthMiddleware_PublicPaths(t *testing.T) {
	tests := []struct {
		method string
		path   string
		public bool
	}{
		{http.MethodPost, "/api/auth/login", true},
		{http.MethodPost, "/api/auth/refresh", true},
		{http.MethodPost, "/api/auth/logout", true},
		{http.MethodGet, "/login", true},
		{http.MethodGet, "/assets/app.js", true},
		{http.MethodGet, "/health", true},
		{http.MethodOptions, "/api/auth/me", true},
		{http.MethodGet, "/api/auth/me", false},
		{http.MethodPost, "/api/auth/logout-all", false},
		{http.MethodGet, "/api/auth/status", false},
		{http.MethodGet, "/", false},
		{http.MethodGet, "/loginx", false},
		{http.MethodOptions, "/api/other", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			verifier := &stubVerifier{valid: "good"}
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			HTTPAuthMiddleware(verifier, discardLogger())(handler).ServeHTTP(rec, req)

			if called != tt.public {
				t.Errorf("handler called = %v, want %v", called, tt.public)
			}
			if got := IsPublicPath(req); got != tt.public {
				t.Errorf("IsPublicPath() = %v, want %v", got, tt.public)
			}
			if tt.public && verifier.calls != 0 {
				t.Errorf("verifier consulted %d times for public path", verifier.calls)
			}
		})
	}
}

func TestHTTPAuthMiddleware_Disabled(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if FromContext(r.Context()) != nil {
			t.Error("expected no AuthContext when auth is disabled")
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/anything", nil)
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(nil, nil)(handler).ServeHTTP(rec, req)

	if !called {
		t.Error("handler should be called when auth is disabled")
	}
}

func TestHTTPAuthMiddleware_LoginRedirect(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		path         string
		bearer       string
		wantStatus   int
		wantLocation string
	}{
		{"root page", http.MethodGet, "/", "", http.StatusFound, "/login"},
		{"client route", http.MethodGet, "/settings/channels", "", http.StatusFound, "/login"},
		{"head request", http.MethodHead, "/", "", http.StatusFound, "/login"},
		{"stale token on page", http.MethodGet, "/", "expired", http.StatusFound, "/login"},
		{"api stays json", http.MethodGet, "/api/auth/me", "", http.StatusUnauthorized, ""},
		{"api root stays json", http.MethodGet, "/api", "", http.StatusUnauthorized, ""},
		{"non-get page stays json", http.MethodPost, "/settings", "", http.StatusUnauthorized, ""},
		{"valid token served", http.MethodGet, "/", "good", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			middleware := HTTPAuthMiddleware(&stubVerifier{valid: "good"}, discardLogger(), WithLoginRedirect("/login"))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			rec := httptest.NewRecorder()
			middleware(handler).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Location"); got != tt.wantLocation {
				t.Errorf("Location = %q, want %q", got, tt.wantLocation)
			}
		})
	}
}

func TestHTTPAuthMiddleware_NoRedirectByDefault(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	HTTPAuthMiddleware(&stubVerifier{valid: "good"}, discardLogger())(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
