// ABOUTME: HTTP handlers for the /api/auth/* routes: login, refresh, logout and whoami
// ABOUTME: Applies per-client rate limits and keeps refresh tokens cookie-only

package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/relaxkeren/openclaw/internal/ratelimit"
	"github.com/relaxkeren/openclaw/internal/session"
)

// RoutePrefix is the path prefix of every auth route.
const RoutePrefix = "/api/auth/"

// maxBodyBytes bounds JSON request bodies on the auth routes.
const maxBodyBytes = 64 << 10

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and refresh. ExpiresAt is the refresh
// token expiry in unix milliseconds.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// MeResponse is returned by GET /api/auth/me.
type MeResponse struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// SuccessResponse is returned by logout, logout-all and rate-limit reset.
type SuccessResponse struct {
	Success bool `json:"success"`
	Revoked *int `json:"revoked,omitempty"`
}

// StatusResponse is returned by GET /api/auth/status.
type StatusResponse struct {
	Authenticated bool             `json:"authenticated"`
	Email         string           `json:"email"`
	Sessions      int              `json:"sessions"`
	RateLimit     ratelimit.Status `json:"rateLimit"`
}

// RateLimitResetRequest is the JSON body for POST /api/auth/rate-limit/reset.
type RateLimitResetRequest struct {
	Client string `json:"client"`
	Action string `json:"action,omitempty"`
}

// HandlerConfig wires the auth routes to their collaborators.
type HandlerConfig struct {
	Credentials Credentials
	Sessions    SessionStore
	Verifier    TokenVerifier
	Limiter     *ratelimit.Limiter
	Cookie      CookieOptions
	CORSOrigin  string
	Logger      *slog.Logger

	// TrustedProxies decides whose forwarding headers name the client.
	TrustedProxies TrustedProxies
}

// Handler serves the auth routes.
type Handler struct {
	creds      Credentials
	sessions   SessionStore
	verifier   TokenVerifier
	limiter    *ratelimit.Limiter
	cookie     CookieOptions
	proxies    TrustedProxies
	corsOrigin string
	logger     *slog.Logger
}

// NewHandler creates a Handler. A nil Limiter gets the default policies.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{})
	}
	return &Handler{
		creds:      cfg.Credentials,
		sessions:   cfg.Sessions,
		verifier:   cfg.Verifier,
		limiter:    limiter,
		cookie:     cfg.Cookie,
		proxies:    cfg.TrustedProxies,
		corsOrigin: cfg.CORSOrigin,
		logger:     logger,
	}
}

// Enabled reports whether operator credentials and stores are configured.
func (h *Handler) Enabled() bool {
	return h.creds.Enabled() && h.sessions != nil && h.verifier != nil
}

// RegisterRoutes mounts the auth routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle(RoutePrefix, h)
}

// ServeHTTP dispatches /api/auth/* requests by method and route.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.corsOrigin != "" {
		h.setCORSHeaders(w)
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !h.Enabled() {
		writeError(w, http.StatusServiceUnavailable, CodeAuthNotConfigured, msgNotConfigured)
		return
	}

	route := strings.TrimPrefix(r.URL.Path, RoutePrefix)
	switch r.Method + " " + route {
	case "POST login":
		h.handleLogin(w, r)
	case "POST refresh":
		h.handleRefresh(w, r)
	case "POST logout":
		h.handleLogout(w, r)
	case "GET me":
		h.handleMe(w, r)
	case "POST logout-all":
		h.handleLogoutAll(w, r)
	case "GET status":
		h.handleStatus(w, r)
	case "POST rate-limit/reset":
		h.handleRateLimitReset(w, r)
	default:
		writeError(w, http.StatusNotFound, CodeNotFound, msgNotFound)
	}
}

func (h *Handler) setCORSHeaders(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Access-Control-Allow-Origin", h.corsOrigin)
	header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Access-Control-Max-Age", "86400")
	header.Add("Vary", "Origin")
}

// allow consumes one rate-limit attempt. A blocked attempt also counts as a
// failure, so hammering a locked client keeps it locked.
func (h *Handler) allow(w http.ResponseWriter, client string, action ratelimit.Action) bool {
	d := h.limiter.Check(client, action)
	if d.Allowed {
		return true
	}
	h.limiter.RecordFailure(client, action)
	h.logger.Warn("rate limited", "client", client, "action", action, "retry_after", d.RetryAfter)
	writeRateLimited(w, d.Message, d.RetryAfter)
	return false
}

// handleLogin handles POST /api/auth/login.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	client := h.proxies.ClientIP(r)
	if !h.allow(w, client, ratelimit.ActionLogin) {
		return
	}

	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.limiter.RecordFailure(client, ratelimit.ActionLogin)
		h.logger.Debug("login body rejected", "client", client, "error", err)
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, msgInvalidBody)
		return
	}
	if req.Email == "" || req.Password == "" {
		h.limiter.RecordFailure(client, ratelimit.ActionLogin)
		writeError(w, http.StatusBadRequest, CodeInvalidCredentials, msgMissingCredentials)
		return
	}

	if !h.creds.Validate(req.Email, req.Password) {
		h.limiter.RecordFailure(client, ratelimit.ActionLogin)
		h.logger.Warn("login failed", "client", client,
			"remaining", h.limiter.Remaining(client, ratelimit.ActionLogin))
		writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, msgInvalidCredentials)
		return
	}

	grant, err := h.sessions.Create(h.creds.CanonicalEmail(), session.Meta{
		IPAddress: client,
		UserAgent: UserAgent(r),
	})
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, msgInternal)
		return
	}

	h.logger.Info("operator logged in", "client", client, "session_id", grant.Session.ID)
	h.writeGrant(w, grant)
}

// handleRefresh handles POST /api/auth/refresh.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	client := h.proxies.ClientIP(r)
	if !h.allow(w, client, ratelimit.ActionRefresh) {
		return
	}

	refreshToken := RefreshTokenFromRequest(r)
	if refreshToken == "" {
		h.limiter.RecordFailure(client, ratelimit.ActionRefresh)
		h.logger.Debug("refresh without cookie", "client", client)
		writeError(w, http.StatusUnauthorized, CodeRefreshInvalid, msgRefreshInvalid)
		return
	}

	grant, err := h.sessions.Rotate(refreshToken, session.Meta{
		IPAddress: client,
		UserAgent: UserAgent(r),
	})
	if errors.Is(err, session.ErrNotFound) {
		h.limiter.RecordFailure(client, ratelimit.ActionRefresh)
		h.logger.Warn("refresh rejected", "client", client)
		writeError(w, http.StatusUnauthorized, CodeRefreshInvalid, msgRefreshInvalid)
		return
	}
	if err != nil {
		h.logger.Error("failed to rotate session", "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, msgInternal)
		return
	}

	h.logger.Debug("session refreshed", "client", client, "session_id", grant.Session.ID)
	h.writeGrant(w, grant)
}

func (h *Handler) writeGrant(w http.ResponseWriter, grant *session.Grant) {
	SetRefreshCookie(w, grant.RefreshToken, h.sessions.RefreshTTL(), h.cookie)
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: grant.AccessToken,
		ExpiresAt:   grant.Session.RefreshTokenExpiresAt.UnixMilli(),
	})
}

// handleLogout handles POST /api/auth/logout. It always succeeds.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if refreshToken := RefreshTokenFromRequest(r); refreshToken != "" {
		if h.sessions.Revoke(refreshToken) {
			h.logger.Info("operator logged out", "client", h.proxies.ClientIP(r))
		}
	}
	ClearRefreshCookie(w, h.cookie)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// handleMe handles GET /api/auth/me.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireAuth(w, r)
	if authCtx == nil {
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{Email: authCtx.Email, Role: authCtx.Role})
}

// handleLogoutAll handles POST /api/auth/logout-all, ending every session of
// the calling operator.
func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireAuth(w, r)
	if authCtx == nil {
		return
	}
	revoked := h.sessions.RevokeAllForEmail(authCtx.Email)
	h.logger.Info("revoked all sessions", "client", h.proxies.ClientIP(r), "count", revoked)
	ClearRefreshCookie(w, h.cookie)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Revoked: &revoked})
}

// handleStatus handles GET /api/auth/status.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	authCtx := h.requireAuth(w, r)
	if authCtx == nil {
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		Email:         authCtx.Email,
		Sessions:      h.sessions.Count(),
		RateLimit:     h.limiter.Status(h.proxies.ClientIP(r)),
	})
}

// handleRateLimitReset handles POST /api/auth/rate-limit/reset.
func (h *Handler) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	if h.requireAuth(w, r) == nil {
		return
	}

	var req RateLimitResetRequest
	if err := decodeBody(w, r, &req); err != nil || req.Client == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "client is required")
		return
	}

	var actions []ratelimit.Action
	if req.Action != "" {
		action := ratelimit.Action(req.Action)
		if _, ok := h.limiter.Policy(action); !ok {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "unknown action")
			return
		}
		actions = append(actions, action)
	}

	h.limiter.Reset(req.Client, actions...)
	h.logger.Info("rate limit reset", "client", req.Client, "action", req.Action)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// requireAuth returns the caller's identity or writes a 401 and returns nil.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) *AuthContext {
	if authCtx := FromContext(r.Context()); authCtx != nil {
		return authCtx
	}
	authCtx, failure := authenticate(h.verifier, r)
	if failure != nil {
		writeError(w, http.StatusUnauthorized, failure.code, failure.message)
		return nil
	}
	return authCtx
}

// decodeBody decodes a bounded JSON body into v. An empty body leaves v zeroed.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
