// ABOUTME: Gateway orchestrator that owns the auth stores and the HTTP server
// ABOUTME: Builds codec, sessions and limiter once, then runs the server and expiry sweepers

package gateway

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relaxkeren/openclaw/internal/auth"
	"github.com/relaxkeren/openclaw/internal/config"
	"github.com/relaxkeren/openclaw/internal/ratelimit"
	"github.com/relaxkeren/openclaw/internal/session"
	"github.com/relaxkeren/openclaw/internal/token"
)

// generatedSecretLength is the size of the JWT secret generated when none is configured.
const generatedSecretLength = 32

// loginPath is the control UI page unauthenticated page loads are sent to.
const loginPath = "/login"

// Gateway orchestrates the openclaw-gateway server components.
// The session store and rate limiter live here and nowhere else; handlers
// reach them only through what New wires in.
type Gateway struct {
	config     *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	handler    http.Handler

	// sessions is nil when auth is not configured
	sessions *session.Store

	limiter     *ratelimit.Limiter
	authHandler *auth.Handler
}

// New creates a gateway from cfg. Nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	gw := &Gateway{
		config: cfg,
		logger: logger,
		limiter: ratelimit.New(ratelimit.Config{
			Disabled: !cfg.RateLimit.Enabled,
		}),
	}

	proxies, err := auth.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server.trusted_proxies: %w", err)
	}

	handlerCfg := auth.HandlerConfig{
		Credentials: auth.Credentials{
			Email:        cfg.Auth.Email,
			Password:     cfg.Auth.Password,
			PasswordHash: cfg.Auth.PasswordHash,
		},
		Limiter: gw.limiter,
		Cookie: auth.CookieOptions{
			Secure: cfg.Auth.CookieSecure,
			Domain: cfg.Auth.CookieDomain,
		},
		CORSOrigin:     cfg.Auth.CORSOrigin,
		Logger:         logger.With("component", "auth"),
		TrustedProxies: proxies,
	}

	// Left as a nil interface when auth is disabled so the middleware passes
	// every request through.
	var verifier auth.TokenVerifier
	if cfg.Auth.Enabled() {
		secret, err := resolveJWTSecret(cfg.Auth.JWTSecret, logger)
		if err != nil {
			return nil, err
		}
		codec, err := token.NewCodec(secret, cfg.Auth.AccessTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("creating token codec: %w", err)
		}
		gw.sessions = session.New(codec, cfg.Auth.RefreshTokenTTL)
		verifier = token.NewVerifier(codec, gw.sessions)

		handlerCfg.Sessions = gw.sessions
		handlerCfg.Verifier = verifier
		logger.Info("operator auth enabled",
			"email", auth.NormalizeEmail(cfg.Auth.Email),
			"access_ttl", cfg.Auth.AccessTokenTTL,
			"refresh_ttl", cfg.Auth.RefreshTokenTTL,
			"rate_limit", cfg.RateLimit.Enabled,
		)
	} else {
		logger.Warn("auth disabled - no operator email and password configured")
	}
	gw.authHandler = auth.NewHandler(handlerCfg)

	mux := http.NewServeMux()
	gw.authHandler.RegisterRoutes(mux)
	mux.HandleFunc("/health", gw.handleHealth)

	middlewareOpts := []auth.MiddlewareOption{auth.WithTrustedProxies(proxies)}
	if cfg.UI.Dir != "" {
		ui, err := newUIHandler(cfg.UI.Dir)
		if err != nil {
			return nil, err
		}
		mux.Handle("/", ui)
		middlewareOpts = append(middlewareOpts, auth.WithLoginRedirect(loginPath))
		logger.Info("serving control UI", "dir", cfg.UI.Dir)
	}

	gw.handler = auth.HTTPAuthMiddleware(verifier, logger.With("component", "auth"), middlewareOpts...)(mux)
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// resolveJWTSecret returns the configured secret, or a random one when unset.
func resolveJWTSecret(configured string, logger *slog.Logger) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	secret := make([]byte, generatedSecretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating JWT secret: %w", err)
	}
	logger.Warn("auth.jwt_secret not set - generated a random secret; access tokens will not survive a restart")
	return secret, nil
}

// Handler returns the root HTTP handler, auth middleware included.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Run starts the HTTP server and the expiry sweepers and blocks until the
// context is canceled or the server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.serve(ctx, ln)
}

func (g *Gateway) serve(ctx context.Context, ln net.Listener) error {
	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if g.sessions != nil {
		grp.Go(func() error {
			g.runSweeper(gctx, "sessions", g.config.Sweep.SessionsInterval, g.sessions.SweepExpired)
			return nil
		})
	}
	grp.Go(func() error {
		g.runSweeper(gctx, "rate_limit", g.config.Sweep.RateLimitInterval, g.limiter.SweepExpired)
		return nil
	})

	grp.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			g.logger.Info("context canceled, initiating shutdown")
		}
		return g.gracefulShutdown()
	})

	return grp.Wait()
}

// runSweeper calls sweep every interval until ctx is done.
func (g *Gateway) runSweeper(ctx context.Context, name string, interval time.Duration, sweep func() int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := sweep(); removed > 0 {
				g.logger.Debug("swept expired entries", "store", name, "removed", removed)
			}
		}
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The Run context is already canceled by the time this runs.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server. In-memory sessions are dropped.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.sessions != nil {
		if n := g.sessions.Count(); n > 0 {
			g.logger.Info("dropping in-memory sessions", "count", n)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
