// Package gateway orchestrates the openclaw-gateway server components.
//
// # Overview
//
// The gateway package wires the auth core into one HTTP server. It owns the
// token codec, the refresh session store and the rate limiter, and builds
// them exactly once in New:
//
//	type Gateway struct {
//	    config     *config.Config
//	    httpServer *http.Server
//	    sessions   *session.Store
//	    limiter    *ratelimit.Limiter
//	    // ...
//	}
//
// # HTTP Routes
//
//   - /api/auth/* - login, refresh, logout, me, logout-all, status, rate-limit/reset
//   - GET /health - Liveness check, always public
//   - / - Static control UI from ui.dir, when configured
//
// Every route except the public ones sits behind auth.HTTPAuthMiddleware.
// When no operator credentials are configured the middleware is a
// pass-through and /api/auth/* answers 503 AUTH_NOT_CONFIGURED.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
//
// Run starts the server plus two sweepers that drop expired sessions and
// rate limit entries on sweep.sessions_interval and sweep.rate_limit_interval.
// Canceling the context shuts the server down with a 5 second grace period.
// Sessions are in memory only and do not survive a restart.
package gateway
