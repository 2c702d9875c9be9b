// Package auth implements the gateway's operator authentication surface.
//
// # Routes
//
// Handler serves everything under /api/auth/:
//
//	POST    /api/auth/login              {email, password} -> {accessToken, expiresAt} + refresh cookie
//	POST    /api/auth/refresh            refresh cookie -> {accessToken, expiresAt} + rotated cookie
//	POST    /api/auth/logout             revokes the cookie's session; always 200
//	GET     /api/auth/me                 bearer token -> {email, role}
//	POST    /api/auth/logout-all         bearer token; revokes every operator session
//	GET     /api/auth/status             bearer token; session count and caller's rate-limit state
//	POST    /api/auth/rate-limit/reset   bearer token; {client, action?}
//	OPTIONS /api/auth/*                  204
//
// The refresh token is opaque and only ever travels in the refresh_token
// cookie (HttpOnly, SameSite=Strict, Path=/). Access tokens are returned in
// the body and presented as "Authorization: Bearer <token>".
//
// # Middleware
//
// HTTPAuthMiddleware guards every other path. Public paths (login, refresh,
// logout, /login, /assets/, /health and auth preflights) pass through;
// everything else needs a valid access token or gets 401 AUTH_REQUIRED or
// TOKEN_INVALID. The verified identity is available through FromContext.
// With WithLoginRedirect, page loads outside /api/ are sent to the login
// page with a 302 instead.
//
// # Rate limiting
//
// Login and refresh consume a rate-limit attempt per client IP and record a
// failure on every rejection, including rejections caused by the limit
// itself. Successful attempts do not reset the counter. The client IP is the
// socket peer; X-Forwarded-For and X-Real-IP only count when that peer is in
// TrustedProxies.
package auth
