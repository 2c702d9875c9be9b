// Package config handles configuration loading for openclaw-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension)
// with environment variable expansion and environment overrides. A missing
// file is fine when using LoadOptional: defaults plus environment are enough
// to run.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from OPENCLAW_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/openclaw/gateway.yaml
//  3. ~/.config/openclaw/gateway.yaml
//
// A .env file in the working directory is loaded first by the serve command.
//
// # Environment Variables
//
// Configuration values can reference environment variables:
//
//	auth:
//	  password: "${OPENCLAW_OPERATOR_PASSWORD}"
//
// These variables override file values when set:
//
//	AUTH_EMAIL, AUTH_PASSWORD, AUTH_PASSWORD_HASH, AUTH_JWT_SECRET,
//	AUTH_COOKIE_SECURE, AUTH_COOKIE_DOMAIN, OPENCLAW_HTTP_ADDR,
//	OPENCLAW_TRUSTED_PROXIES (comma-separated)
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:18789"
//	  trusted_proxies: []               # IPs/CIDRs allowed to set X-Forwarded-For
//
//	auth:
//	  email: "operator@example.com"     # auth is disabled without email + password
//	  password: "${OPENCLAW_PASSWORD}"
//	  password_hash: ""                 # bcrypt; replaces password when set
//	  jwt_secret: ""                    # >= 32 bytes; random per process when empty
//	  access_token_ttl: "15m"          # at least 1s
//	  refresh_token_ttl: "168h"
//	  cookie_secure: false              # set true behind HTTPS
//	  cookie_domain: ""
//	  cors_origin: ""
//
//	rate_limit:
//	  enabled: true
//
//	sweep:
//	  sessions_interval: "1h"
//	  rate_limit_interval: "10m"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	ui:
//	  dir: ""         # static control UI served behind auth
//
// The same keys work in TOML using [server], [auth] and so on.
package config
