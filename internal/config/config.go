// ABOUTME: Configuration loading and parsing for openclaw-gateway
// ABOUTME: Supports YAML or TOML files with env var expansion, env overrides and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/relaxkeren/openclaw/internal/auth"
)

// MinJWTSecretLength is the shortest accepted auth.jwt_secret.
const MinJWTSecretLength = 32

// Config represents the complete openclaw-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	Sweep     SweepConfig     `yaml:"sweep" toml:"sweep"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	UI        UIConfig        `yaml:"ui" toml:"ui"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`

	// TrustedProxies are IPs or CIDRs whose X-Forwarded-For and X-Real-IP
	// headers identify the client. Empty means the socket peer is the client.
	TrustedProxies []string `yaml:"trusted_proxies" toml:"trusted_proxies"`
}

// AuthConfig holds the single operator's credentials and token settings.
// Authentication is disabled unless an email and a password or password
// hash are configured.
type AuthConfig struct {
	Email        string `yaml:"email" toml:"email"`
	Password     string `yaml:"password" toml:"password"`
	PasswordHash string `yaml:"password_hash" toml:"password_hash"` // bcrypt, takes precedence over password
	JWTSecret    string `yaml:"jwt_secret" toml:"jwt_secret"`         // random per process when empty
	CookieSecure bool   `yaml:"cookie_secure" toml:"cookie_secure"`
	CookieDomain string `yaml:"cookie_domain" toml:"cookie_domain"`
	CORSOrigin   string `yaml:"cors_origin" toml:"cors_origin"`

	AccessTokenTTL  time.Duration `yaml:"-" toml:"-"`
	RefreshTokenTTL time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	AccessTokenTTLRaw  string `yaml:"access_token_ttl" toml:"access_token_ttl"`
	RefreshTokenTTLRaw string `yaml:"refresh_token_ttl" toml:"refresh_token_ttl"`
}

// Enabled reports whether operator credentials are configured.
func (a AuthConfig) Enabled() bool {
	return a.Email != "" && (a.Password != "" || a.PasswordHash != "")
}

// RateLimitConfig toggles login and refresh rate limiting
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// SweepConfig holds the intervals of the background expiry sweeps
type SweepConfig struct {
	SessionsInterval  time.Duration `yaml:"-" toml:"-"`
	RateLimitInterval time.Duration `yaml:"-" toml:"-"`

	SessionsIntervalRaw  string `yaml:"sessions_interval" toml:"sessions_interval"`
	RateLimitIntervalRaw string `yaml:"rate_limit_interval" toml:"rate_limit_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// UIConfig points at an optional static control UI bundle
type UIConfig struct {
	Dir string `yaml:"dir" toml:"dir"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: "127.0.0.1:18789"},
		Auth: AuthConfig{
			AccessTokenTTLRaw:  "15m",
			RefreshTokenTTLRaw: "168h",
		},
		RateLimit: RateLimitConfig{Enabled: true},
		Sweep: SweepConfig{
			SessionsIntervalRaw:  "1h",
			RateLimitIntervalRaw: "10m",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, then the
// AUTH_*, OPENCLAW_HTTP_ADDR and OPENCLAW_TRUSTED_PROXIES variables override file values.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return parse(data, isTOML(path))
}

// LoadOptional is Load, except that a missing file yields the defaults with
// environment overrides applied. The boolean reports whether the file existed.
func LoadOptional(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	cfg = Default()
	if err := finish(cfg); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func parse(data []byte, asTOML bool) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if asTOML {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies env overrides, parses durations and validates.
func finish(cfg *Config) error {
	if err := applyEnvOverrides(cfg); err != nil {
		return fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnvOverrides lets deployment environments set credentials without
// touching the config file. Only non-empty variables override.
func applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		name string
		dst  *string
	}{
		{"AUTH_EMAIL", &cfg.Auth.Email},
		{"AUTH_PASSWORD", &cfg.Auth.Password},
		{"AUTH_PASSWORD_HASH", &cfg.Auth.PasswordHash},
		{"AUTH_JWT_SECRET", &cfg.Auth.JWTSecret},
		{"AUTH_COOKIE_DOMAIN", &cfg.Auth.CookieDomain},
		{"OPENCLAW_HTTP_ADDR", &cfg.Server.HTTPAddr},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.name); v != "" {
			*o.dst = v
		}
	}

	if v := os.Getenv("OPENCLAW_TRUSTED_PROXIES"); v != "" {
		cfg.Server.TrustedProxies = strings.Split(v, ",")
	}

	if v := os.Getenv("AUTH_COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTH_COOKIE_SECURE %q: %w", v, err)
		}
		cfg.Auth.CookieSecure = secure
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if _, err := auth.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}

	if c.Auth.Email != "" && c.Auth.Password == "" && c.Auth.PasswordHash == "" {
		return fmt.Errorf("auth.password or auth.password_hash is required when auth.email is set")
	}
	if c.Auth.Email == "" && (c.Auth.Password != "" || c.Auth.PasswordHash != "") {
		return fmt.Errorf("auth.email is required when a password is set")
	}
	if c.Auth.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Auth.PasswordHash)); err != nil {
			return fmt.Errorf("auth.password_hash is not a bcrypt hash: %w", err)
		}
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"auth.access_token_ttl", c.Auth.AccessTokenTTL},
		{"auth.refresh_token_ttl", c.Auth.RefreshTokenTTL},
		{"sweep.sessions_interval", c.Sweep.SessionsInterval},
		{"sweep.rate_limit_interval", c.Sweep.RateLimitInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}
	// Token timestamps have one-second resolution.
	if c.Auth.AccessTokenTTL < time.Second {
		return fmt.Errorf("auth.access_token_ttl must be at least 1s")
	}
	if c.Auth.RefreshTokenTTL < time.Second {
		return fmt.Errorf("auth.refresh_token_ttl must be at least 1s")
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		return fmt.Errorf("auth.refresh_token_ttl must be longer than auth.access_token_ttl")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"access_token_ttl", cfg.Auth.AccessTokenTTLRaw, &cfg.Auth.AccessTokenTTL},
		{"refresh_token_ttl", cfg.Auth.RefreshTokenTTLRaw, &cfg.Auth.RefreshTokenTTL},
		{"sessions_interval", cfg.Sweep.SessionsIntervalRaw, &cfg.Sweep.SessionsInterval},
		{"rate_limit_interval", cfg.Sweep.RateLimitIntervalRaw, &cfg.Sweep.RateLimitInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
