// ABOUTME: Entry point for openclaw-gateway control server
// ABOUTME: Serves the operator auth API and control UI, plus setup and health commands

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/relaxkeren/openclaw/internal/auth"
	"github.com/relaxkeren/openclaw/internal/config"
	"github.com/relaxkeren/openclaw/internal/gateway"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const banner = `
                              _                
  ___  _ __   ___ _ __   ___| | __ ___      __
 / _ \| '_ \ / _ \ '_ \ / __| |/ _' \ \ /\ / /
| (_) | |_) |  __/ | | | (__| | (_| |\ V  V / 
 \___/| .__/ \___|_| |_|\___|_|\__,_| \_/\_/  
      |_|                                     
`

// getConfigPath returns the path to the gateway config file.
// Priority: OPENCLAW_CONFIG env var > XDG_CONFIG_HOME/openclaw/gateway.yaml > ~/.config/openclaw/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("OPENCLAW_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "openclaw", "gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: openclaw-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve           Start the gateway server")
		fmt.Println("  init            Create a new config file interactively")
		fmt.Println("  hash-password   Print a bcrypt hash for auth.password_hash")
		fmt.Println("  health          Check gateway health")
		fmt.Println("  version         Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "hash-password":
		err = runHashPassword()
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads .env from the working directory, then the config file.
// A missing config file means defaults plus environment.
func loadConfig() (*config.Config, string, bool, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, "", false, err
	}

	configPath := getConfigPath()
	cfg, found, err := config.LoadOptional(configPath)
	if err != nil {
		return nil, "", false, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, found, nil
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, found, err := loadConfig()
	if err != nil {
		return err
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:     %s", configPath)
	if !found {
		gray.Print(" (not found, using defaults)")
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("HTTP:       %s\n", cfg.Server.HTTPAddr)

	green.Print("    ▶ ")
	fmt.Printf("Auth:       ")
	if cfg.Auth.Enabled() {
		cyan.Print(auth.NormalizeEmail(cfg.Auth.Email))
		if !cfg.RateLimit.Enabled {
			yellow.Print(" [rate limit off]")
		}
	} else {
		yellow.Print("disabled")
	}
	fmt.Println()

	if cfg.UI.Dir != "" {
		green.Print("    ▶ ")
		fmt.Printf("UI:         %s\n", cfg.UI.Dir)
	}

	fmt.Println()

	logger.Info("starting openclaw-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"auth", cfg.Auth.Enabled(),
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = newColorHandler(os.Stdout, level)
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// Handlers derived via WithAttrs and WithGroup share the writer lock.
type colorHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func newColorHandler(out io.Writer, level slog.Level) *colorHandler {
	return &colorHandler{mu: &sync.Mutex{}, out: out, level: level}
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	// Handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		mu:     h.mu,
		out:    h.out,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		mu:     h.mu,
		out:    h.out,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	cfg, _, _, err := loadConfig()
	if err != nil {
		return err
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runHashPassword() error {
	reader := bufio.NewReader(os.Stdin)
	password, err := readNewPassword(reader, os.Stdout)
	if err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
