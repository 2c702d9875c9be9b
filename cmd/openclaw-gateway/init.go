// ABOUTME: Interactive config setup and password prompts for openclaw-gateway
// ABOUTME: Writes a YAML config with a bcrypt password hash and a random JWT secret

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/relaxkeren/openclaw/internal/auth"
)

// Test seams for terminal access.
var (
	readPassword = term.ReadPassword
	isTerminal   = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

// initAnswers holds what runInit collected from the operator.
type initAnswers struct {
	HTTPAddr     string
	Email        string
	PasswordHash string
	JWTSecret    string
	CookieSecure bool
	UIDir        string
	LogLevel     string
	LogFormat    string
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("openclaw-gateway configuration setup")
	fmt.Println("====================================")
	fmt.Println()

	// Output filename
	outputFile := prompt(reader, "Config file path", getConfigPath())

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var answers initAnswers

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	answers.HTTPAddr = prompt(reader, "HTTP address", "127.0.0.1:18789")

	// Operator
	fmt.Println("\n--- Operator Login (leave email empty to disable auth) ---")
	answers.Email = auth.NormalizeEmail(prompt(reader, "Operator email", ""))
	if answers.Email != "" {
		password, err := readNewPassword(reader, os.Stdout)
		if err != nil {
			return err
		}
		if password == "" {
			return fmt.Errorf("password cannot be empty")
		}
		answers.PasswordHash, err = auth.HashPassword(password)
		if err != nil {
			return err
		}

		secret, err := generateSecret()
		if err != nil {
			return err
		}
		answers.JWTSecret = secret
		answers.CookieSecure = isYes(prompt(reader, "Serving over HTTPS (secure cookies)?", "no"))
	}

	// UI
	fmt.Println("\n--- Control UI ---")
	answers.UIDir = prompt(reader, "Static UI directory (leave empty for none)", "")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	answers.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	answers.LogFormat = prompt(reader, "Log format (text/json)", "text")

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Holds the JWT secret, so owner-only
	if err := os.WriteFile(outputFile, []byte(renderConfig(answers)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  openclaw-gateway serve\n")

	return nil
}

// renderConfig produces the YAML written by runInit.
func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# openclaw-gateway configuration\n")
	cfg.WriteString("# Generated by openclaw-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", a.HTTPAddr))
	cfg.WriteString("\n")

	if a.Email != "" {
		cfg.WriteString("auth:\n")
		cfg.WriteString(fmt.Sprintf("  email: %q\n", a.Email))
		cfg.WriteString(fmt.Sprintf("  password_hash: %q\n", a.PasswordHash))
		cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", a.JWTSecret))
		cfg.WriteString("  access_token_ttl: \"15m\"\n")
		cfg.WriteString("  refresh_token_ttl: \"168h\"\n")
		cfg.WriteString(fmt.Sprintf("  cookie_secure: %t\n", a.CookieSecure))
		cfg.WriteString("\n")
	}

	cfg.WriteString("rate_limit:\n")
	cfg.WriteString("  enabled: true\n")
	cfg.WriteString("\n")

	if a.UIDir != "" {
		cfg.WriteString("ui:\n")
		cfg.WriteString(fmt.Sprintf("  dir: %q\n", a.UIDir))
		cfg.WriteString("\n")
	}

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", a.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n", a.LogFormat))

	return cfg.String()
}

// generateSecret returns 32 random bytes, base64 encoded.
func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

// readNewPassword reads a password twice without echo on a terminal.
// Piped input is read as a single line so scripts can supply it.
func readNewPassword(reader *bufio.Reader, w io.Writer) (string, error) {
	if !isTerminal() {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(w, "Password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	fmt.Fprint(w, "Confirm password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
