// ABOUTME: Error codes and JSON response helpers for the auth HTTP surface
// ABOUTME: Every non-2xx body is {error, message, retryAfter?}

package auth

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorCode is the machine-readable error in an auth response body.
type ErrorCode string

// Error codes returned by the auth routes and middleware. Expired access
// tokens are reported as CodeTokenInvalid; CodeTokenExpired is reserved.
const (
	CodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	CodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	CodeTokenInvalid       ErrorCode = "TOKEN_INVALID"
	CodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	CodeRefreshInvalid     ErrorCode = "REFRESH_INVALID"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeAuthRequired       ErrorCode = "AUTH_REQUIRED"
	CodeAuthNotConfigured  ErrorCode = "AUTH_NOT_CONFIGURED"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// Client-facing messages. Failures that could leak account or session state
// share one message each.
const (
	msgInvalidCredentials = "Invalid email or password"
	msgMissingCredentials = "Email and password are required"
	msgInvalidBody        = "Invalid request body"
	msgRefreshInvalid     = "Invalid or expired session"
	msgAuthRequired       = "Authentication required"
	msgTokenInvalid       = "Invalid or expired token"
	msgNotConfigured      = "Authentication not configured"
	msgNotFound           = "Unknown auth endpoint"
	msgInternal           = "Internal server error"
)

// ErrorResponse is the JSON body of every auth error.
type ErrorResponse struct {
	Error      ErrorCode `json:"error"`
	Message    string    `json:"message"`
	RetryAfter int       `json:"retryAfter,omitempty"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an auth error body.
func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeRateLimited writes a 429 with both the Retry-After header and body field.
func writeRateLimited(w http.ResponseWriter, message string, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:      CodeRateLimited,
		Message:    message,
		RetryAfter: retryAfter,
	})
}
