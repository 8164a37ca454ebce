// Package llm – errors.go classifies endpoint failures so callers can log
// something more useful than a bare status code.
package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind buckets endpoint failures.
type ErrorKind string

const (
	ErrorModelMissing ErrorKind = "model_missing"
	ErrorRateLimit    ErrorKind = "rate_limit"
	ErrorOverloaded   ErrorKind = "overloaded"
	ErrorTimeout      ErrorKind = "timeout"
	ErrorHTTP         ErrorKind = "http"
)

// apiError captures HTTP status and response body for non-2xx replies.
type apiError struct {
	statusCode int
	body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API returned %d: %s", e.statusCode, truncate(e.body, 200))
}

// classifyAPIError determines the error kind from status code and body.
func classifyAPIError(statusCode int, body string) ErrorKind {
	bodyLower := strings.ToLower(body)

	switch {
	case statusCode == 404 || strings.Contains(bodyLower, "model") && strings.Contains(bodyLower, "not found"):
		return ErrorModelMissing
	case statusCode == 429 || strings.Contains(bodyLower, "too many requests"):
		return ErrorRateLimit
	case statusCode == 529 || strings.Contains(bodyLower, "overloaded"):
		return ErrorOverloaded
	case strings.Contains(bodyLower, "timeout") || strings.Contains(bodyLower, "deadline"):
		return ErrorTimeout
	default:
		return ErrorHTTP
	}
}

// StatusCode extracts the HTTP status from an endpoint error, or 0 when the
// error did not come from an HTTP response.
func StatusCode(err error) int {
	var apierr *apiError
	if errors.As(err, &apierr) {
		return apierr.statusCode
	}
	return 0
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
