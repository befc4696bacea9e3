package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation matches every ValidationError via errors.Is.
	ErrValidation = errors.New("risk: validation failed")
	// ErrAuthentication matches every AuthenticationError via errors.Is.
	ErrAuthentication = errors.New("risk: authentication failed")
	// ErrProviderAPI matches every APIError via errors.Is.
	ErrProviderAPI = errors.New("risk: provider api error")
)

const maxBodyInMessage = 512

// ValidationError reports caller input that failed a required-field or shape check.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	if e.Reason == "" {
		return fmt.Sprintf("validation failed: %s is invalid", e.Field)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Is allows errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AuthenticationError reports a failed or rejected token exchange. Body carries the raw provider
// payload when one was received.
type AuthenticationError struct {
	StatusCode int
	Message    string
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e == nil {
		return ErrAuthentication.Error()
	}
	return formatProviderError("authentication failed", e.StatusCode, e.Message, e.Body, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *AuthenticationError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrAuthentication).
func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

// APIError reports a non-2xx order submission or any unexpected failure after the network was
// reached. StatusCode is zero when no HTTP response was received.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return ErrProviderAPI.Error()
	}
	return formatProviderError("provider api error", e.StatusCode, e.Message, e.Body, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *APIError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrProviderAPI).
func (e *APIError) Is(target error) bool { return target == ErrProviderAPI }

func formatProviderError(prefix string, status int, message, body string, cause error) string {
	var b strings.Builder
	b.WriteString(prefix)
	if status != 0 {
		fmt.Fprintf(&b, " (status %d)", status)
	}
	if message != "" {
		b.WriteString(": ")
		b.WriteString(message)
	} else if cause != nil {
		b.WriteString(": ")
		b.WriteString(cause.Error())
	}
	if body = strings.TrimSpace(body); body != "" {
		if len(body) > maxBodyInMessage {
			body = body[:maxBodyInMessage] + "..."
		}
		b.WriteString(": ")
		b.WriteString(body)
	}
	return b.String()
}
