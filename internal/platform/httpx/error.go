package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/domain"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/platform/requestctx"
)

// Error represents the canonical JSON error envelope returned by the API.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError constructs a new Error with the provided parameters.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, 80),
		Message: sanitize(message, 512),
		Status:  status,
	}
}

// WithDetails attaches additional JSON-serialisable metadata.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	copyDetails := make(map[string]any, len(details))
	for k, v := range details {
		copyDetails[k] = v
	}
	e.Details = copyDetails
	return e
}

// FromEvaluationError maps the evaluation error taxonomy onto HTTP. Provider response bodies
// stay out of the envelope; callers log them instead.
func FromEvaluationError(err error) Error {
	var (
		validationErr *domain.ValidationError
		authErr       *domain.AuthenticationError
		apiErr        *domain.APIError
	)
	switch {
	case errors.As(err, &validationErr):
		return NewError("invalid_order", validationErr.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"field": validationErr.Field})
	case errors.As(err, &authErr):
		return NewError("provider_authentication_failed", "risk provider rejected the configured credentials", http.StatusUnauthorized)
	case errors.As(err, &apiErr):
		out := NewError("provider_error", "risk provider request failed", http.StatusUnprocessableEntity)
		if apiErr.StatusCode > 0 {
			out = out.WithDetails(map[string]any{"provider_status": apiErr.StatusCode})
		}
		return out
	default:
		return NewError("internal_server_error", "internal server error", http.StatusInternalServerError)
	}
}

// WriteError writes the structured error as JSON to the provided response writer.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	requestID := err.RequestID
	if requestID == "" {
		requestID = sanitize(middleware.GetReqID(ctx), 80)
	}
	traceID := err.TraceID
	if traceID == "" {
		traceID = sanitize(requestctx.TraceID(ctx), 64)
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if requestID != "" {
		payload["request_id"] = requestID
	}
	if traceID != "" {
		payload["trace_id"] = traceID
	}
	if len(err.Details) > 0 {
		payload["details"] = err.Details
	}

	WriteJSON(w, status, payload)
}

// WriteJSON encodes body as the JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
