package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/domain"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/platform/httpx"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/platform/requestctx"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/services"
)

const maxEvaluateBodySize = 1 << 20

// RiskHandlers serves order risk evaluations.
type RiskHandlers struct {
	risk    services.RiskService
	limiter RateLimiter
}

// RiskOption customises RiskHandlers.
type RiskOption func(*RiskHandlers)

// WithRiskRateLimiter throttles evaluations per caller. A nil limiter disables throttling.
func WithRiskRateLimiter(limiter RateLimiter) RiskOption {
	return func(h *RiskHandlers) {
		h.limiter = limiter
	}
}

// NewRiskHandlers constructs the evaluation handlers.
func NewRiskHandlers(risk services.RiskService, opts ...RiskOption) *RiskHandlers {
	h := &RiskHandlers{risk: risk}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the evaluation endpoints under the /risk group.
func (h *RiskHandlers) Routes(r chi.Router) {
	r.Post("/orders:evaluate", h.evaluateOrder)
}

type evaluateResponse struct {
	Result domain.EvaluationResult `json:"result"`
}

func (h *RiskHandlers) evaluateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)

	if h.risk == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "risk evaluation is not configured", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(ctx, callerKey(ctx)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many evaluation requests", http.StatusTooManyRequests))
		return
	}

	order, opts, err := decodeEvaluateRequest(r)
	if err != nil {
		h.writeEvaluationError(w, r, err)
		return
	}

	result, err := h.risk.EvaluateOrder(ctx, order, opts)
	if err != nil {
		h.writeEvaluationError(w, r, err)
		return
	}

	logger.Debug("order evaluated",
		zap.String("merchant_order_id", result.MerchantOrderID),
		zap.String("decision", string(result.Decision)),
	)
	httpx.WriteJSON(w, http.StatusOK, evaluateResponse{Result: result})
}

func (h *RiskHandlers) writeEvaluationError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	mapped := httpx.FromEvaluationError(err)
	// Provider payloads stay out of the response, so they are logged here.
	if mapped.Status >= http.StatusInternalServerError ||
		errors.Is(err, domain.ErrAuthentication) || errors.Is(err, domain.ErrProviderAPI) {
		requestctx.Logger(ctx).Error("order evaluation failed", zap.Int("status", mapped.Status), zap.Error(err))
	}
	httpx.WriteError(ctx, w, mapped)
}

// decodeEvaluateRequest accepts {"order": {...}, "options": {...}} or a bare order object. Query
// parameters mode, risk_inquiry and exclude_device override the body options.
func decodeEvaluateRequest(r *http.Request) (domain.OrderInput, domain.EvaluateOptions, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEvaluateBodySize+1))
	if err != nil {
		return domain.OrderInput{}, domain.EvaluateOptions{}, &domain.ValidationError{Field: "body", Reason: "could not be read"}
	}
	if len(body) > maxEvaluateBodySize {
		return domain.OrderInput{}, domain.EvaluateOptions{}, &domain.ValidationError{Field: "body", Reason: "is too large"}
	}

	var payload map[string]any
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return domain.OrderInput{}, domain.EvaluateOptions{}, &domain.ValidationError{Field: "body", Reason: "must be a JSON object"}
	}

	orderPayload := payload
	var optionsPayload map[string]any
	if wrapped, ok := payload["order"].(map[string]any); ok {
		orderPayload = wrapped
		if raw, present := payload["options"]; present && raw != nil {
			optionsPayload, ok = raw.(map[string]any)
			if !ok {
				return domain.OrderInput{}, domain.EvaluateOptions{}, &domain.ValidationError{Field: "options", Reason: "must be an object"}
			}
		}
	}

	order, err := domain.DecodeOrderInput(orderPayload)
	if err != nil {
		return domain.OrderInput{}, domain.EvaluateOptions{}, err
	}
	opts, err := domain.DecodeEvaluateOptions(optionsPayload)
	if err != nil {
		return domain.OrderInput{}, domain.EvaluateOptions{}, err
	}
	if err := applyQueryOptions(r, &opts); err != nil {
		return domain.OrderInput{}, domain.EvaluateOptions{}, err
	}
	return order, opts, nil
}

func applyQueryOptions(r *http.Request, opts *domain.EvaluateOptions) error {
	query := r.URL.Query()
	if mode := strings.TrimSpace(query.Get("mode")); mode != "" {
		opts.Mode = domain.EvaluationMode(mode)
	}
	if raw := strings.TrimSpace(query.Get("risk_inquiry")); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return &domain.ValidationError{Field: "risk_inquiry", Reason: fmt.Sprintf("must be a boolean, got %q", raw)}
		}
		opts.RiskInquiry = &enabled
	}
	if raw := strings.TrimSpace(query.Get("exclude_device")); raw != "" {
		exclude, err := strconv.ParseBool(raw)
		if err != nil {
			return &domain.ValidationError{Field: "exclude_device", Reason: fmt.Sprintf("must be a boolean, got %q", raw)}
		}
		opts.ExcludeDevice = exclude
	}
	return nil
}
