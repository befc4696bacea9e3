package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/domain"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/platform/requestctx"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/services"
)

type stubRiskService struct {
	result    services.EvaluationResult
	err       error
	calls     int
	lastOrder services.OrderInput
	lastOpts  services.EvaluateOptions
}

func (s *stubRiskService) EvaluateOrder(_ context.Context, order services.OrderInput, opts services.EvaluateOptions) (services.EvaluationResult, error) {
	s.calls++
	s.lastOrder = order
	s.lastOpts = opts
	if s.err != nil {
		return services.EvaluationResult{}, s.err
	}
	return s.result, nil
}

func (s *stubRiskService) Ready() bool { return true }

type denyLimiter struct {
	keys []string
}

func (d *denyLimiter) Allow(_ context.Context, key string) bool {
	d.keys = append(d.keys, key)
	return false
}

const sampleOrderJSON = `{
	"order_id": "ord-1",
	"session_id": "sess-1",
	"total_amount": 125.5,
	"currency": "usd",
	"created_at": "2024-05-01T10:00:00Z",
	"channel": "web",
	"payment": {"type": "CREDIT_CARD", "bin": "411111", "last4": "1111"},
	"customer": {"email": "buyer@example.com", "first_name": "Ada"}
}`

func newRiskRouter(h *RiskHandlers) http.Handler {
	r := chi.NewRouter()
	r.Route("/risk", h.Routes)
	return r
}

func serveEvaluate(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeErrorBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestRiskHandlersEvaluateWrappedPayload(t *testing.T) {
	score := 42.0
	svc := &stubRiskService{result: services.EvaluationResult{
		Decision:        domain.DecisionApprove,
		RiskScore:       &score,
		ReasonCodes:     []string{"LOW_RISK"},
		MerchantOrderID: "ord-1",
	}}
	router := newRiskRouter(NewRiskHandlers(svc))

	body := `{"order": ` + sampleOrderJSON + `, "options": {"mode": "pre_auth", "exclude_device": true}}`
	rr := serveEvaluate(t, router, "/risk/orders:evaluate", body)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("expected one evaluation, got %d", svc.calls)
	}
	if svc.lastOrder.OrderID != "ord-1" || svc.lastOrder.TotalAmount == nil || *svc.lastOrder.TotalAmount != 125.5 {
		t.Fatalf("unexpected decoded order %+v", svc.lastOrder)
	}
	if svc.lastOrder.Payment == nil || svc.lastOrder.Payment.BIN != "411111" {
		t.Fatalf("expected payment to decode, got %+v", svc.lastOrder.Payment)
	}
	if svc.lastOpts.Mode != domain.ModePreAuth || !svc.lastOpts.ExcludeDevice {
		t.Fatalf("unexpected options %+v", svc.lastOpts)
	}

	var resp struct {
		Result struct {
			Decision    string   `json:"decision"`
			RiskScore   float64  `json:"risk_score"`
			ReasonCodes []string `json:"reason_codes"`
		} `json:"result"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Result.Decision != "APPROVE" || resp.Result.RiskScore != 42 || len(resp.Result.ReasonCodes) != 1 {
		t.Fatalf("unexpected response %+v", resp.Result)
	}
}

func TestRiskHandlersEvaluateBareOrderWithQueryOverrides(t *testing.T) {
	svc := &stubRiskService{result: services.EvaluationResult{Decision: domain.DecisionReview}}
	router := newRiskRouter(NewRiskHandlers(svc))

	rr := serveEvaluate(t, router, "/risk/orders:evaluate?risk_inquiry=false&mode=post_auth", sampleOrderJSON)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if svc.lastOrder.SessionID != "sess-1" {
		t.Fatalf("expected bare order to decode, got %+v", svc.lastOrder)
	}
	if svc.lastOpts.RiskInquiry == nil || *svc.lastOpts.RiskInquiry {
		t.Fatalf("expected risk inquiry disabled by query, got %+v", svc.lastOpts.RiskInquiry)
	}
	if svc.lastOpts.Mode != domain.ModePostAuth {
		t.Fatalf("expected post_auth mode, got %s", svc.lastOpts.Mode)
	}
}

func TestRiskHandlersEvaluateRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		target string
		body   string
		field  string
	}{
		{"not json", "/risk/orders:evaluate", "{", "body"},
		{"empty object", "/risk/orders:evaluate", "{}", "order"},
		{"options not object", "/risk/orders:evaluate", `{"order": ` + sampleOrderJSON + `, "options": "fast"}`, "options"},
		{"bad risk inquiry", "/risk/orders:evaluate?risk_inquiry=maybe", sampleOrderJSON, "risk_inquiry"},
		{"bad exclude device", "/risk/orders:evaluate?exclude_device=2", sampleOrderJSON, "exclude_device"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubRiskService{}
			router := newRiskRouter(NewRiskHandlers(svc))

			rr := serveEvaluate(t, router, tc.target, tc.body)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d (%s)", rr.Code, rr.Body.String())
			}
			body := decodeErrorBody(t, rr)
			if body["error"] != "invalid_order" {
				t.Fatalf("expected invalid_order, got %v", body["error"])
			}
			details, _ := body["details"].(map[string]any)
			if details["field"] != tc.field {
				t.Fatalf("expected field %s, got %v", tc.field, details["field"])
			}
			if svc.calls != 0 {
				t.Fatalf("expected no evaluation for invalid input")
			}
		})
	}
}

func TestRiskHandlersEvaluateMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &domain.ValidationError{Field: "currency", Reason: "is required"}, http.StatusBadRequest, "invalid_order"},
		{"authentication", &domain.AuthenticationError{StatusCode: 401, Body: `{"error":"invalid_client"}`}, http.StatusUnauthorized, "provider_authentication_failed"},
		{"provider", &domain.APIError{StatusCode: 503, Body: "upstream secret detail"}, http.StatusUnprocessableEntity, "provider_error"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_server_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRiskRouter(NewRiskHandlers(&stubRiskService{err: tc.err}))

			rr := serveEvaluate(t, router, "/risk/orders:evaluate", sampleOrderJSON)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			body := decodeErrorBody(t, rr)
			if body["error"] != tc.wantCode {
				t.Fatalf("expected %s, got %v", tc.wantCode, body["error"])
			}
			if strings.Contains(rr.Body.String(), "upstream secret detail") || strings.Contains(rr.Body.String(), "invalid_client") {
				t.Fatalf("provider body leaked into response: %s", rr.Body.String())
			}
		})
	}
}

func TestRiskHandlersEvaluateProviderStatusDetail(t *testing.T) {
	router := newRiskRouter(NewRiskHandlers(&stubRiskService{err: &domain.APIError{StatusCode: 422}}))

	rr := serveEvaluate(t, router, "/risk/orders:evaluate", sampleOrderJSON)

	body := decodeErrorBody(t, rr)
	details, _ := body["details"].(map[string]any)
	if details["provider_status"] != float64(422) {
		t.Fatalf("expected provider_status 422, got %v", details["provider_status"])
	}
}

func TestRiskHandlersEvaluateRateLimited(t *testing.T) {
	svc := &stubRiskService{}
	limiter := &denyLimiter{}
	handlers := NewRiskHandlers(svc, WithRiskRateLimiter(limiter))

	req := httptest.NewRequest(http.MethodPost, "/risk/orders:evaluate", strings.NewReader(sampleOrderJSON))
	req = req.WithContext(requestctx.WithCaller(req.Context(), requestctx.Caller{MerchantID: "m-42", RemoteIP: "10.0.0.1"}))
	rr := httptest.NewRecorder()
	newRiskRouter(handlers).ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("expected limiter to short-circuit evaluation")
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "merchant:m-42" {
		t.Fatalf("expected merchant key, got %v", limiter.keys)
	}
}

func TestRiskHandlersEvaluateWithoutService(t *testing.T) {
	router := newRiskRouter(NewRiskHandlers(nil))

	rr := serveEvaluate(t, router, "/risk/orders:evaluate", sampleOrderJSON)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestRiskHandlersEvaluateBodyTooLarge(t *testing.T) {
	svc := &stubRiskService{}
	router := newRiskRouter(NewRiskHandlers(svc))

	large := `{"order_id": "` + strings.Repeat("x", maxEvaluateBodySize) + `"}`
	rr := serveEvaluate(t, router, "/risk/orders:evaluate", large)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("expected no evaluation for oversized body")
	}
}

func TestRiskHandlersEvaluateLogsProviderFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := newRiskRouter(NewRiskHandlers(&stubRiskService{err: &domain.APIError{StatusCode: 503, Body: "upstream detail"}}))

	req := httptest.NewRequest(http.MethodPost, "/risk/orders:evaluate", strings.NewReader(sampleOrderJSON))
	req = req.WithContext(requestctx.WithLogger(req.Context(), zap.New(core)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	entries := logs.FilterMessage("order evaluation failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected provider failure to be logged, got %d entries", len(entries))
	}
	if msg, _ := entries[0].ContextMap()["error"].(string); !strings.Contains(msg, "upstream detail") {
		t.Fatalf("expected provider body in log, got %q", msg)
	}
}
