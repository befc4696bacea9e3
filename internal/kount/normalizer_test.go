package kount

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/domain"
)

func okResponse(body string) RawResponse {
	return RawResponse{StatusCode: http.StatusOK, Body: []byte(body)}
}

func TestParseResponseNestedRiskInquiry(t *testing.T) {
	result, err := ParseResponse(okResponse(`{"order":{"orderId":"O1","riskInquiry":{"decision":"APPROVE","omniscore":950}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Decision != domain.DecisionApprove {
		t.Fatalf("expected APPROVE, got %q", result.Decision)
	}
	if result.RiskScore == nil || *result.RiskScore != 950 {
		t.Fatalf("expected score 950, got %v", result.RiskScore)
	}
	if result.OrderID != "O1" {
		t.Fatalf("expected order id O1, got %q", result.OrderID)
	}
	if result.Raw == nil || result.Raw["order"] == nil {
		t.Fatalf("expected raw body retained")
	}
	if result.ReasonCodes == nil || len(result.ReasonCodes) != 0 {
		t.Fatalf("expected empty, non-nil reason codes, got %#v", result.ReasonCodes)
	}
}

func TestParseResponseFullNestedShape(t *testing.T) {
	body := `{
		"order": {
			"orderId": "K-1",
			"merchantOrderId": "M-1",
			"transactions": [{"transactionId": "T-1"}, {"transactionId": "T-2"}],
			"riskInquiry": {
				"decision": "decline",
				"omniscore": "12.5",
				"reasonCodes": ["R1", {"code": "R2", "description": "velocity"}],
				"persona": {"uniqueCards": 3}
			}
		}
	}`
	result, err := ParseResponse(okResponse(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Decision != domain.DecisionDecline || result.ProviderDecision != "decline" {
		t.Fatalf("unexpected decision %q (%q)", result.Decision, result.ProviderDecision)
	}
	if *result.RiskScore != 12.5 {
		t.Fatalf("expected numeric string score, got %v", *result.RiskScore)
	}
	if diff := cmp.Diff([]string{"R1", "R2"}, result.ReasonCodes); diff != "" {
		t.Fatalf("reason codes mismatch (-want +got):\n%s", diff)
	}
	if result.TransactionID != "T-1" || result.MerchantOrderID != "M-1" || result.OrderID != "K-1" {
		t.Fatalf("unexpected identifiers: %+v", result)
	}
	if result.Persona == nil {
		t.Fatalf("expected persona")
	}
}

func TestParseResponseFlatShape(t *testing.T) {
	result, err := ParseResponse(okResponse(`{"decision":"R","score":40,"reasonCode":"VELOCITY","transactionId":"T9","orderId":"O9"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Decision != domain.DecisionReview {
		t.Fatalf("expected REVIEW, got %q", result.Decision)
	}
	if *result.RiskScore != 40 {
		t.Fatalf("expected score 40, got %v", *result.RiskScore)
	}
	if diff := cmp.Diff([]string{"VELOCITY"}, result.ReasonCodes); diff != "" {
		t.Fatalf("reason codes mismatch (-want +got):\n%s", diff)
	}
	if result.TransactionID != "T9" || result.OrderID != "O9" {
		t.Fatalf("unexpected identifiers: %+v", result)
	}
}

func TestParseResponseTopLevelRiskInquiry(t *testing.T) {
	result, err := ParseResponse(okResponse(`{"riskInquiry":{"decision":"APPROVED","riskScore":5,"reasons":"LOW"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Decision != domain.DecisionApprove || *result.RiskScore != 5 {
		t.Fatalf("unexpected result %+v", result)
	}
	if diff := cmp.Diff([]string{"LOW"}, result.ReasonCodes); diff != "" {
		t.Fatalf("reason codes mismatch (-want +got):\n%s", diff)
	}
}

func TestParseResponseDefaultsToReview(t *testing.T) {
	result, err := ParseResponse(okResponse(`{"order":{"riskInquiry":{"omniscore":10}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Decision != domain.DecisionReview || result.ProviderDecision != "" {
		t.Fatalf("expected REVIEW default, got %q (%q)", result.Decision, result.ProviderDecision)
	}
	if result.RiskScore == nil || *result.RiskScore != 10 {
		t.Fatalf("expected score from first present block, got %v", result.RiskScore)
	}

	result, err = ParseResponse(okResponse(`{"decision":"SOMETHING_NEW"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.Decision != domain.DecisionReview || result.ProviderDecision != "SOMETHING_NEW" {
		t.Fatalf("expected unrecognised literal kept with REVIEW, got %q (%q)", result.Decision, result.ProviderDecision)
	}
}

func TestParseResponseErrors(t *testing.T) {
	_, err := ParseResponse(RawResponse{StatusCode: http.StatusServiceUnavailable, Body: []byte("upstream down")})
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable || apiErr.Body != "upstream down" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}

	for _, body := range []string{"not json", "[1,2]", "null", ""} {
		_, err := ParseResponse(okResponse(body))
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusOK {
			t.Fatalf("body %q: expected api error carrying status, got %v", body, err)
		}
	}
}
