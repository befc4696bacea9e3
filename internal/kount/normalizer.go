package kount

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/domain"
)

// RawResponse is an undecoded provider reply.
type RawResponse struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

var (
	decisionKeys = []string{"decision", "riskDecision"}
	scoreKeys    = []string{"omniscore", "score", "riskScore"}
	reasonKeys   = []string{"reasonCode", "reasonCodes", "reasons"}
)

// ParseResponse classifies raw and extracts the decision summary. Non-2xx statuses and bodies
// that are not JSON objects yield *domain.APIError.
func ParseResponse(raw RawResponse) (domain.EvaluationResult, error) {
	if raw.StatusCode < 200 || raw.StatusCode > 299 {
		return domain.EvaluationResult{}, &domain.APIError{
			StatusCode: raw.StatusCode,
			Message:    http.StatusText(raw.StatusCode),
			Body:       string(raw.Body),
		}
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Body))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		return domain.EvaluationResult{}, &domain.APIError{
			StatusCode: raw.StatusCode,
			Message:    "response body is not a JSON object",
			Body:       string(raw.Body),
			Err:        err,
		}
	}

	order := objectAt(body, "order")
	block := decisionBlock(body, order)

	result := domain.EvaluationResult{
		Decision:        domain.DecisionReview,
		ReasonCodes:     []string{},
		TransactionID:   firstTransactionID(body, order),
		OrderID:         firstString(order, body, "orderId"),
		MerchantOrderID: firstString(order, body, "merchantOrderId"),
		Raw:             body,
	}

	if literal := stringFrom(block, decisionKeys...); literal != "" {
		result.ProviderDecision = literal
		result.Decision, _ = domain.ParseDecision(literal)
	}
	if score, ok := numberFrom(block, scoreKeys...); ok {
		result.RiskScore = &score
	}
	if reasons := stringsFrom(block, reasonKeys...); len(reasons) > 0 {
		result.ReasonCodes = reasons
	}
	if persona := objectAt(block, "persona"); persona != nil {
		result.Persona = persona
	}
	return result, nil
}

// decisionBlock picks order.riskInquiry, then riskInquiry, then the body itself. The first
// candidate carrying a decision wins; otherwise the first present candidate is used.
func decisionBlock(body, order map[string]any) map[string]any {
	candidates := make([]map[string]any, 0, 3)
	if nested := objectAt(order, "riskInquiry"); nested != nil {
		candidates = append(candidates, nested)
	}
	if top := objectAt(body, "riskInquiry"); top != nil {
		candidates = append(candidates, top)
	}
	candidates = append(candidates, body)

	for _, candidate := range candidates {
		if stringFrom(candidate, decisionKeys...) != "" {
			return candidate
		}
	}
	return candidates[0]
}

func firstTransactionID(body, order map[string]any) string {
	for _, container := range []map[string]any{order, body} {
		txs, _ := container["transactions"].([]any)
		if len(txs) == 0 {
			continue
		}
		if first, ok := txs[0].(map[string]any); ok {
			if id := stringFrom(first, "transactionId"); id != "" {
				return id
			}
		}
	}
	return stringFrom(body, "transactionId")
}

func firstString(primary, fallback map[string]any, key string) string {
	if v := stringFrom(primary, key); v != "" {
		return v
	}
	return stringFrom(fallback, key)
}

func objectAt(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	obj, _ := m[key].(map[string]any)
	return obj
}

func stringFrom(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func numberFrom(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := m[key].(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func stringsFrom(m map[string]any, keys ...string) []string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return []string{trimmed}
			}
		case json.Number:
			return []string{v.String()}
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if code := reasonCode(item); code != "" {
					out = append(out, code)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// reasonCode accepts plain codes and objects such as {"code": "R1", "description": "..."}.
func reasonCode(item any) string {
	switch v := item.(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case map[string]any:
		return stringFrom(v, "code", "reasonCode", "id")
	}
	return ""
}
