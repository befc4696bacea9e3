package domain

import (
	"strings"
	"time"
)

// Decision is the normalised risk verdict for an order.
type Decision string

const (
	// DecisionApprove indicates the provider approved the order.
	DecisionApprove Decision = "APPROVE"
	// DecisionDecline indicates the provider declined the order.
	DecisionDecline Decision = "DECLINE"
	// DecisionReview indicates the order needs manual review. It is also the verdict used when
	// the provider returns no decision or one that is not recognised.
	DecisionReview Decision = "REVIEW"
)

// ParseDecision maps a provider decision literal onto a Decision.
func ParseDecision(value string) (Decision, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "APPROVE", "APPROVED", "A":
		return DecisionApprove, true
	case "DECLINE", "DECLINED", "D":
		return DecisionDecline, true
	case "REVIEW", "R", "E", "ESCALATE", "HOLD":
		return DecisionReview, true
	default:
		return DecisionReview, false
	}
}

// EvaluationMode selects whether the order is evaluated before or after payment authorization.
type EvaluationMode string

const (
	// ModePreAuth evaluates the order before the payment is authorized.
	ModePreAuth EvaluationMode = "pre_auth"
	// ModePostAuth evaluates the order after authorization.
	ModePostAuth EvaluationMode = "post_auth"
)

// EvaluateOptions tune a single evaluation call.
type EvaluateOptions struct {
	RiskInquiry   *bool          `json:"risk_inquiry,omitempty"`
	ExcludeDevice bool           `json:"exclude_device,omitempty"`
	Mode          EvaluationMode `json:"mode,omitempty"`
}

// RiskInquiryEnabled reports whether a risk inquiry was requested. Defaults to true.
func (o EvaluateOptions) RiskInquiryEnabled() bool {
	if o.RiskInquiry == nil {
		return true
	}
	return *o.RiskInquiry
}

// Normalize applies defaults and validates the mode.
func (o EvaluateOptions) Normalize() (EvaluateOptions, error) {
	mode := EvaluationMode(strings.ToLower(strings.TrimSpace(string(o.Mode))))
	switch mode {
	case "":
		mode = ModePostAuth
	case ModePreAuth, ModePostAuth:
	default:
		return o, &ValidationError{Field: "mode", Reason: "must be pre_auth or post_auth"}
	}
	o.Mode = mode
	return o, nil
}

// EvaluationResult is the stable decision summary extracted from a provider response.
type EvaluationResult struct {
	Decision         Decision       `json:"decision"`
	RiskScore        *float64       `json:"risk_score,omitempty"`
	ReasonCodes      []string       `json:"reason_codes"`
	TransactionID    string         `json:"transaction_id,omitempty"`
	OrderID          string         `json:"order_id,omitempty"`
	MerchantOrderID  string         `json:"merchant_order_id,omitempty"`
	Persona          map[string]any `json:"persona,omitempty"`
	ProviderDecision string         `json:"provider_decision,omitempty"`
	Raw              map[string]any `json:"raw,omitempty"`
}

// EvaluationRecord is the audit event emitted after an evaluation completes.
type EvaluationRecord struct {
	OrderID         string    `json:"orderId,omitempty"`
	MerchantOrderID string    `json:"merchantOrderId"`
	TransactionID   string    `json:"transactionId,omitempty"`
	Decision        Decision  `json:"decision"`
	RiskScore       *float64  `json:"riskScore,omitempty"`
	ReasonCodes     []string  `json:"reasonCodes"`
	Environment     string    `json:"environment"`
	Mode            string    `json:"mode"`
	EvaluatedAt     time.Time `json:"evaluatedAt"`
}
