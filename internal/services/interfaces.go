package services

import (
	"context"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/domain"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/kount"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	OrderInput       = domain.OrderInput
	EvaluateOptions  = domain.EvaluateOptions
	EvaluationResult = domain.EvaluationResult
	EvaluationRecord = domain.EvaluationRecord
)

// RiskService evaluates orders against the fraud scoring provider.
type RiskService interface {
	EvaluateOrder(ctx context.Context, order OrderInput, opts EvaluateOptions) (EvaluationResult, error)
	// Ready reports whether provider credentials are configured.
	Ready() bool
}

// OrderMapper converts caller orders into provider requests.
type OrderMapper interface {
	Build(order OrderInput, opts EvaluateOptions) (kount.OrderRequest, error)
}

// OrderSubmitter sends provider requests and returns the undecoded reply.
type OrderSubmitter interface {
	Submit(ctx context.Context, req kount.OrderRequest, opts EvaluateOptions) (kount.RawResponse, error)
}

// CredentialStatus reports whether the provider can be authenticated against.
type CredentialStatus interface {
	Configured() bool
}

// EvaluationPublisher publishes completed evaluations for downstream audit consumers.
type EvaluationPublisher interface {
	PublishEvaluation(ctx context.Context, record EvaluationRecord) error
}

// SystemService reports process and dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// SystemHealthReport is the readiness summary served by /readyz.
type SystemHealthReport = domain.SystemHealthReport
