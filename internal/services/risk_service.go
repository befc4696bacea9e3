package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/domain"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/kount"
	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/platform/requestctx"
)

const instrumentationName = "github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/services"

var tracer = otel.Tracer(instrumentationName)

// RiskServiceDeps bundles collaborators required to construct the risk service.
type RiskServiceDeps struct {
	Mapper      OrderMapper
	Client      OrderSubmitter
	Credentials CredentialStatus
	Events      EvaluationPublisher
	Environment string
	Clock       func() time.Time
	Logger      *zap.Logger
	Meter       metric.Meter
}

type riskService struct {
	mapper      OrderMapper
	client      OrderSubmitter
	credentials CredentialStatus
	events      EvaluationPublisher
	environment string
	clock       func() time.Time
	logger      *zap.Logger

	evaluations    metric.Int64Counter
	latency        metric.Float64Histogram
	metricsEnabled bool
}

// NewRiskService wires dependencies into a concrete RiskService implementation.
func NewRiskService(deps RiskServiceDeps) (RiskService, error) {
	if deps.Client == nil {
		return nil, errors.New("risk service: order submitter is required")
	}

	mapper := deps.Mapper
	if mapper == nil {
		mapper = kount.NewMapper()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}

	svc := &riskService{
		mapper:      mapper,
		client:      deps.Client,
		credentials: deps.Credentials,
		events:      deps.Events,
		environment: strings.TrimSpace(deps.Environment),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}

	evaluations, countErr := meter.Int64Counter(
		"risk.evaluations",
		metric.WithDescription("Count of order risk evaluations by outcome and decision"),
	)
	latency, latencyErr := meter.Float64Histogram(
		"risk.evaluation.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds of order risk evaluations"),
	)
	if countErr != nil || latencyErr != nil {
		logger.Warn("risk service: unable to register metrics", zap.Error(errors.Join(countErr, latencyErr)))
	} else {
		svc.evaluations = evaluations
		svc.latency = latency
		svc.metricsEnabled = true
	}

	return svc, nil
}

func (s *riskService) Ready() bool {
	if s.credentials == nil {
		return true
	}
	return s.credentials.Configured()
}

// EvaluateOrder validates, maps, submits and normalises one order. Validation failures never
// reach the network. Authentication and provider errors propagate typed; anything else is
// wrapped into *domain.APIError.
func (s *riskService) EvaluateOrder(ctx context.Context, order OrderInput, opts EvaluateOptions) (EvaluationResult, error) {
	ctx, span := tracer.Start(ctx, "risk.evaluate", trace.WithAttributes(
		attribute.String("risk.environment", s.environment),
	))
	defer span.End()

	logger := s.contextLogger(ctx).With(
		zap.String("merchant_order_id", strings.TrimSpace(order.OrderID)),
		zap.String("environment", s.environment),
	)
	started := time.Now()

	result, mode, err := s.evaluate(ctx, order, opts)
	elapsed := time.Since(started)
	outcome := outcomeOf(err)
	s.record(ctx, outcome, result.Decision, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if outcome == "validation_error" {
			logger.Info("risk evaluation rejected", zap.Error(err))
		} else {
			logger.Warn("risk evaluation failed", zap.String("outcome", outcome), zap.Error(err))
		}
		return EvaluationResult{}, err
	}

	span.SetAttributes(
		attribute.String("risk.decision", string(result.Decision)),
		attribute.String("risk.transaction_id", result.TransactionID),
	)
	logger.Info("risk evaluation completed",
		zap.String("decision", string(result.Decision)),
		zap.String("provider_decision", result.ProviderDecision),
		zap.String("transaction_id", result.TransactionID),
		zap.Duration("latency", elapsed),
	)

	s.publish(ctx, logger, order, mode, result)
	return result, nil
}

func (s *riskService) evaluate(ctx context.Context, order OrderInput, opts EvaluateOptions) (EvaluationResult, domain.EvaluationMode, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return EvaluationResult{}, "", err
	}
	if err := order.Validate(); err != nil {
		return EvaluationResult{}, opts.Mode, err
	}

	req, err := s.mapper.Build(order, opts)
	if err != nil {
		return EvaluationResult{}, opts.Mode, classify(err)
	}

	raw, err := s.client.Submit(ctx, req, opts)
	if err != nil {
		return EvaluationResult{}, opts.Mode, classify(err)
	}

	result, err := kount.ParseResponse(raw)
	if err != nil {
		return EvaluationResult{}, opts.Mode, classify(err)
	}
	return result, opts.Mode, nil
}

// classify keeps typed errors intact and coerces everything else into an APIError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		validationErr *domain.ValidationError
		authErr       *domain.AuthenticationError
		apiErr        *domain.APIError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &authErr), errors.As(err, &apiErr):
		return err
	default:
		return &domain.APIError{Message: err.Error(), Err: err}
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrValidation):
		return "validation_error"
	case errors.Is(err, domain.ErrAuthentication):
		return "authentication_error"
	default:
		return "provider_error"
	}
}

func (s *riskService) record(ctx context.Context, outcome string, decision domain.Decision, elapsed time.Duration) {
	if !s.metricsEnabled {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome),
		attribute.String("environment", s.environment),
	}
	if decision != "" {
		attrs = append(attrs, attribute.String("decision", string(decision)))
	}
	s.evaluations.Add(ctx, 1, metric.WithAttributes(attrs...))
	s.latency.Record(ctx, float64(elapsed)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

func (s *riskService) publish(ctx context.Context, logger *zap.Logger, order OrderInput, mode domain.EvaluationMode, result EvaluationResult) {
	if s.events == nil {
		return
	}
	merchantOrderID := result.MerchantOrderID
	if merchantOrderID == "" {
		merchantOrderID = strings.TrimSpace(order.OrderID)
	}
	record := EvaluationRecord{
		OrderID:         result.OrderID,
		MerchantOrderID: merchantOrderID,
		TransactionID:   result.TransactionID,
		Decision:        result.Decision,
		RiskScore:       result.RiskScore,
		ReasonCodes:     result.ReasonCodes,
		Environment:     s.environment,
		Mode:            string(mode),
		EvaluatedAt:     s.clock(),
	}
	if err := s.events.PublishEvaluation(ctx, record); err != nil {
		logger.Warn("risk evaluation event publish failed", zap.Error(err))
	}
}

func (s *riskService) contextLogger(ctx context.Context) *zap.Logger {
	if logger := requestctx.Logger(ctx); logger != requestctx.NoopLogger() {
		return logger
	}
	return s.logger
}
