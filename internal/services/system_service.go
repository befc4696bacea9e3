package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fluid-commerce/droplet-kount-fraud-prevention/internal/domain"
)

const defaultProbeTimeout = 2 * time.Second

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthProbe checks one dependency. A failing probe marks the report as error when Critical is
// set and as degraded otherwise.
type HealthProbe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) (detail string, err error)
}

// CredentialProbe fails while no provider API key is configured.
func CredentialProbe(risk RiskService) HealthProbe {
	return HealthProbe{
		Name:     "kount_credentials",
		Critical: true,
		Check: func(context.Context) (string, error) {
			if risk == nil || !risk.Ready() {
				return "", errors.New("api key not configured")
			}
			return "configured", nil
		},
	}
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	Probes       []HealthProbe
	ProbeTimeout time.Duration
	Clock        func() time.Time
	Build        BuildInfo
}

type systemService struct {
	probes  []HealthProbe
	timeout time.Duration
	clock   func() time.Time
	build   BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service that runs readiness probes and reports build metadata.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	for _, probe := range deps.Probes {
		if strings.TrimSpace(probe.Name) == "" || probe.Check == nil {
			return nil, errors.New("system service: probes require a name and a check")
		}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	timeout := deps.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}

	return &systemService{
		probes:  append([]HealthProbe(nil), deps.Probes...),
		timeout: timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		build: build,
	}, nil
}

// HealthReport runs every probe concurrently, each bounded by the probe timeout.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	checks := make(map[string]domain.SystemHealthCheck, len(s.probes))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, probe := range s.probes {
		wg.Add(1)
		go func(probe HealthProbe) {
			defer wg.Done()
			check := s.run(ctx, probe)
			mu.Lock()
			checks[probe.Name] = check
			mu.Unlock()
		}(probe)
	}
	wg.Wait()

	now := s.clock()
	return SystemHealthReport{
		Status:      deriveStatus(checks),
		Checks:      checks,
		Version:     s.build.Version,
		CommitSHA:   s.build.CommitSHA,
		Environment: s.build.Environment,
		Uptime:      now.Sub(s.build.StartedAt),
		GeneratedAt: now,
	}, nil
}

func (s *systemService) run(ctx context.Context, probe HealthProbe) domain.SystemHealthCheck {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.clock()
	detail, err := probe.Check(probeCtx)
	check := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    detail,
		Latency:   s.clock().Sub(start),
		CheckedAt: start,
	}
	if err != nil {
		check.Error = err.Error()
		check.Status = domain.HealthStatusDegraded
		if probe.Critical {
			check.Status = domain.HealthStatusError
		}
	}
	return check
}

func deriveStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
			continue
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
