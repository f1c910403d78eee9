package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-sentinel/internal/config"
	"github.com/miradorstack/mirador-sentinel/internal/metrics"
	"github.com/miradorstack/mirador-sentinel/internal/models"
	"github.com/miradorstack/mirador-sentinel/internal/repo"
)

// ratingWindow is the trailing window all rate expressions evaluate over.
const ratingWindow = "5m"

// Querier defines the metrics backend behaviour used by the evaluators.
type Querier interface {
	Query(ctx context.Context, expr string) (repo.Series, error)
	QueryBaseline(ctx context.Context, expr string) (repo.Series, error)
}

// SLOEvaluator compares current metric readings against per-service SLO
// targets. A backend failure or empty result silently skips the affected
// rule; absence of data is not evidence of compliance or breach.
type SLOEvaluator struct {
	querier Querier
	logger  *slog.Logger
}

// NewSLOEvaluator constructs an evaluator over the given metrics backend.
func NewSLOEvaluator(querier Querier, logger *slog.Logger) *SLOEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SLOEvaluator{querier: querier, logger: logger}
}

// Evaluate runs the availability, latency, and error-rate rules for a
// service and returns any violations.
func (e *SLOEvaluator) Evaluate(ctx context.Context, svc config.ServiceConfig) []models.Violation {
	violations := make([]models.Violation, 0, 3)

	if v, ok := e.checkAvailability(ctx, svc); ok {
		violations = append(violations, v)
	}
	if v, ok := e.checkLatency(ctx, svc); ok {
		violations = append(violations, v)
	}
	if v, ok := e.checkErrorRate(ctx, svc); ok {
		violations = append(violations, v)
	}

	return violations
}

func (e *SLOEvaluator) checkAvailability(ctx context.Context, svc config.ServiceConfig) (models.Violation, bool) {
	expr := fmt.Sprintf(
		`sum(rate(http_requests_total{service=%q,code!~"5.."}[%s])) / sum(rate(http_requests_total{service=%q}[%s]))`,
		svc.Name, ratingWindow, svc.Name, ratingWindow,
	)

	ratio, ok := e.scalar(ctx, svc.Name, "availability", expr)
	if !ok {
		return models.Violation{}, false
	}

	if ratio >= svc.SLO.Availability {
		return models.Violation{}, false
	}

	// Availability breaches are binary-impact, always critical.
	return models.Violation{
		Type:     models.ViolationAvailability,
		Current:  ratio,
		Target:   svc.SLO.Availability,
		Severity: models.SeverityCritical,
		Message:  fmt.Sprintf("availability %.4f below target %.4f", ratio, svc.SLO.Availability),
	}, true
}

func (e *SLOEvaluator) checkLatency(ctx context.Context, svc config.ServiceConfig) (models.Violation, bool) {
	expr := fmt.Sprintf(
		`histogram_quantile(0.95, sum(rate(http_request_duration_seconds_bucket{service=%q}[%s])) by (le))`,
		svc.Name, ratingWindow,
	)

	seconds, ok := e.scalar(ctx, svc.Name, "latency", expr)
	if !ok {
		return models.Violation{}, false
	}
	ms := seconds * 1000

	if ms <= svc.SLO.LatencyP95Ms {
		return models.Violation{}, false
	}

	// The p99 ceiling doubles as the critical boundary for the p95 reading.
	severity := models.SeverityWarning
	if ms >= svc.SLO.LatencyP99Ms {
		severity = models.SeverityCritical
	}

	return models.Violation{
		Type:     models.ViolationLatencyP95,
		Current:  ms,
		Target:   svc.SLO.LatencyP95Ms,
		Severity: severity,
		Message:  fmt.Sprintf("p95 latency %.0fms exceeds %.0fms ceiling", ms, svc.SLO.LatencyP95Ms),
	}, true
}

func (e *SLOEvaluator) checkErrorRate(ctx context.Context, svc config.ServiceConfig) (models.Violation, bool) {
	expr := fmt.Sprintf(
		`sum(rate(http_requests_total{service=%q,code=~"5.."}[%s])) / sum(rate(http_requests_total{service=%q}[%s]))`,
		svc.Name, ratingWindow, svc.Name, ratingWindow,
	)

	rate, ok := e.scalar(ctx, svc.Name, "error_rate", expr)
	if !ok {
		return models.Violation{}, false
	}

	if rate <= svc.SLO.ErrorRate {
		return models.Violation{}, false
	}

	severity := models.SeverityWarning
	if rate >= 2*svc.SLO.ErrorRate {
		severity = models.SeverityCritical
	}

	return models.Violation{
		Type:     models.ViolationErrorRate,
		Current:  rate,
		Target:   svc.SLO.ErrorRate,
		Severity: severity,
		Message:  fmt.Sprintf("error rate %.2f%% above %.2f%% ceiling", rate*100, svc.SLO.ErrorRate*100),
	}, true
}

// scalar queries a single value, logging and skipping on failure or when
// the backend has no data for the expression.
func (e *SLOEvaluator) scalar(ctx context.Context, service, rule, expr string) (float64, bool) {
	series, err := e.querier.Query(ctx, expr)
	if err != nil {
		metrics.ObserveRuleSkip(rule)
		e.logger.Warn("slo rule skipped",
			slog.String("service", service),
			slog.String("rule", rule),
			slog.Any("error", err))
		return 0, false
	}

	value, ok := series.Scalar()
	if !ok {
		return 0, false
	}
	return value, true
}
