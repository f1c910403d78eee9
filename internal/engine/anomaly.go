package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/miradorstack/mirador-sentinel/internal/config"
	"github.com/miradorstack/mirador-sentinel/internal/metrics"
	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// baselineOffset is how far back the comparison window sits.
const baselineOffset = "1h"

// AnomalyDetector flags traffic and error rates that significantly exceed
// their hour-ago baseline. This is a plain ratio test, not a seasonal
// model; a known limitation rather than a bug.
type AnomalyDetector struct {
	querier   Querier
	threshold float64
	logger    *slog.Logger
}

// NewAnomalyDetector constructs a detector with the configured ratio
// threshold (defaults to 2.0 when non-positive).
func NewAnomalyDetector(querier Querier, threshold float64, logger *slog.Logger) *AnomalyDetector {
	if threshold <= 0 {
		threshold = 2.0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnomalyDetector{querier: querier, threshold: threshold, logger: logger}
}

// Detect runs the traffic and error spike checks independently for a service.
func (d *AnomalyDetector) Detect(ctx context.Context, svc config.ServiceConfig) []models.Anomaly {
	anomalies := make([]models.Anomaly, 0, 2)

	trafficExpr := fmt.Sprintf(`sum(rate(http_requests_total{service=%q}[%s]))`, svc.Name, ratingWindow)
	if a, ok := d.detectSpike(ctx, svc.Name, models.AnomalyTrafficSpike, trafficExpr, "request"); ok {
		anomalies = append(anomalies, a)
	}

	errorExpr := fmt.Sprintf(`sum(rate(http_requests_total{service=%q,code=~"5.."}[%s]))`, svc.Name, ratingWindow)
	if a, ok := d.detectSpike(ctx, svc.Name, models.AnomalyErrorSpike, errorExpr, "error"); ok {
		anomalies = append(anomalies, a)
	}

	return anomalies
}

func (d *AnomalyDetector) detectSpike(ctx context.Context, service string, typ models.AnomalyType, expr, noun string) (models.Anomaly, bool) {
	current, ok := d.scalar(ctx, service, string(typ), func() (float64, bool, error) {
		series, err := d.querier.Query(ctx, expr)
		if err != nil {
			return 0, false, err
		}
		v, ok := series.Scalar()
		return v, ok, nil
	})
	if !ok {
		return models.Anomaly{}, false
	}

	baselineExpr := withOffset(expr)
	historical, ok := d.scalar(ctx, service, string(typ), func() (float64, bool, error) {
		series, err := d.querier.QueryBaseline(ctx, baselineExpr)
		if err != nil {
			return 0, false, err
		}
		v, ok := series.Scalar()
		return v, ok, nil
	})
	if !ok {
		return models.Anomaly{}, false
	}

	// Zero baseline means no meaningful ratio; skip rather than divide.
	if historical <= 0 {
		return models.Anomaly{}, false
	}

	if current <= historical*d.threshold {
		return models.Anomaly{}, false
	}

	ratio := current / historical
	return models.Anomaly{
		Type:       typ,
		Current:    current,
		Historical: historical,
		Ratio:      ratio,
		Message:    fmt.Sprintf("%s rate %.1f/s is %.1fx the hour-ago baseline %.1f/s", noun, current, ratio, historical),
	}, true
}

func (d *AnomalyDetector) scalar(ctx context.Context, service, check string, query func() (float64, bool, error)) (float64, bool) {
	value, ok, err := query()
	if err != nil {
		metrics.ObserveRuleSkip(check)
		d.logger.Warn("anomaly check skipped",
			slog.String("service", service),
			slog.String("check", check),
			slog.Any("error", err))
		return 0, false
	}
	return value, ok
}

// withOffset rewrites a rate expression so its range selector evaluates
// one baselineOffset in the past.
func withOffset(expr string) string {
	marker := "[" + ratingWindow + "]"
	return strings.ReplaceAll(expr, marker, marker+" offset "+baselineOffset)
}
