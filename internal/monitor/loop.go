package monitor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/miradorstack/mirador-sentinel/internal/config"
	"github.com/miradorstack/mirador-sentinel/internal/metrics"
	"github.com/miradorstack/mirador-sentinel/internal/models"
	"github.com/miradorstack/mirador-sentinel/internal/notify"
	"github.com/miradorstack/mirador-sentinel/internal/tracker"
	"github.com/miradorstack/mirador-sentinel/internal/utils"
)

// HealthChecker probes a service health endpoint.
type HealthChecker interface {
	Check(ctx context.Context, svc config.ServiceConfig) models.HealthResult
}

// Evaluator produces SLO violations for a service.
type Evaluator interface {
	Evaluate(ctx context.Context, svc config.ServiceConfig) []models.Violation
}

// Detector produces baseline anomalies for a service.
type Detector interface {
	Detect(ctx context.Context, svc config.ServiceConfig) []models.Anomaly
}

// Notifier fans incident transitions out to the configured sinks.
type Notifier interface {
	Dispatch(ctx context.Context, incident models.Incident, action notify.Action)
}

// Loop drives the periodic evaluation of all configured services. One
// pass never overlaps another; an overdue pass is skipped, not queued.
type Loop struct {
	cfg       config.MonitorConfig
	services  []config.ServiceConfig
	checker   HealthChecker
	evaluator Evaluator
	detector  Detector
	tracker   *tracker.Tracker
	notifier  Notifier
	logger    *slog.Logger
	latencies *utils.LatencyTracker

	// tickMu is the single-flight guard for passes.
	tickMu sync.Mutex
}

// New constructs the monitoring loop.
func New(
	cfg config.MonitorConfig,
	services []config.ServiceConfig,
	checker HealthChecker,
	evaluator Evaluator,
	detector Detector,
	incidentTracker *tracker.Tracker,
	notifier Notifier,
	logger *slog.Logger,
) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:       cfg,
		services:  services,
		checker:   checker,
		evaluator: evaluator,
		detector:  detector,
		tracker:   incidentTracker,
		notifier:  notifier,
		logger:    logger,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Run executes passes at the configured interval until the context is
// cancelled. The first pass starts immediately.
func (l *Loop) Run(ctx context.Context) {
	interval := l.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	l.logger.Info("monitor loop started",
		slog.Duration("interval", interval),
		slog.Int("services", len(l.services)))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("monitor loop stopped",
				slog.Int("open_incidents", l.tracker.OpenCount()))
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick performs one pass over all services. The guard makes overlap
// impossible even if a pass outruns the interval.
func (l *Loop) tick(ctx context.Context) {
	if !l.tickMu.TryLock() {
		metrics.ObserveTickSkipped()
		l.logger.Warn("previous pass still running, skipping this one")
		return
	}
	defer l.tickMu.Unlock()

	if ctx.Err() != nil {
		return
	}

	start := time.Now()

	maxConcurrent := l.cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	sem := make(chan struct{}, maxConcurrent)

	var wg sync.WaitGroup
	for _, svc := range l.services {
		wg.Add(1)
		sem <- struct{}{}
		go func(svc config.ServiceConfig) {
			defer wg.Done()
			defer func() { <-sem }()
			l.checkService(ctx, svc)
		}(svc)
	}
	wg.Wait()

	duration := time.Since(start)
	metrics.ObserveTick(duration)
	metrics.SetOpenIncidents(l.tracker.OpenCount())
	l.latencies.Observe(duration)
	if count := l.latencies.Count(); count >= 20 && count%20 == 0 {
		l.logger.Info("pass latency",
			slog.Duration("p95", l.latencies.Percentile(95)),
			slog.Int("samples", count))
	}
}

// checkService runs the three independent checks for one service and
// feeds the aggregate to the tracker. A failure in any check degrades
// that check only; the service decision still happens.
func (l *Loop) checkService(ctx context.Context, svc config.ServiceConfig) {
	var (
		health     models.HealthResult
		violations []models.Violation
		anomalies  []models.Anomaly
	)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		health = l.checker.Check(ctx, svc)
	}()
	go func() {
		defer wg.Done()
		violations = l.evaluator.Evaluate(ctx, svc)
	}()
	go func() {
		defer wg.Done()
		anomalies = l.detector.Detect(ctx, svc)
	}()
	wg.Wait()

	l.apply(ctx, svc, health, violations, anomalies)
}

// apply implements the incident decision policy: create when unhealthy or
// violating, resolve when healthy and clean. Anomalies annotate incidents
// but never gate resolution.
func (l *Loop) apply(ctx context.Context, svc config.ServiceConfig, health models.HealthResult, violations []models.Violation, anomalies []models.Anomaly) {
	degraded := !health.Healthy || len(violations) > 0

	if !degraded {
		if incident := l.tracker.Resolve(svc.Name); incident != nil {
			metrics.ObserveIncident(metrics.ActionResolved)
			l.logger.Info("incident resolved",
				slog.String("incident_id", incident.ID),
				slog.String("service", incident.Service),
				slog.Duration("duration", incident.Duration))
			l.notifier.Dispatch(ctx, *incident, notify.ActionResolved)
		}
		return
	}

	details := buildDetails(svc, health, violations, anomalies)
	if incident := l.tracker.Create(svc.Name, details); incident != nil {
		metrics.ObserveIncident(metrics.ActionCreated)
		l.logger.Info("incident created",
			slog.String("incident_id", incident.ID),
			slog.String("service", incident.Service),
			slog.String("severity", string(incident.Severity)),
			slog.Int("violations", len(violations)),
			slog.Int("anomalies", len(anomalies)))
		l.notifier.Dispatch(ctx, *incident, notify.ActionCreated)
	}
}

func buildDetails(svc config.ServiceConfig, health models.HealthResult, violations []models.Violation, anomalies []models.Anomaly) tracker.Details {
	severity := models.SeverityWarning
	if !health.Healthy {
		severity = models.SeverityCritical
	}
	for _, v := range violations {
		if v.Severity == models.SeverityCritical {
			severity = models.SeverityCritical
			break
		}
	}

	title := svc.Name + " - SLO Violation"
	if !health.Healthy {
		title = svc.Name + " - Service Down"
	}

	var lines []string
	if !health.Healthy && health.Error != "" {
		lines = append(lines, "health: "+health.Error)
	}
	for _, v := range violations {
		lines = append(lines, v.Message)
	}
	for _, a := range anomalies {
		lines = append(lines, a.Message)
	}

	return tracker.Details{
		Title:       title,
		Description: strings.Join(lines, "\n"),
		Severity:    severity,
		Health:      health,
		Violations:  violations,
		Anomalies:   anomalies,
	}
}
