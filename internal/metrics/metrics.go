package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// ActionCreated labels incident creation events.
	ActionCreated = "created"
	// ActionResolved labels incident resolution events.
	ActionResolved = "resolved"
)

var (
	ticksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "ticks_total",
			Help:      "Total number of completed monitoring passes.",
		},
	)

	ticksSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "ticks_skipped_total",
			Help:      "Monitoring passes skipped because the previous pass was still running.",
		},
	)

	tickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentinel",
			Name:      "tick_seconds",
			Help:      "Monitoring pass latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)

	ruleSkipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "rule_skips_total",
			Help:      "Evaluation rules skipped due to metrics backend failures or empty results.",
		},
		[]string{"rule"},
	)

	incidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "incidents_total",
			Help:      "Incident lifecycle transitions, partitioned by action.",
		},
		[]string{"action"},
	)

	openIncidents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "open_incidents",
			Help:      "Number of currently open incidents.",
		},
	)

	notificationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "notification_failures_total",
			Help:      "Failed notification deliveries, partitioned by sink.",
		},
		[]string{"sink"},
	)
)

// Register attaches sentinel collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		ticksTotal,
		ticksSkippedTotal,
		tickDurationSeconds,
		ruleSkipsTotal,
		incidentsTotal,
		openIncidents,
		notificationFailuresTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveTick records a completed monitoring pass and its duration.
func ObserveTick(duration time.Duration) {
	ticksTotal.Inc()
	if duration < 0 {
		duration = 0
	}
	tickDurationSeconds.Observe(duration.Seconds())
}

// ObserveTickSkipped counts a pass skipped by the single-flight guard.
func ObserveTickSkipped() {
	ticksSkippedTotal.Inc()
}

// ObserveRuleSkip counts an evaluation rule skipped for the given reason label.
func ObserveRuleSkip(rule string) {
	ruleSkipsTotal.WithLabelValues(rule).Inc()
}

// ObserveIncident counts an incident lifecycle transition.
func ObserveIncident(action string) {
	incidentsTotal.WithLabelValues(action).Inc()
}

// SetOpenIncidents updates the open incident gauge.
func SetOpenIncidents(count int) {
	openIncidents.Set(float64(count))
}

// ObserveNotificationFailure counts a failed delivery for the named sink.
func ObserveNotificationFailure(sink string) {
	notificationFailuresTotal.WithLabelValues(sink).Inc()
}
