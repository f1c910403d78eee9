package models

import "time"

// Severity captures incident and violation impact levels.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ViolationType enumerates SLO rule categories.
type ViolationType string

const (
	ViolationAvailability ViolationType = "availability"
	ViolationLatencyP95   ViolationType = "latency_p95"
	ViolationErrorRate    ViolationType = "error_rate"
)

// AnomalyType enumerates baseline deviation categories.
type AnomalyType string

const (
	AnomalyTrafficSpike AnomalyType = "traffic_spike"
	AnomalyErrorSpike   AnomalyType = "error_spike"
)

// HealthResult is the outcome of a single health probe. It lives for one
// monitoring pass only.
type HealthResult struct {
	Service    string `json:"service"`
	Healthy    bool   `json:"healthy"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Violation records a single SLO rule breach observed during a pass.
type Violation struct {
	Type     ViolationType `json:"type"`
	Current  float64       `json:"current"`
	Target   float64       `json:"target"`
	Severity Severity      `json:"severity"`
	Message  string        `json:"message"`
}

// Anomaly records a rate significantly above its hour-ago baseline.
type Anomaly struct {
	Type       AnomalyType `json:"type"`
	Current    float64     `json:"current"`
	Historical float64     `json:"historical"`
	Ratio      float64     `json:"ratio"`
	Message    string      `json:"message"`
}

// Incident is the tracked lifecycle record for a degraded service. The
// violations and anomalies are a snapshot taken at creation time.
type Incident struct {
	ID          string        `json:"id"`
	Service     string        `json:"service"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Severity    Severity      `json:"severity"`
	Violations  []Violation   `json:"violations,omitempty"`
	Anomalies   []Anomaly     `json:"anomalies,omitempty"`
	Health      HealthResult  `json:"health"`
	CreatedAt   time.Time     `json:"created_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// Resolved reports whether the incident has been closed.
func (i *Incident) Resolved() bool {
	return i.ResolvedAt != nil
}
