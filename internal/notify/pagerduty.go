package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// PagerDutySink delivers incidents to a PagerDuty Events v2 compatible
// endpoint. The incident id doubles as the dedup key so the paging backend
// auto-resolves on the matching resolve event.
type PagerDutySink struct {
	endpoint   string
	routingKey string
	httpClient *http.Client
}

// NewPagerDutySink constructs the paging sink.
func NewPagerDutySink(endpoint, routingKey string, timeout time.Duration) *PagerDutySink {
	if endpoint == "" {
		endpoint = "https://events.pagerduty.com/v2/enqueue"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PagerDutySink{
		endpoint:   endpoint,
		routingKey: routingKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the sink in logs and metrics.
func (s *PagerDutySink) Name() string { return "pagerduty" }

type pagerDutyEvent struct {
	RoutingKey  string            `json:"routing_key"`
	EventAction string            `json:"event_action"`
	DedupKey    string            `json:"dedup_key"`
	Payload     *pagerDutyPayload `json:"payload,omitempty"`
}

type pagerDutyPayload struct {
	Summary       string         `json:"summary"`
	Source        string         `json:"source"`
	Severity      string         `json:"severity"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details,omitempty"`
}

// Notify sends a trigger or resolve event for the incident.
func (s *PagerDutySink) Notify(ctx context.Context, incident models.Incident, action Action) error {
	event := pagerDutyEvent{
		RoutingKey: s.routingKey,
		DedupKey:   incident.ID,
	}

	switch action {
	case ActionResolved:
		event.EventAction = "resolve"
	default:
		event.EventAction = "trigger"
		event.Payload = &pagerDutyPayload{
			Summary:   incident.Title,
			Source:    incident.Service,
			Severity:  string(incident.Severity),
			Timestamp: incident.CreatedAt.Format(time.RFC3339),
			CustomDetails: map[string]any{
				"description": incident.Description,
				"violations":  incident.Violations,
				"anomalies":   incident.Anomalies,
			},
		}
	}

	body, err := json.Marshal(event)
	if err != nil {
		return &Error{Sink: s.Name(), Err: fmt.Errorf("marshal event: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return &Error{Sink: s.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &Error{Sink: s.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Sink: s.Name(), Err: fmt.Errorf("events endpoint returned %s", resp.Status)}
	}
	return nil
}
