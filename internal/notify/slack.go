package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// SlackSink posts incident notifications to a Slack incoming webhook.
type SlackSink struct {
	webhookURL string
	httpClient *http.Client
}

// NewSlackSink constructs the chat sink.
func NewSlackSink(webhookURL string, timeout time.Duration) *SlackSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SlackSink{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the sink in logs and metrics.
func (s *SlackSink) Name() string { return "slack" }

// Notify posts a readable message describing the lifecycle transition.
func (s *SlackSink) Notify(ctx context.Context, incident models.Incident, action Action) error {
	payload := map[string]string{"text": formatMessage(incident, action)}
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Sink: s.Name(), Err: fmt.Errorf("marshal message: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
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
		return &Error{Sink: s.Name(), Err: fmt.Errorf("webhook returned %s", resp.Status)}
	}
	return nil
}

func formatMessage(incident models.Incident, action Action) string {
	var b strings.Builder

	if action == ActionResolved {
		fmt.Fprintf(&b, ":white_check_mark: Resolved: %s (%s)", incident.Title, incident.ID)
		if incident.Duration > 0 {
			fmt.Fprintf(&b, " after %s", incident.Duration.Round(time.Second))
		}
		return b.String()
	}

	fmt.Fprintf(&b, ":rotating_light: [%s] %s (%s)\n", strings.ToUpper(string(incident.Severity)), incident.Title, incident.ID)
	fmt.Fprintf(&b, "service: %s | opened: %s", incident.Service, incident.CreatedAt.Format(time.RFC3339))

	for _, v := range incident.Violations {
		fmt.Fprintf(&b, "\n• [%s] %s", v.Severity, v.Message)
	}
	for _, a := range incident.Anomalies {
		fmt.Fprintf(&b, "\n• [%s] %s", a.Type, a.Message)
	}
	if incident.Health.Error != "" {
		fmt.Fprintf(&b, "\n• health: %s", incident.Health.Error)
	}

	return b.String()
}
