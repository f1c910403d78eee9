package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/mirador-sentinel/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func acceptedResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusAccepted,
		Body:       io.NopCloser(bytes.NewReader(nil)),
		Header:     make(http.Header),
	}
}

func TestPagerDutyTriggerEvent(t *testing.T) {
	var captured pagerDutyEvent
	sink := NewPagerDutySink("https://events.example.com/v2/enqueue", "routing-key-1", time.Second)
	sink.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return acceptedResponse(), nil
	})}

	incident := testIncident()
	incident.Violations = []models.Violation{{
		Type:     models.ViolationErrorRate,
		Severity: models.SeverityCritical,
		Message:  "error rate 2.50% above 1.00% ceiling",
	}}

	if err := sink.Notify(context.Background(), incident, ActionCreated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.EventAction != "trigger" {
		t.Fatalf("unexpected action: %s", captured.EventAction)
	}
	if captured.DedupKey != incident.ID {
		t.Fatalf("dedup key must be the incident id, got %s", captured.DedupKey)
	}
	if captured.RoutingKey != "routing-key-1" {
		t.Fatalf("unexpected routing key: %s", captured.RoutingKey)
	}
	if captured.Payload == nil {
		t.Fatal("trigger event requires a payload")
	}
	if captured.Payload.Source != "order-service" || captured.Payload.Severity != "critical" {
		t.Fatalf("unexpected payload: %+v", captured.Payload)
	}
}

func TestPagerDutyResolveEventSharesDedupKey(t *testing.T) {
	var captured pagerDutyEvent
	sink := NewPagerDutySink("https://events.example.com/v2/enqueue", "routing-key-1", time.Second)
	sink.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return acceptedResponse(), nil
	})}

	incident := testIncident()
	if err := sink.Notify(context.Background(), incident, ActionResolved); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.EventAction != "resolve" {
		t.Fatalf("unexpected action: %s", captured.EventAction)
	}
	if captured.DedupKey != incident.ID {
		t.Fatalf("resolve must reuse the trigger dedup key, got %s", captured.DedupKey)
	}
}

func TestPagerDutyRejectionIsTypedError(t *testing.T) {
	sink := NewPagerDutySink("https://events.example.com/v2/enqueue", "bad-key", time.Second)
	sink.httpClient = &http.Client{Transport: roundTripFunc(func(_ *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Status:     "400 Bad Request",
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     make(http.Header),
		}, nil
	})}

	err := sink.Notify(context.Background(), testIncident(), ActionCreated)
	if err == nil {
		t.Fatal("expected an error")
	}
	var sinkErr *Error
	if !errors.As(err, &sinkErr) || sinkErr.Sink != "pagerduty" {
		t.Fatalf("expected a pagerduty sink error, got %v", err)
	}
}

func TestSlackMessageFormatting(t *testing.T) {
	incident := testIncident()
	incident.Violations = []models.Violation{{
		Type:     models.ViolationLatencyP95,
		Severity: models.SeverityWarning,
		Message:  "p95 latency 700ms exceeds 500ms ceiling",
	}}
	incident.Anomalies = []models.Anomaly{{
		Type:    models.AnomalyTrafficSpike,
		Message: "request rate 21.0/s is 2.1x the hour-ago baseline 10.0/s",
	}}

	text := formatMessage(incident, ActionCreated)
	for _, want := range []string{
		"CRITICAL",
		"order-service - Service Down",
		incident.ID,
		"p95 latency 700ms",
		"traffic_spike",
		"ECONNREFUSED",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q:\n%s", want, text)
		}
	}
}

func TestSlackResolvedMessageIncludesDuration(t *testing.T) {
	incident := testIncident()
	incident.Duration = 5*time.Minute + 32*time.Second

	text := formatMessage(incident, ActionResolved)
	if !strings.Contains(text, "Resolved") || !strings.Contains(text, "5m32s") {
		t.Fatalf("unexpected resolved message: %s", text)
	}
}

func TestSlackPostsToWebhook(t *testing.T) {
	posted := false
	sink := NewSlackSink("https://hooks.example.com/services/T000/B000/XXX", time.Second)
	sink.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		posted = true
		if req.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", req.Method)
		}
		var payload map[string]string
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["text"] == "" {
			t.Fatal("expected a text payload")
		}
		return acceptedResponse(), nil
	})}

	if err := sink.Notify(context.Background(), testIncident(), ActionCreated); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !posted {
		t.Fatal("expected the webhook to be called")
	}
}
