package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-sentinel/internal/metrics"
	"github.com/miradorstack/mirador-sentinel/internal/models"
)

// Action distinguishes incident lifecycle notifications.
type Action string

const (
	ActionCreated  Action = "created"
	ActionResolved Action = "resolved"
)

// Sink delivers an incident notification to one external system.
type Sink interface {
	Name() string
	Notify(ctx context.Context, incident models.Incident, action Action) error
}

// Error reports a delivery failure for a named sink.
type Error struct {
	Sink string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Dispatcher fans an incident out to every configured sink. Each sink is
// attempted on every dispatch; one sink failing never prevents the others
// from being tried, and failures are logged rather than returned. Failed
// deliveries are not retried within the same pass.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher constructs a dispatcher over the provided sinks.
func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger}
}

// Dispatch delivers the incident to all sinks, isolating failures.
func (d *Dispatcher) Dispatch(ctx context.Context, incident models.Incident, action Action) {
	for _, sink := range d.sinks {
		if err := sink.Notify(ctx, incident, action); err != nil {
			metrics.ObserveNotificationFailure(sink.Name())
			d.logger.Error("notification delivery failed",
				slog.String("sink", sink.Name()),
				slog.String("incident_id", incident.ID),
				slog.String("service", incident.Service),
				slog.String("action", string(action)),
				slog.Any("error", err))
		}
	}
}
