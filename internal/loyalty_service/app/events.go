package app

import (
	"context"
	"encoding/json"
	"log/slog"
)

// EventPublisher is satisfied by messagebroker.NATSClient.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// publishEvent sends v as JSON after a unit of work has committed. Failures are logged
// and never reported to the caller, since the state change is already durable.
func publishEvent(ctx context.Context, pub EventPublisher, logger *slog.Logger, subject string, v any) {
	if pub == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := pub.Publish(ctx, subject, payload); err != nil {
		eventPublishFailuresTotal.WithLabelValues(subject).Inc()
		logger.WarnContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
