package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rewardhub/loyalty_services/internal/platform/messagebroker"
)

const processTimeout = 10 * time.Second

// Subscriber is satisfied by messagebroker.NATSClient.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, opts messagebroker.ConsumerOptions, handler func(msg messagebroker.Message)) (messagebroker.Subscription, error)
}

// EventConsumer feeds loyalty events from a durable JetStream consumer into the processor.
// A message is acked only once its notifications are stored.
type EventConsumer struct {
	client     Subscriber
	processor  *NotificationProcessor
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewEventConsumer(client Subscriber, processor *NotificationProcessor, retryDelay time.Duration, logger *slog.Logger) *EventConsumer {
	return &EventConsumer{
		client:     client,
		processor:  processor,
		retryDelay: retryDelay,
		logger:     logger.With("component", "event_consumer"),
	}
}

// Run attaches to the durable consumer and blocks until ctx is cancelled. The broker
// client stops consumption on cancellation.
func (c *EventConsumer) Run(ctx context.Context, subject string, opts messagebroker.ConsumerOptions) error {
	c.logger.InfoContext(ctx, "Starting JetStream consumer", "subject", subject, "consumer", opts.Durable)
	if _, err := c.client.Subscribe(ctx, subject, opts, c.handler(ctx)); err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	<-ctx.Done()
	c.logger.Info("JetStream consumer ended", "subject", subject)
	return nil
}

func (c *EventConsumer) handler(ctx context.Context) func(msg messagebroker.Message) {
	return func(msg messagebroker.Message) {
		subject := msg.Subject()
		eventsReceivedTotal.WithLabelValues(subject).Inc()
		start := time.Now()
		defer func() {
			eventProcessingDurationHist.WithLabelValues(subject).Observe(time.Since(start).Seconds())
		}()

		// Messages still in flight when consumption stops are finished.
		procCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), processTimeout)
		defer cancel()

		err := c.processor.Process(procCtx, subject, msg.Data())
		switch {
		case err == nil:
			c.settle(procCtx, subject, "ack", msg.Ack())
			c.logger.DebugContext(procCtx, "Processed event", "subject", subject)
		case errors.Is(err, ErrUndecodable):
			c.logger.ErrorContext(procCtx, "Dropping undecodable event", "subject", subject, "error", err, "data_len", len(msg.Data()))
			c.settle(procCtx, subject, "term", msg.Term())
		default:
			// Redelivery is safe: notifications are deduplicated on insert.
			c.logger.ErrorContext(procCtx, "Failed to process event, requesting redelivery", "subject", subject, "error", err, "retry_in", c.retryDelay)
			c.settle(procCtx, subject, "nak", msg.Nak(c.retryDelay))
		}
	}
}

func (c *EventConsumer) settle(ctx context.Context, subject, action string, err error) {
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to settle message", "subject", subject, "action", action, "error", err)
	}
}
