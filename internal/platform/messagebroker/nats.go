package messagebroker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Message is a received broker message. Every message must be settled with exactly one
// of Ack, Nak or Term.
type Message interface {
	Subject() string
	Data() []byte
	Ack() error
	// Nak asks for redelivery after delay.
	Nak(delay time.Duration) error
	// Term stops redelivery for a message that can never be processed.
	Term() error
}

// Subscription is an active subscription that can be stopped.
type Subscription interface {
	Unsubscribe() error
}

// ConsumerOptions configures a durable consumer.
type ConsumerOptions struct {
	// Durable names the consumer. Instances sharing it split the messages between them.
	Durable    string
	MaxDeliver int
	AckWait    time.Duration
}

// NATSClient is the publish/subscribe surface used by the services.
type NATSClient interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, opts ConsumerOptions, handler func(msg Message)) (Subscription, error)
	Close()
}

// StreamConfig describes the JetStream stream that persists published events.
type StreamConfig struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
}

type jsMessage struct {
	msg jetstream.Msg
}

func (m jsMessage) Subject() string { return m.msg.Subject() }
func (m jsMessage) Data() []byte    { return m.msg.Data() }
func (m jsMessage) Ack() error      { return m.msg.Ack() }
func (m jsMessage) Term() error     { return m.msg.Term() }

func (m jsMessage) Nak(delay time.Duration) error {
	if delay > 0 {
		return m.msg.NakWithDelay(delay)
	}
	return m.msg.Nak()
}

type consumeSubscription struct {
	cc jetstream.ConsumeContext
}

func (s consumeSubscription) Unsubscribe() error {
	s.cc.Stop()
	return nil
}

type natsClient struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream string
	logger *slog.Logger
}

// NewNATSClient connects to NATS with reconnects enabled and makes sure the event
// stream exists.
// natsURL example: "nats://localhost:4222"
func NewNATSClient(ctx context.Context, natsURL, appName string, stream StreamConfig, logger *slog.Logger) (NATSClient, error) {
	logger = logger.With("component", "nats_client")
	nc, err := nats.Connect(natsURL,
		nats.Name(appName),
		nats.Timeout(5*time.Second),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream.Name,
		Subjects: stream.Subjects,
		MaxAge:   stream.MaxAge,
		Storage:  jetstream.FileStorage,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensuring stream %s: %w", stream.Name, err)
	}
	logger.Info("JetStream stream ready", "stream", stream.Name, "subjects", stream.Subjects)

	return &natsClient{conn: nc, js: js, stream: stream.Name, logger: logger}, nil
}

// Publish stores data on the stream and waits for the server's acknowledgement.
func (c *natsClient) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Subscribe attaches handler to a durable consumer filtered on subject. Messages the
// handler does not Ack are redelivered up to opts.MaxDeliver times. Consumption stops
// when ctx is cancelled.
func (c *natsClient) Subscribe(ctx context.Context, subject string, opts ConsumerOptions, handler func(msg Message)) (Subscription, error) {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.stream, jetstream.ConsumerConfig{
		Durable:       opts.Durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       opts.AckWait,
		MaxDeliver:    opts.MaxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("creating consumer %s: %w", opts.Durable, err)
	}

	cc, err := cons.Consume(func(m jetstream.Msg) { handler(jsMessage{msg: m}) },
		jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			if !errors.Is(err, jetstream.ErrNoHeartbeat) {
				c.logger.Warn("Consumer error", "consumer", opts.Durable, "error", err)
			}
		}))
	if err != nil {
		return nil, fmt.Errorf("consuming %s: %w", subject, err)
	}
	c.logger.Info("Subscribed", "subject", subject, "consumer", opts.Durable, "max_deliver", opts.MaxDeliver)

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return consumeSubscription{cc: cc}, nil
}

func (c *natsClient) Close() {
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
	}
}
