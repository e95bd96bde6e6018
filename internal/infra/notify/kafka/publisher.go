// Package kafka publishes finding transition events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/leakwatch/leakwatch/internal/domain/findings"
	"github.com/leakwatch/leakwatch/pkg/common/logger"
)

// Config contains the settings for the transition event publisher.
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

var _ findings.TransitionPublisher = (*Publisher)(nil)

// Publisher delivers transition events to Kafka. Events for one repository
// share a partition key so consumers see that repository's transitions in
// order. Delivery is fire-and-forget from the reconciler's perspective: a
// failure is reported but never rolls back a committed pass.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string

	logger *logger.Logger
	tracer trace.Tracer
}

// NewPublisher wraps an existing producer. Most callers use ConnectPublisher
// instead.
func NewPublisher(producer sarama.SyncProducer, topic string, logger *logger.Logger, tracer trace.Tracer) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "kafka_publisher"),
		tracer:   tracer,
	}
}

// ConnectPublisher establishes a producer connection with exponential
// backoff, tolerating broker unavailability during startup.
func ConnectPublisher(cfg *Config, logger *logger.Logger, tracer trace.Tracer) (*Publisher, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V3_6_0_0

	var producer sarama.SyncProducer

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	operation := func() error {
		var err error
		producer, err = sarama.NewSyncProducer(cfg.Brokers, config)
		if err != nil {
			return fmt.Errorf("creating producer: %w", err)
		}
		return nil
	}
	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return NewPublisher(producer, cfg.Topic, logger, tracer), nil
}

// Publish sends the batch of transition events. Encoding failures skip the
// event; broker failures abort and report the remainder undelivered.
func (p *Publisher) Publish(ctx context.Context, events []findings.TransitionEvent) error {
	_, span := p.tracer.Start(ctx, "kafka_publisher.publish",
		trace.WithAttributes(
			attribute.String("topic", p.topic),
			attribute.Int("event_count", len(events)),
		),
	)
	defer span.End()

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			p.logger.Error(ctx, "Failed to encode transition event",
				"finding_id", evt.FindingID,
				"error", err.Error(),
			)
			continue
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(evt.RepositoryID.String()),
			Value: sarama.ByteEncoder(payload),
		})
	}
	if len(msgs) == 0 {
		return nil
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish transition events")
		return fmt.Errorf("publishing %d transition events: %w", len(msgs), err)
	}
	span.SetStatus(codes.Ok, "events published")
	return nil
}

// Close shuts down the underlying producer.
func (p *Publisher) Close() error { return p.producer.Close() }
