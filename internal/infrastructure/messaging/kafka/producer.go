package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/turtacn/FoodSafety-MS-KB/internal/config"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.ErrCodeInternal, "producer closed")

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerMetrics holds producer tallies.
type ProducerMetrics struct {
	EventsSent   atomic.Int64
	EventsFailed atomic.Int64
	BytesSent    atomic.Int64
}

// Producer publishes curation events.  Topics are prefixed with the
// configured topic prefix so several deployments can share a cluster.
type Producer struct {
	writer      WriterInterface
	topicPrefix string
	logger      logging.Logger
	closed      atomic.Bool
	metrics     *ProducerMetrics
}

// NewProducer builds a Producer from the kafka section of the configuration.
func NewProducer(cfg config.KafkaConfig, logger logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "kafka brokers required")
	}

	maxAttempts := cfg.ProducerRetries + 1
	if cfg.ProducerRetries <= 0 {
		maxAttempts = 4
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}

	var requiredAcks kafka.RequiredAcks
	switch cfg.Acks {
	case "none":
		requiredAcks = kafka.RequireNone
	case "one":
		requiredAcks = kafka.RequireOne
	default:
		requiredAcks = kafka.RequireAll
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  maxAttempts,
		BatchTimeout: batchTimeout,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		RequiredAcks: requiredAcks,
	}

	return &Producer{
		writer:      writer,
		topicPrefix: cfg.TopicPrefix,
		logger:      logger,
		metrics:     &ProducerMetrics{},
	}, nil
}

// Publish sends one event envelope to the prefixed topic.  The message is
// keyed on key so related events for one compound land on one partition.
func (p *Producer) Publish(ctx context.Context, topic string, key string, env *EventEnvelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if topic == "" {
		return errors.New(errors.ErrCodeBadRequest, "topic required")
	}
	if env == nil {
		return errors.New(errors.ErrCodeBadRequest, "event envelope required")
	}

	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event envelope")
	}

	msg := kafka.Message{
		Topic: p.topicName(topic),
		Key:   []byte(key),
		Value: value,
		Time:  env.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "source_service", Value: []byte(env.Source)},
			{Key: "schema_version", Value: []byte(env.SchemaVersion)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.EventsFailed.Add(1)
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to publish event")
	}

	p.metrics.EventsSent.Add(1)
	p.metrics.BytesSent.Add(int64(len(value)))
	p.logger.Debug("event published",
		logging.String("topic", p.topicName(topic)),
		logging.String("event_type", env.EventType))
	return nil
}

// PublishCatalogSaved announces a persisted catalog version.
func (p *Producer) PublishCatalogSaved(ctx context.Context, payload CatalogSavedPayload) error {
	env, err := NewEventEnvelope(TopicCatalogSaved, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, TopicCatalogSaved, payload.Version, env)
}

// PublishCompoundPromoted announces an orphan entry resolved to a CAS number.
func (p *Producer) PublishCompoundPromoted(ctx context.Context, payload CompoundPromotedPayload) error {
	env, err := NewEventEnvelope(TopicCompoundPromoted, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, TopicCompoundPromoted, payload.IdentityKey, env)
}

// PublishConflictRaised announces a same-tier identity disagreement.
func (p *Producer) PublishConflictRaised(ctx context.Context, payload ConflictRaisedPayload) error {
	env, err := NewEventEnvelope(TopicConflictRaised, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, TopicConflictRaised, payload.CompoundKey, env)
}

// PublishRunCompleted announces a finished phase run with its counters.
func (p *Producer) PublishRunCompleted(ctx context.Context, payload RunCompletedPayload) error {
	env, err := NewEventEnvelope(TopicRunCompleted, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, TopicRunCompleted, string(payload.RunID), env)
}

// Metrics returns a snapshot of the producer tallies.
func (p *Producer) Metrics() (sent, failed, bytes int64) {
	return p.metrics.EventsSent.Load(), p.metrics.EventsFailed.Load(), p.metrics.BytesSent.Load()
}

// Close flushes and closes the underlying writer.  Safe to call twice.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed",
		logging.Int64("events_sent", p.metrics.EventsSent.Load()),
		logging.Int64("events_failed", p.metrics.EventsFailed.Load()))
	return err
}

func (p *Producer) topicName(base string) string {
	if p.topicPrefix == "" {
		return base
	}
	return p.topicPrefix + "." + base
}
