package kafka

import (
	"context"
	"encoding/json"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FoodSafety-MS-KB/internal/config"
	"github.com/turtacn/FoodSafety-MS-KB/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FoodSafety-MS-KB/pkg/errors"
)

type mockKafkaWriter struct {
	writeFunc func(ctx context.Context, msgs ...kafkago.Message) error
	closeFunc func() error
	closed    int
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, msgs...)
	}
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed++
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func newTestProducer(w WriterInterface, prefix string) *Producer {
	return &Producer{
		writer:      w,
		topicPrefix: prefix,
		logger:      logging.NewNopLogger(),
		metrics:     &ProducerMetrics{},
	}
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{}, logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestPublishCompoundPromoted_TopicPrefixAndHeaders(t *testing.T) {
	var captured []kafkago.Message
	w := &mockKafkaWriter{writeFunc: func(ctx context.Context, msgs ...kafkago.Message) error {
		captured = append(captured, msgs...)
		return nil
	}}
	p := newTestProducer(w, "mskb.prod")

	err := p.PublishCompoundPromoted(context.Background(), CompoundPromotedPayload{
		IdentityKey:   "50-00-0",
		CASNumber:     "50-00-0",
		PreferredName: "Formaldehyde",
		Source:        "api",
	})
	require.NoError(t, err)
	require.Len(t, captured, 1)

	msg := captured[0]
	assert.Equal(t, "mskb.prod.compound.promoted", msg.Topic)
	assert.Equal(t, []byte("50-00-0"), msg.Key)

	var env EventEnvelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, TopicCompoundPromoted, env.EventType)
	assert.Equal(t, "v1", env.SchemaVersion)
	assert.NotEmpty(t, env.EventID)

	var payload CompoundPromotedPayload
	require.NoError(t, env.DecodePayload(&payload))
	assert.Equal(t, "Formaldehyde", payload.PreferredName)

	headerKeys := make(map[string]string)
	for _, h := range msg.Headers {
		headerKeys[h.Key] = string(h.Value)
	}
	assert.Equal(t, TopicCompoundPromoted, headerKeys["event_type"])
	assert.Equal(t, "mskb-curation", headerKeys["source_service"])
}

func TestPublish_NoPrefixKeepsBaseTopic(t *testing.T) {
	var captured []kafkago.Message
	w := &mockKafkaWriter{writeFunc: func(ctx context.Context, msgs ...kafkago.Message) error {
		captured = append(captured, msgs...)
		return nil
	}}
	p := newTestProducer(w, "")

	err := p.PublishCatalogSaved(context.Background(), CatalogSavedPayload{Version: "2026-08"})
	require.NoError(t, err)
	require.Len(t, captured, 1)
	assert.Equal(t, TopicCatalogSaved, captured[0].Topic)
	assert.Equal(t, []byte("2026-08"), captured[0].Key)
}

func TestPublish_WriteFailureCounted(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(ctx context.Context, msgs ...kafkago.Message) error {
		return errors.New(errors.ErrCodeExternalService, "broker unavailable")
	}}
	p := newTestProducer(w, "")

	err := p.PublishConflictRaised(context.Background(), ConflictRaisedPayload{
		CompoundKey:     "xylene",
		Field:           "cas_number",
		CompetingValues: []string{"108-38-3", "95-47-6"},
	})
	require.Error(t, err)

	sent, failed, _ := p.Metrics()
	assert.Equal(t, int64(0), sent)
	assert.Equal(t, int64(1), failed)
}

func TestPublish_MetricsAccumulate(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w, "")

	require.NoError(t, p.PublishCatalogSaved(context.Background(), CatalogSavedPayload{Version: "v1"}))
	require.NoError(t, p.PublishCatalogSaved(context.Background(), CatalogSavedPayload{Version: "v2"}))

	sent, failed, bytes := p.Metrics()
	assert.Equal(t, int64(2), sent)
	assert.Equal(t, int64(0), failed)
	assert.Positive(t, bytes)
}

func TestPublish_AfterCloseRejected(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w, "")

	require.NoError(t, p.Close())
	err := p.PublishCatalogSaved(context.Background(), CatalogSavedPayload{Version: "v1"})
	assert.ErrorIs(t, err, ErrProducerClosed)
}

func TestClose_Idempotent(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w, "")

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)
}

func TestPublish_RejectsEmptyTopicAndNilEnvelope(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{}, "")

	env, err := NewEventEnvelope(TopicRunCompleted, RunCompletedPayload{Phase: "fuse"})
	require.NoError(t, err)

	assert.Error(t, p.Publish(context.Background(), "", "k", env))
	assert.Error(t, p.Publish(context.Background(), TopicRunCompleted, "k", nil))
}

func TestEventEnvelope_DecodeEmptyPayloadIsNoop(t *testing.T) {
	env := &EventEnvelope{Payload: nil}
	var payload RunCompletedPayload
	assert.NoError(t, env.DecodePayload(&payload))
	assert.Empty(t, payload.Phase)
}
