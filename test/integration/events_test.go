//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/NordCoder/Authus/internal/domain/session"
	kafkaRepo "github.com/NordCoder/Authus/internal/repository/kafka"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSessionEventsRoundTrip(t *testing.T) {
	c := LoadCfg()
	WaitTCP(t, "kafka", c.KafkaBootstrap, 60*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	require.NoError(t, kafkaRepo.EnsureTopic(ctx, []string{c.KafkaBootstrap}, kafkaRepo.TopicSpec{
		Name: c.Topic, NumPartitions: 1, ReplicationFactor: 1, MaxWait: 20 * time.Second,
	}, zap.NewNop()))

	producer := kafkaRepo.NewProducer(kafkaRepo.Config{Brokers: []string{c.KafkaBootstrap}, Topic: c.Topic}, zap.NewNop())
	defer func() { _ = producer.Close() }()

	fp := uuid.NewString()[:8]
	require.NoError(t, kafkaRepo.NewSessionEvents(producer).Publish(ctx, session.Event{
		Type: session.EventRotated, OwnerID: 42, Reason: "rotate", Fingerprint: fp, At: time.Now().UTC(),
	}))

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{c.KafkaBootstrap},
		GroupID:  "it-" + uuid.NewString(),
		Topic:    c.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer r.Close()

	for {
		msg, err := r.ReadMessage(ctx)
		require.NoError(t, err)

		var ev session.Event
		require.NoError(t, json.Unmarshal(msg.Value, &ev))
		if ev.Fingerprint != fp {
			continue
		}
		assert.Equal(t, session.EventRotated, ev.Type)
		assert.Equal(t, "42", string(msg.Key))
		return
	}
}
