package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/NordCoder/Authus/internal/domain/session"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestSessionEventsPublish(t *testing.T) {
	otel.SetTracerProvider(sdktrace.NewTracerProvider())
	otel.SetTextMapPropagator(propagation.TraceContext{})

	w := &captureWriter{}
	ev := NewSessionEvents(NewProducerWithWriter(w, "authus.sessions", zap.NewNop()))

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx, span := otel.Tracer("test").Start(context.Background(), "parent")
	err := ev.Publish(ctx, session.Event{
		Type:        session.EventRotated,
		OwnerID:     42,
		Reason:      "rotate",
		Fingerprint: "abcd1234",
		Previous:    "0000ffff",
		At:          at,
	})
	span.End()
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, "42", string(m.Key))
	assert.Equal(t, "session.rotated", header(m, "event-type"))
	assert.Equal(t, "application/json", header(m, "content-type"))
	assert.Contains(t, header(m, "traceparent"), span.SpanContext().TraceID().String())

	var got session.Event
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, int64(42), got.OwnerID)
	assert.Equal(t, "0000ffff", got.Previous)
	assert.Equal(t, at, got.At)
}

func TestPublishWriteError(t *testing.T) {
	w := &captureWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, "t", nil)
	err := p.PublishJSON(context.Background(), []byte("k"), []byte("{}"), nil)
	assert.EqualError(t, err, "broker down")
}
