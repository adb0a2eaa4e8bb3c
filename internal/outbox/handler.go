package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/NordCoder/Authus/internal/domain/outbox"
	"github.com/NordCoder/Authus/internal/domain/session"
	"github.com/NordCoder/Authus/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Publisher delivers a session event downstream.
type Publisher interface {
	Publish(ctx context.Context, ev session.Event) error
}

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

var kindEvents = map[outbox.Kind]session.EventType{
	outbox.KindSessionIssued:  session.EventIssued,
	outbox.KindSessionRotated: session.EventRotated,
	outbox.KindSessionRevoked: session.EventRevoked,
}

func instrument(kind outbox.Kind, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind.String()
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle")
		defer span.End()
		span.SetAttributes(attribute.String("outbox.kind", kind.String()))

		start := time.Now()
		err := retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		outboxHandlerLatency.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			outboxHandlerErrors.WithLabelValues(kind.String()).Inc()
		}
		return err
	}
}

// MakeGlobalOutboxHandler routes every session kind to pub.
func MakeGlobalOutboxHandler(pub Publisher, pol retry.Policy) outbox.GlobalHandler {
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		want, ok := kindEvents[kind]
		if !ok {
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
		base := func(ctx context.Context, data []byte) error {
			var ev session.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				return retry.Permanent(fmt.Errorf("unmarshal %s payload: %w", kind, err))
			}
			if ev.Type != want {
				return retry.Permanent(fmt.Errorf("%s payload carries event type %q", kind, ev.Type))
			}
			return pub.Publish(ctx, ev)
		}
		return instrument(kind, base, pol), nil
	}
}
