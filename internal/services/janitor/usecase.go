package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Authus/internal/domain/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OutboxPurger drops delivered outbox rows.
type OutboxPurger interface {
	PurgeDelivered(ctx context.Context, before time.Time, limit int) (int64, error)
}

// Usecase removes expired refresh tokens, and delivered outbox rows when an
// Outbox is set, in bounded batches so a large backlog never holds locks for
// long.
type Usecase struct {
	Sweeper session.Sweeper
	Outbox  OutboxPurger
	Now     func() time.Time
}

func NewUC(s session.Sweeper, o OutboxPurger) *Usecase {
	return &Usecase{Sweeper: s, Outbox: o, Now: time.Now}
}

// Sweep deletes tokens that expired before now minus grace. It keeps going
// while batches come back full, up to maxBatches, and returns the total
// number of removed rows.
func (u *Usecase) Sweep(ctx context.Context, grace time.Duration, limit, maxBatches int) (int64, error) {
	return u.drain(ctx, "janitor.sweep", u.Sweeper.DeleteExpired, grace, limit, maxBatches)
}

// PurgeOutbox deletes outbox rows delivered more than retention ago. It is a
// no-op without an Outbox.
func (u *Usecase) PurgeOutbox(ctx context.Context, retention time.Duration, limit, maxBatches int) (int64, error) {
	if u.Outbox == nil {
		return 0, nil
	}
	return u.drain(ctx, "janitor.purge_outbox", u.Outbox.PurgeDelivered, retention, limit, maxBatches)
}

func (u *Usecase) drain(
	ctx context.Context,
	op string,
	del func(ctx context.Context, before time.Time, limit int) (int64, error),
	age time.Duration,
	limit, maxBatches int,
) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	if maxBatches <= 0 {
		maxBatches = 1
	}
	before := u.Now().Add(-age)

	tr := otel.Tracer("janitor.uc")
	ctx, span := tr.Start(ctx, op, trace.WithAttributes(
		attribute.Int("batch.limit", limit),
		attribute.String("before", before.UTC().Format(time.RFC3339)),
	))
	defer span.End()

	var total int64
	for i := 0; i < maxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := del(ctx, before, limit)
		if err != nil {
			span.RecordError(err)
			return total, fmt.Errorf("%s (batch %d): %w", op, i+1, err)
		}
		total += n
		if n < int64(limit) {
			break
		}
	}
	span.SetAttributes(attribute.Int64("removed", total))
	return total, nil
}
