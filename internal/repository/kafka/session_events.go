package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NordCoder/Authus/internal/domain/session"
)

// SessionEvents publishes session changes keyed by owner, so the events of one
// user stay ordered within a partition.
type SessionEvents struct {
	p *Producer
}

func NewSessionEvents(p *Producer) *SessionEvents { return &SessionEvents{p: p} }

func (e *SessionEvents) Publish(ctx context.Context, ev session.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	return e.p.PublishJSON(ctx, KeyFromInt64(ev.OwnerID), value, map[string]string{
		"event-type": string(ev.Type),
	})
}
