package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExpoJitter(t *testing.T) {
	b := ExpoJitter{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, b.Next(0))
	assert.Equal(t, 20*time.Millisecond, b.Next(1))
	assert.Equal(t, 40*time.Millisecond, b.Next(2))
	assert.Equal(t, 50*time.Millisecond, b.Next(3))
	assert.Equal(t, 10*time.Millisecond, b.Next(-1))

	j := ExpoJitter{Base: 100 * time.Millisecond, Jitter: 0.2}
	for i := 0; i < 20; i++ {
		d := j.Next(0)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func quick(attempts int) Policy {
	return Policy{Name: "test", Attempts: attempts, Backoff: ExpoJitter{Base: time.Millisecond}}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var seen []int
	p := quick(4)
	p.OnAttempt = func(i int, _ error) { seen = append(seen, i) }

	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	}, p)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{0, 1}, seen)
}

func TestDo_Exhausts(t *testing.T) {
	boom := errors.New("boom")
	var last error
	p := quick(3)
	p.OnExhaust = func(err error) { last = err }

	calls := 0
	err := Do(context.Background(), func() error { calls++; return boom }, p)

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, last, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return Permanent(errors.New("bad payload"))
	}, quick(5))

	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Permanent(nil))
}

func TestDo_NotRetryable(t *testing.T) {
	p := quick(5)
	p.Retryable = func(error) bool { return false }
	calls := 0
	_ = Do(context.Background(), func() error { calls++; return errors.New("x") }, p)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 5, Backoff: ExpoJitter{Base: time.Hour}}

	calls := 0
	err := Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("flaky")
	}, p)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDefaultKafkaPolicy(t *testing.T) {
	p := DefaultKafkaPolicy(zap.NewNop())
	assert.Equal(t, "outbox_kafka", p.Name)
	assert.True(t, p.Retryable(errors.New("leader not available")))
	assert.False(t, p.Retryable(Permanent(errors.New("bad"))))
	assert.False(t, p.Retryable(context.Canceled))
	assert.False(t, p.Retryable(nil))
}
