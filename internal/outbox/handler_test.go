package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/NordCoder/Authus/internal/domain/outbox"
	"github.com/NordCoder/Authus/internal/domain/session"
	"github.com/NordCoder/Authus/internal/obs/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalHandler_RetriesTransientPublishErrors(t *testing.T) {
	pub := &fakePublisher{fails: 2, err: errors.New("leader not available")}
	h, err := MakeGlobalOutboxHandler(pub, fastPolicy(3))(outbox.KindSessionRotated)
	require.NoError(t, err)

	data, err := json.Marshal(session.Event{Type: session.EventRotated, OwnerID: 3, Previous: "old"})
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), data))
	require.Len(t, pub.got, 1)
	assert.Equal(t, "old", pub.got[0].Previous)
}

func TestGlobalHandler_GivesUp(t *testing.T) {
	boom := errors.New("leader not available")
	pub := &fakePublisher{fails: 5, err: boom}
	h, err := MakeGlobalOutboxHandler(pub, fastPolicy(2))(outbox.KindSessionIssued)
	require.NoError(t, err)

	data, _ := json.Marshal(session.Event{Type: session.EventIssued})
	assert.ErrorIs(t, h(context.Background(), data), boom)
	assert.Equal(t, 3, pub.fails)
}

func TestGlobalHandler_PermanentErrorsAreNotRetried(t *testing.T) {
	pub := &fakePublisher{}
	h, err := MakeGlobalOutboxHandler(pub, fastPolicy(5))(outbox.KindSessionIssued)
	require.NoError(t, err)

	data, _ := json.Marshal(session.Event{Type: session.EventRevoked})
	err = h(context.Background(), data)
	assert.ErrorIs(t, err, retry.ErrPermanent)
	assert.Empty(t, pub.got)

	err = h(context.Background(), []byte("not json"))
	assert.ErrorIs(t, err, retry.ErrPermanent)
}

func TestGlobalHandler_UnknownKind(t *testing.T) {
	_, err := MakeGlobalOutboxHandler(&fakePublisher{}, fastPolicy(1))(outbox.Kind(99))
	assert.Error(t, err)
}
