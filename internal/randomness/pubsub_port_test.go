package randomness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/blockchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPort(publisher *flakyPublisher) *PubSubPort {
	p := NewPubSubPort(publisher, nil)
	p.backoff = func() *backoff.Backoff {
		return &backoff.Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond}
	}
	return p
}

func TestPubSubPort_RequestPublishesCommand(t *testing.T) {
	publisher := &flakyPublisher{}
	requestId := uuid.New().String()
	require.NoError(t, fastPort(publisher).Request(context.Background(), requestId, 7))
	require.Len(t, publisher.published, 1)

	cmd := publisher.published[0].(blockchain.Command)
	assert.Equal(t, RequestCommandType, cmd.Type)
	assert.Equal(t, []any{requestId, uint64(7)}, cmd.Payload)
}

func TestPubSubPort_RequestRetriesTransientFailures(t *testing.T) {
	publisher := &flakyPublisher{failures: 2}
	require.NoError(t, fastPort(publisher).Request(context.Background(), "req-1", 7))
	assert.Len(t, publisher.published, 1)
}

func TestPubSubPort_RequestGivesUpAfterWindow(t *testing.T) {
	publisher := &flakyPublisher{failures: 1 << 30}
	p := fastPort(publisher).WithPublishWindow(10 * time.Millisecond)

	err := p.Request(context.Background(), "req-1", 7)
	assert.ErrorIs(t, err, errPublish)
	assert.Empty(t, publisher.published)
}

func TestPubSubPort_WindowBoundsHangingPublish(t *testing.T) {
	assert.Less(t, defaultPublishWindow, 10*time.Second)

	p := fastPort(nil)
	p.publisher = hangingPublisher{}
	p.WithPublishWindow(20 * time.Millisecond)

	started := time.Now()
	err := p.Request(context.Background(), "req-1", 7)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), time.Second)
}

func TestPubSubPort_RequestStopsOnCancel(t *testing.T) {
	publisher := &flakyPublisher{failures: 1 << 30}
	p := fastPort(publisher)
	p.publishWindow = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Request(ctx, "req-1", 7)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPubSubPort_HandleFulfilled(t *testing.T) {
	p := NewPubSubPort(nil, nil)
	ctx := context.Background()

	d := &recordingDeliverer{}
	done := p.handleFulfilled(ctx, d, []byte(`{"requestId":"req-1","randomWords":["4","9"]}`))
	assert.True(t, done)
	require.Equal(t, 1, d.count())
	assert.Equal(t, "req-1", d.deliveries[0].requestId)
	assert.Equal(t, int64(4), d.deliveries[0].words[0].Int64())

	// malformed payloads are dropped, never redelivered
	assert.True(t, p.handleFulfilled(ctx, d, []byte(`{not json`)))
	assert.True(t, p.handleFulfilled(ctx, d, []byte(`{"requestId":"req-2","randomWords":["x"]}`)))
	assert.Equal(t, 1, d.count())

	d.err = ErrInvalidRandomness
	assert.True(t, p.handleFulfilled(ctx, d, []byte(`{"requestId":"req-3","randomWords":["-1"]}`)))

	// anything else asks for redelivery
	d.err = errors.New("custodian down")
	assert.False(t, p.handleFulfilled(ctx, d, []byte(`{"requestId":"req-4","randomWords":["1"]}`)))
}
