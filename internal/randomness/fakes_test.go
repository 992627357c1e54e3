package randomness

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/pubsub"
)

type delivery struct {
	requestId string
	words     []*big.Int
}

type recordingDeliverer struct {
	mu         sync.Mutex
	deliveries []delivery
	err        error
}

func (d *recordingDeliverer) OnRandomnessDelivered(_ context.Context, requestId string, words []*big.Int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.deliveries = append(d.deliveries, delivery{requestId, words})
	return nil
}

func (d *recordingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.deliveries)
}

type flakyPublisher struct {
	failures  int
	published []pubsub.Publishable
}

var errPublish = errors.New("publish unavailable")

func (p *flakyPublisher) Publish(_ context.Context, message pubsub.Publishable) error {
	if p.failures > 0 {
		p.failures--
		return errPublish
	}
	p.published = append(p.published, message)
	return nil
}

// hangingPublisher never answers before its context ends.
type hangingPublisher struct{}

func (hangingPublisher) Publish(ctx context.Context, _ pubsub.Publishable) error {
	<-ctx.Done()
	return ctx.Err()
}
