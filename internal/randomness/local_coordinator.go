package randomness

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// LocalCoordinator stands in for the on-chain coordinator during local runs
// and tests. Requests wait until Fulfill is called or, with auto fulfilment
// enabled, until a random word is drawn after the configured delay.
type LocalCoordinator struct {
	mu        sync.Mutex
	deliverer Deliverer
	pending   map[string]uint64
	autoDelay time.Duration
}

func NewLocalCoordinator() *LocalCoordinator {
	return &LocalCoordinator{pending: make(map[string]uint64)}
}

func (c *LocalCoordinator) WithAutoFulfill(delay time.Duration) *LocalCoordinator {
	c.autoDelay = delay
	return c
}

func (c *LocalCoordinator) Bind(deliverer Deliverer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliverer = deliverer
}

func (c *LocalCoordinator) Request(ctx context.Context, requestId string, gameId uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if _, ok := c.pending[requestId]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, requestId)
	}
	c.pending[requestId] = gameId
	c.mu.Unlock()

	if c.autoDelay > 0 {
		go c.autoFulfill(requestId)
	}
	return nil
}

// Fulfill delivers words for a pending request. A request that the deliverer
// rejects stays pending so it can be fulfilled again.
func (c *LocalCoordinator) Fulfill(ctx context.Context, requestId string, words ...*big.Int) error {
	c.mu.Lock()
	_, ok := c.pending[requestId]
	deliverer := c.deliverer
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, requestId)
	}
	if deliverer == nil {
		return fmt.Errorf("randomness: no deliverer bound for %s", requestId)
	}
	if err := deliverer.OnRandomnessDelivered(ctx, requestId, words); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.pending, requestId)
	c.mu.Unlock()
	return nil
}

// Pending returns the outstanding request ids mapped to their game ids.
func (c *LocalCoordinator) Pending() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[string]uint64, len(c.pending))
	for k, v := range c.pending {
		pending[k] = v
	}
	return pending
}

func (c *LocalCoordinator) autoFulfill(requestId string) {
	time.Sleep(c.autoDelay)

	word, err := rand.Int(rand.Reader, new(big.Int).Add(MaxWord, big.NewInt(1)))
	if err != nil {
		log.Error().Err(err).Str("request_id", requestId).Msg("Cannot draw random word")
		return
	}
	if err := c.Fulfill(context.Background(), requestId, word); err != nil {
		log.Warn().Err(err).Str("request_id", requestId).Msg("Auto fulfilment failed")
	}
}
