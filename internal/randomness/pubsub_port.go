package randomness

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/jpillora/backoff"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/utils"
	"github.com/rs/zerolog/log"
)

const (
	RequestCommandType    = "RANDOMNESS_REQUEST"
	FulfilledSubscription = "blockchain.flow.events.randomness-fulfilled-sub"

	defaultPublishWindow = 4 * time.Second
)

type RandomnessFulfilled struct {
	RequestId   string   `json:"requestId"`
	RandomWords []string `json:"randomWords"`
}

// PubSubPort asks the chain relayer for verifiable randomness and listens for
// the fulfilment events it relays back.
type PubSubPort struct {
	publisher     pubsub.Publisher
	subscriber    pubsub.Subscriber
	publishWindow time.Duration
	backoff       func() *backoff.Backoff
}

func NewPubSubPort(publisher pubsub.Publisher, subscriber pubsub.Subscriber) *PubSubPort {
	return &PubSubPort{
		publisher:     publisher,
		subscriber:    subscriber,
		publishWindow: defaultPublishWindow,
		backoff: func() *backoff.Backoff {
			return &backoff.Backoff{
				Min:    100 * time.Millisecond,
				Max:    5 * time.Second,
				Factor: 2,
				Jitter: true,
			}
		},
	}
}

// WithPublishWindow bounds how long Request keeps retrying. It must stay
// below the write timeout of any request handler that calls Request.
func (p *PubSubPort) WithPublishWindow(window time.Duration) *PubSubPort {
	p.publishWindow = window
	return p
}

// Request publishes the command, retrying with backoff for at most the
// publish window. The window also bounds each publish attempt.
func (p *PubSubPort) Request(ctx context.Context, requestId string, gameId uint64) error {
	cmd := blockchain.NewCommand(RequestCommandType, requestId, gameId)

	publishCtx, cancel := context.WithTimeout(ctx, p.publishWindow)
	defer cancel()

	b := p.backoff()
	for {
		err := p.publisher.Publish(publishCtx, cmd)
		if err == nil {
			log.Info().Uint64("game_id", gameId).Str("request_id", requestId).Msg("Randomness requested")
			return nil
		}

		wait := b.Duration()
		log.Warn().Err(err).Uint64("game_id", gameId).Dur("retry_in", wait).Msg("Randomness request not published, will retry")
		select {
		case <-time.After(wait):
		case <-publishCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("randomness request for game %d: %w", gameId, err)
		}
	}
}

// Listen delivers fulfilments to deliverer until ctx is cancelled.
func (p *PubSubPort) Listen(ctx context.Context, deliverer Deliverer) error {
	return p.subscriber.Subscribe(ctx, pubsub.SubscriptionHandler{
		SubscriptionId: FulfilledSubscription,
		Handler: func(ctx context.Context, message *gcppubsub.Message) {
			if p.handleFulfilled(ctx, deliverer, message.Data) {
				message.Ack()
				return
			}
			message.Nack()
		},
	})
}

// handleFulfilled reports whether the message is done with. Only failures
// that a redelivery could fix leave it unacknowledged.
func (p *PubSubPort) handleFulfilled(ctx context.Context, deliverer Deliverer, data []byte) bool {
	log.Info().Msg("Received message payload " + string(data))
	messagePayload, err := utils.JsonDecodeByteStream[RandomnessFulfilled](data)
	if err != nil {
		log.Warn().Err(err).Msg("Error while parsing RandomnessFulfilled message")
		return true
	}

	words, err := ParseWords(messagePayload.RandomWords)
	if err != nil {
		log.Warn().Err(err).Str("request_id", messagePayload.RequestId).Msg("Dropping RandomnessFulfilled message")
		return true
	}

	err = deliverer.OnRandomnessDelivered(ctx, messagePayload.RequestId, words)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrInvalidRandomness) {
		log.Warn().Err(err).Str("request_id", messagePayload.RequestId).Msg("Dropping RandomnessFulfilled message")
		return true
	}

	log.Error().Err(err).Str("request_id", messagePayload.RequestId).Msg("Error while handling RandomnessFulfilled")
	return false
}
