package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/pubsub"
	"github.com/rs/zerolog/log"
)

const (
	LobbyTopic = "lobby"

	publishTimeout = 10 * time.Second
)

// Notifier is fire and forget: Notify never blocks on delivery and never
// fails the operation that produced the event.
type Notifier interface {
	Notify(event Event)
}

func GameTopic(gameId uint64) string {
	return fmt.Sprintf("game/%d", gameId)
}

type PubSubNotifier struct {
	publisher pubsub.Publisher
	inflight  sync.WaitGroup
}

func NewPubSubNotifier(publisher pubsub.Publisher) *PubSubNotifier {
	return &PubSubNotifier{publisher: publisher}
}

func (n *PubSubNotifier) Notify(event Event) {
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := n.publisher.Publish(ctx, event); err != nil {
			log.Warn().Err(err).Uint64("game_id", event.GameId).Str("type", string(event.Type)).Msg("Event not published")
		}
	}()
}

// Wait blocks until every pending publish has finished.
func (n *PubSubNotifier) Wait() {
	n.inflight.Wait()
}

type Broadcaster interface {
	Publish(targetTopic string, event any)
}

// HubNotifier pushes events to websocket listeners of the game and of the
// lobby.
type HubNotifier struct {
	hub Broadcaster
}

func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Notify(event Event) {
	n.hub.Publish(GameTopic(event.GameId), event)
	n.hub.Publish(LobbyTopic, event)
}

type LogNotifier struct{}

func (LogNotifier) Notify(event Event) {
	log.Info().
		Uint64("game_id", event.GameId).
		Str("type", string(event.Type)).
		Str("event_id", event.EventId).
		Interface("payload", event.Payload).
		Msg("Game event")
}

type MultiNotifier []Notifier

func (m MultiNotifier) Notify(event Event) {
	for _, n := range m {
		n.Notify(event)
	}
}
