package notify

import (
	"time"

	"github.com/google/uuid"
)

const EventTopic = "coinflip.events"

type EventType string

const (
	GameCreated  EventType = "GAME_CREATED"
	GameJoined   EventType = "GAME_JOINED"
	GameResolved EventType = "GAME_RESOLVED"
	GameTimeout  EventType = "GAME_TIMEOUT"
)

// Event is delivered at least once. Consumers deduplicate on GameId and Type,
// each type happens at most once per game.
type Event struct {
	EventId    string    `json:"eventId"`
	Type       EventType `json:"type"`
	GameId     uint64    `json:"gameId"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload,omitempty"`
}

func (Event) GetEventTopicName() string {
	return EventTopic
}

type GameCreatedPayload struct {
	Creator   string `json:"creator"`
	Token     string `json:"token"`
	Amount    uint64 `json:"amount"`
	IsPrivate bool   `json:"isPrivate"`
}

type GameJoinedPayload struct {
	Opponent string `json:"opponent"`
}

type GameResolvedPayload struct {
	Winner string `json:"winner"`
	Payout uint64 `json:"payout"`
	Fee    uint64 `json:"fee"`
}

func newEvent(eventType EventType, gameId uint64, at time.Time, payload any) Event {
	return Event{
		EventId:    uuid.New().String(),
		Type:       eventType,
		GameId:     gameId,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}
}

func NewGameCreated(gameId uint64, creator, token string, amount uint64, isPrivate bool, at time.Time) Event {
	return newEvent(GameCreated, gameId, at, GameCreatedPayload{
		Creator:   creator,
		Token:     token,
		Amount:    amount,
		IsPrivate: isPrivate,
	})
}

func NewGameJoined(gameId uint64, opponent string, at time.Time) Event {
	return newEvent(GameJoined, gameId, at, GameJoinedPayload{Opponent: opponent})
}

func NewGameResolved(gameId uint64, winner string, payout, fee uint64, at time.Time) Event {
	return newEvent(GameResolved, gameId, at, GameResolvedPayload{Winner: winner, Payout: payout, Fee: fee})
}

func NewGameTimeout(gameId uint64, at time.Time) Event {
	return newEvent(GameTimeout, gameId, at, nil)
}
