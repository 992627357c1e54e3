package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var singletonMutex sync.Mutex

// Listener is the part of a websocket connection the hub writes to.
type Listener interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

var _ Listener = (*websocket.Conn)(nil)

type WebSocketNotificationHub struct {
	registrationMutex sync.Mutex
	listeners         map[string][]Listener
}

func (hub *WebSocketNotificationHub) RegisterListener(topic string, conn Listener) {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()

	hub.listeners[topic] = append(hub.listeners[topic], conn)
}

func (hub *WebSocketNotificationHub) UnregisterListener(topic string, conn Listener) {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()

	hub.unregister(topic, conn)
}

// Publish writes the event to every listener of the topic. Listeners that
// fail a write are dropped.
func (hub *WebSocketNotificationHub) Publish(targetTopic string, event any) {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()

	var failed []Listener
	for _, listener := range hub.listeners[targetTopic] {
		_ = listener.SetWriteDeadline(time.Now().Add(writeWait))
		if err := listener.WriteJSON(event); err != nil {
			log.Warn().Err(err).Str("topic", targetTopic).Msg("Dropping websocket listener")
			failed = append(failed, listener)
		}
	}
	for _, listener := range failed {
		hub.unregister(targetTopic, listener)
		_ = listener.Close()
	}
}

func (hub *WebSocketNotificationHub) ListenerCount(topic string) int {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()

	return len(hub.listeners[topic])
}

func (hub *WebSocketNotificationHub) unregister(topic string, conn Listener) {
	listeners := hub.listeners[topic]
	for i, listener := range listeners {
		if listener == conn {
			listeners = append(listeners[:i], listeners[i+1:]...)
			break
		}
	}
	if len(listeners) == 0 {
		delete(hub.listeners, topic)
		return
	}
	hub.listeners[topic] = listeners
}

var notificationHubSingleton *WebSocketNotificationHub

func NewNotificationHub() *WebSocketNotificationHub {
	singletonMutex.Lock()
	defer singletonMutex.Unlock()

	if notificationHubSingleton == nil {
		notificationHubSingleton = newHub()
	}

	return notificationHubSingleton
}

func newHub() *WebSocketNotificationHub {
	return &WebSocketNotificationHub{
		listeners: make(map[string][]Listener),
	}
}
