package pubsub

import (
	"context"

	"cloud.google.com/go/pubsub"
)

type SubscriptionHandler struct {
	SubscriptionId string
	Handler        func(ctx context.Context, message *pubsub.Message)
}

// Publishable messages name the topic they are published to.
type Publishable interface {
	GetEventTopicName() string
}

type Publisher interface {
	Publish(ctx context.Context, message Publishable) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, subscriptionHandler SubscriptionHandler) error
}
