package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/utils"
	"github.com/rs/zerolog/log"
)

type Client struct {
	client *pubsub.Client

	topicsMutex sync.Mutex
	topics      map[string]*pubsub.Topic
}

func NewClient(ctx context.Context, projectID string) (*Client, error) {
	if projectID == "" {
		return nil, errors.New("pub sub missing projectID to initialize")
	}
	log.Info().Msg(fmt.Sprintf("Init pubsub with projectID:%v", projectID))

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Successful pubsub init")

	return &Client{
		client: client,
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

// Subscribe blocks receiving messages until ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, subscriptionHandler SubscriptionHandler) error {
	sub := c.client.Subscription(subscriptionHandler.SubscriptionId)
	err := sub.Receive(ctx, subscriptionHandler.Handler)
	if err != nil {
		log.Error().Err(err).Msg(fmt.Sprintf("Subscriber error for sub id %s", subscriptionHandler.SubscriptionId))
	}
	return err
}

// Publish waits until the server has accepted the message.
func (c *Client) Publish(ctx context.Context, message Publishable) error {
	t, err := c.getTopic(ctx, message.GetEventTopicName())
	if err != nil {
		return err
	}

	data, err := utils.JsonEncode(message)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", message.GetEventTopicName(), err)
	}

	result := t.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		log.Warn().Err(err).Msg(fmt.Sprintf("Failed to publish message for %s", message.GetEventTopicName()))
		return err
	}
	return nil
}

func (c *Client) Close() error {
	c.topicsMutex.Lock()
	for _, t := range c.topics {
		t.Stop()
	}
	c.topicsMutex.Unlock()

	return c.client.Close()
}

func (c *Client) getTopic(ctx context.Context, topicName string) (*pubsub.Topic, error) {
	c.topicsMutex.Lock()
	defer c.topicsMutex.Unlock()

	if t, ok := c.topics[topicName]; ok {
		return t, nil
	}

	t := c.client.Topic(topicName)
	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		log.Info().Msg(fmt.Sprintf("Topic %s does not exist. Creating new", topicName))
		t, err = c.client.CreateTopic(ctx, topicName)
		if err != nil {
			log.Error().Err(err).Msg(fmt.Sprintf("Cant create topic %s", topicName))
			return nil, err
		}
	}
	c.topics[topicName] = t
	return t, nil
}
