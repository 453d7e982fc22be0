package gcppubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"gogreen/mq/mq"
)

const (
	userIDAttribute = "userId"
)

// subscriptionInfo holds details about an active Pub/Sub subscription.
type subscriptionInfo struct {
	gcpSubscription *pubsub.Subscription
	cancel          context.CancelFunc
}

// GenericPubSubService provides a generic implementation for GCP Pub/Sub operations.
type GenericPubSubService[M mq.TopicProvider] struct {
	client              *pubsub.Client
	topic               *pubsub.Topic
	activeSubscriptions map[uuid.UUID]*subscriptionInfo
	subscriptionsMutex  sync.Mutex
	ctx                 context.Context
}

// NewGenericPubSubService creates and initializes a generic service for a specific message type.
// It ensures the underlying Pub/Sub topic exists, creating it if necessary.
func NewGenericPubSubService[M mq.TopicProvider](ctx context.Context, client *pubsub.Client, topicID string) (*GenericPubSubService[M], error) {
	if client == nil {
		return nil, fmt.Errorf("GCP Pub/Sub client is nil")
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existence of topic %s: %w", topicID, err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			return nil, fmt.Errorf("failed to create topic %s: %w", topicID, err)
		}
		log.Printf("Created Pub/Sub topic: %s", topicID)
	}

	return &GenericPubSubService[M]{
		client:              client,
		topic:               topic,
		activeSubscriptions: make(map[uuid.UUID]*subscriptionInfo),
		ctx:                 ctx,
	}, nil
}

// Publish sends a message to the topic with the user id as an attribute.
func (s *GenericPubSubService[M]) Publish(msg M) error {
	typeName := reflect.TypeOf(msg).Name()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", typeName, err)
	}

	pubsubMsg := &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			userIDAttribute: msg.GetTopic().String(),
		},
	}

	// wait for the server id so a failed publish surfaces to the caller
	result := s.topic.Publish(s.ctx, pubsubMsg)
	if _, err = result.Get(s.ctx); err != nil {
		return fmt.Errorf("failed to publish %s to topic %s: %w", typeName, s.topic.ID(), err)
	}
	return nil
}

// sharedSubscription returns the subscription that every AllTopics
// subscriber shares, creating it on first use.
func (s *GenericPubSubService[M]) sharedSubscription() (*pubsub.Subscription, error) {
	name := s.topic.ID() + "-all"
	sub := s.client.Subscription(name)
	exists, err := sub.Exists(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check subscription %s: %w", name, err)
	}
	if exists {
		return sub, nil
	}
	sub, err = s.client.CreateSubscription(s.ctx, name, pubsub.SubscriptionConfig{
		Topic:       s.topic,
		AckDeadline: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription %s: %w", name, err)
	}
	return sub, nil
}

// Subscribe starts receiving the messages of userID. A user subscription is
// a filtered subscription deleted on DeSubscribe; mq.AllTopics attaches to a
// shared unfiltered subscription that outlives the subscriber.
func (s *GenericPubSubService[M]) Subscribe(userID uuid.UUID) (uuid.UUID, <-chan M, error) {
	subscriptionID := uuid.New() // Internal ID for tracking
	typeName := reflect.TypeOf(*new(M)).Name()

	var gcpSub *pubsub.Subscription
	ephemeral := userID != mq.AllTopics
	if ephemeral {
		gcpSubName := fmt.Sprintf("sub-%s-%s-%s", s.topic.ID(), userID.String(), subscriptionID.String())
		config := pubsub.SubscriptionConfig{
			Topic:            s.topic,
			Filter:           fmt.Sprintf("attributes.%s = \"%s\"", userIDAttribute, userID.String()),
			ExpirationPolicy: 24 * time.Hour,
			AckDeadline:      10 * time.Second,
		}
		var err error
		gcpSub, err = s.client.CreateSubscription(s.ctx, gcpSubName, config)
		if err != nil {
			return uuid.Nil, nil, fmt.Errorf("failed to create GCP subscription %s for %s: %w", gcpSubName, typeName, err)
		}
	} else {
		var err error
		gcpSub, err = s.sharedSubscription()
		if err != nil {
			return uuid.Nil, nil, err
		}
	}

	msgChan := make(chan M, 5)
	receiveCtx, cancel := context.WithCancel(s.ctx)

	s.subscriptionsMutex.Lock()
	s.activeSubscriptions[subscriptionID] = &subscriptionInfo{
		gcpSubscription: gcpSub,
		cancel:          cancel,
	}
	s.subscriptionsMutex.Unlock()

	go func() {
		defer func() {
			s.subscriptionsMutex.Lock()
			delete(s.activeSubscriptions, subscriptionID)
			s.subscriptionsMutex.Unlock()

			if ephemeral {
				if deleteErr := gcpSub.Delete(context.Background()); deleteErr != nil {
					log.Printf("Error deleting GCP subscription %s: %v", gcpSub.ID(), deleteErr)
				}
			}
			close(msgChan)
		}()

		// Receive blocks until the context is cancelled.
		err := gcpSub.Receive(receiveCtx, func(ctx context.Context, pubsubMsg *pubsub.Message) {
			var msg M
			if err := json.Unmarshal(pubsubMsg.Data, &msg); err != nil {
				log.Printf("Error unmarshaling %s for %s: %v. Body: %s", typeName, subscriptionID, err, string(pubsubMsg.Data))
				pubsubMsg.Ack()
				return
			}

			select {
			case msgChan <- msg:
				pubsubMsg.Ack()
			case <-time.After(2 * time.Second):
				log.Printf("Timeout sending %s to msgChan for %s.", typeName, subscriptionID)
				pubsubMsg.Nack()
			case <-receiveCtx.Done():
				pubsubMsg.Nack()
			}
		})

		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Error in Receive loop for %s subscription %s: %v", typeName, subscriptionID, err)
		}
	}()

	return subscriptionID, msgChan, nil
}

// DeSubscribe stops the message receiver. The channel closes once it has stopped.
func (s *GenericPubSubService[M]) DeSubscribe(id uuid.UUID) error {
	s.subscriptionsMutex.Lock()
	info, ok := s.activeSubscriptions[id]
	if ok {
		// removed from the map by the receiver goroutine
		info.cancel()
	}
	s.subscriptionsMutex.Unlock()

	if !ok {
		return fmt.Errorf("subscription ID %s not found for %s service", id, reflect.TypeOf(*new(M)).Name())
	}
	return nil
}

// Close gracefully shuts down all active subscriptions for this service.
func (s *GenericPubSubService[M]) Close() {
	s.subscriptionsMutex.Lock()
	defer s.subscriptionsMutex.Unlock()

	for _, info := range s.activeSubscriptions {
		info.cancel()
	}
	s.topic.Stop()
}

// --- scoreEventMQ implementation ---
type scoreEventMQ struct {
	genericService *GenericPubSubService[mq.ScoreEvent]
	action         mq.Action
}

func NewScoreEventMessageQueue(ctx context.Context, client *pubsub.Client, action mq.Action) (*scoreEventMQ, error) {
	topicID := fmt.Sprintf("green-score-%s", action.String())
	gs, err := NewGenericPubSubService[mq.ScoreEvent](ctx, client, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to create generic service for %s: %w", action, err)
	}
	return &scoreEventMQ{genericService: gs, action: action}, nil
}
func (q *scoreEventMQ) GetAction() mq.Action            { return q.action }
func (q *scoreEventMQ) Publish(msg mq.ScoreEvent) error { return q.genericService.Publish(msg) }
func (q *scoreEventMQ) Subscribe(userID uuid.UUID) (uuid.UUID, <-chan mq.ScoreEvent, error) {
	return q.genericService.Subscribe(userID)
}
func (q *scoreEventMQ) DeSubscribe(id uuid.UUID) error { return q.genericService.DeSubscribe(id) }

// --------- score message queue wrapper implementation ---------

type GCPScoreMessageQueueWrapper struct {
	MQArray [mq.ActionCnt]*scoreEventMQ
	client  *pubsub.Client
}

func (wrapper *GCPScoreMessageQueueWrapper) GetScoreEventQueue(action mq.Action) mq.ScoreEventQueue {
	if action < 0 || action >= mq.ActionCnt || wrapper.MQArray[action] == nil {
		return nil
	}
	return wrapper.MQArray[action]
}

// Close stops every receiver and closes the client.
func (wrapper *GCPScoreMessageQueueWrapper) Close() {
	for _, q := range wrapper.MQArray {
		if q != nil {
			q.genericService.Close()
		}
	}
	if wrapper.client != nil {
		if err := wrapper.client.Close(); err != nil {
			log.Printf("Error closing Pub/Sub client: %v", err)
		}
	}
}

// NewGCPScoreMessageQueueWrapper creates a new MQ wrapper instance using GCP Pub/Sub.
func NewGCPScoreMessageQueueWrapper(ctx context.Context, projectID string) (mq.ScoreMessageQueueWrapper, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP Pub/Sub client for project %s: %w", projectID, err)
	}

	wrapper := &GCPScoreMessageQueueWrapper{client: client}
	for action := mq.Action(0); action < mq.ActionCnt; action++ {
		wrapper.MQArray[action], err = NewScoreEventMessageQueue(ctx, client, action)
		if err != nil {
			wrapper.Close()
			return nil, err
		}
	}
	return wrapper, nil
}
