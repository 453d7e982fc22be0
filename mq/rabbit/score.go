package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"gogreen/mq/mq"
)

// routingKey is score.<action>.<user id>; "*" matches every user.
func routingKey(action mq.Action, topic uuid.UUID) string {
	if topic == mq.AllTopics {
		return fmt.Sprintf("score.%s.*", action)
	}
	return fmt.Sprintf("score.%s.%s", action, topic)
}

// sharedQueueName is the durable queue that AllTopics subscribers of every
// instance consume from, so each event is handled once across the fleet.
func sharedQueueName(action mq.Action) string {
	return fmt.Sprintf("green_score_%s_all", action)
}

type consumer struct {
	channel *amqp.Channel
	tag     string
}

// rabbitScoreEventQueue implements mq.ScoreEventQueue for RabbitMQ.
type rabbitScoreEventQueue struct {
	action mq.Action
	conn   *amqp.Connection

	publishMu sync.Mutex // amqp channels are not safe for concurrent publishing
	channel   *amqp.Channel

	mu        sync.Mutex // Protects the consumers map
	consumers map[uuid.UUID]*consumer
}

// NewRabbitScoreEventQueue creates a new RabbitMQ queue for one action.
func NewRabbitScoreEventQueue(action mq.Action, conn *amqp.Connection) (mq.ScoreEventQueue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		return nil, err
	}

	return &rabbitScoreEventQueue{
		action:    action,
		conn:      conn,
		channel:   ch,
		consumers: make(map[uuid.UUID]*consumer),
	}, nil
}

// GetAction returns the action associated with this queue.
func (q *rabbitScoreEventQueue) GetAction() mq.Action {
	return q.action
}

// Publish sends a ScoreEvent routed by its user id.
func (q *rabbitScoreEventQueue) Publish(msg mq.ScoreEvent) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q.publishMu.Lock()
	defer q.publishMu.Unlock()
	err = q.channel.PublishWithContext(ctx,
		exchangeName,                         // exchange
		routingKey(q.action, msg.GetTopic()), // routing key
		false,                                // mandatory
		false,                                // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    msg.At,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe consumes the events of topic on a dedicated amqp channel.
func (q *rabbitScoreEventQueue) Subscribe(topic uuid.UUID) (uuid.UUID, <-chan mq.ScoreEvent, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	queueName := ""
	if topic == mq.AllTopics {
		queueName = sharedQueueName(q.action)
	}
	queueName, err = DeclareQueueAndBind(ch, queueName, routingKey(q.action, topic))
	if err != nil {
		ch.Close()
		return uuid.Nil, nil, err
	}

	subscriberID := uuid.New()
	tag := subscriberID.String()
	msgs, err := ch.Consume(
		queueName, // queue
		tag,       // consumer
		true,      // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		ch.Close()
		return uuid.Nil, nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	q.mu.Lock()
	q.consumers[subscriberID] = &consumer{channel: ch, tag: tag}
	q.mu.Unlock()

	outputChan := make(chan mq.ScoreEvent)
	go func() {
		defer func() {
			q.mu.Lock()
			delete(q.consumers, subscriberID)
			q.mu.Unlock()
			ch.Close()
			close(outputChan)
		}()

		// msgs closes after Cancel or when the channel dies
		for d := range msgs {
			var msg mq.ScoreEvent
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				log.Printf("Failed to unmarshal ScoreEvent: %v", err)
				continue
			}

			select {
			case outputChan <- msg:
			case <-time.After(1 * time.Second): // Prevent blocking indefinitely
				log.Printf("Timeout sending %s event to consumer %s. Skipping.", q.action, subscriberID)
			}
		}
	}()

	return subscriberID, outputChan, nil
}

// DeSubscribe cancels the consumer; its output channel closes once the
// delivery loop drains.
func (q *rabbitScoreEventQueue) DeSubscribe(subscriberID uuid.UUID) error {
	q.mu.Lock()
	c, ok := q.consumers[subscriberID]
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("consumer with ID %s not found for %s queue", subscriberID, q.action)
	}

	if err := c.channel.Cancel(c.tag, false); err != nil {
		return fmt.Errorf("failed to cancel consumer %s: %w", subscriberID, err)
	}
	return nil
}

func (q *rabbitScoreEventQueue) close() {
	q.mu.Lock()
	consumers := make([]*consumer, 0, len(q.consumers))
	for _, c := range q.consumers {
		consumers = append(consumers, c)
	}
	q.mu.Unlock()

	for _, c := range consumers {
		c.channel.Close()
	}
	q.channel.Close()
}

// rabbitScoreMessageQueueWrapper implements mq.ScoreMessageQueueWrapper for RabbitMQ.
type rabbitScoreMessageQueueWrapper struct {
	MQArray [mq.ActionCnt]*rabbitScoreEventQueue
	conn    *amqp.Connection // Keep a reference to the connection to close it later
}

// NewRabbitScoreMessageQueueWrapper creates a queue per action on conn.
func NewRabbitScoreMessageQueueWrapper(conn *amqp.Connection) (mq.ScoreMessageQueueWrapper, error) {
	wrapper := &rabbitScoreMessageQueueWrapper{
		conn: conn,
	}

	for action := mq.Action(0); action < mq.ActionCnt; action++ {
		q, err := NewRabbitScoreEventQueue(action, conn)
		if err != nil {
			wrapper.Close()
			return nil, fmt.Errorf("failed to create %s mq: %w", action, err)
		}
		wrapper.MQArray[action] = q.(*rabbitScoreEventQueue)
	}
	return wrapper, nil
}

// GetScoreEventQueue returns the queue of action.
func (wrapper *rabbitScoreMessageQueueWrapper) GetScoreEventQueue(action mq.Action) mq.ScoreEventQueue {
	if action < 0 || action >= mq.ActionCnt || wrapper.MQArray[action] == nil {
		return nil
	}
	return wrapper.MQArray[action]
}

// Close closes all channels and the RabbitMQ connection.
func (wrapper *rabbitScoreMessageQueueWrapper) Close() {
	for _, q := range wrapper.MQArray {
		if q != nil {
			q.close()
		}
	}
	if wrapper.conn != nil {
		wrapper.conn.Close()
	}
}
