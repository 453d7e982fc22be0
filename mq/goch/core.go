package goch

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"gogreen/mq/mq"
)

// deliveryTimeout bounds how long a slow subscriber can hold up the fan-out.
const deliveryTimeout = 1 * time.Second

type subscription[M any] struct {
	topic uuid.UUID
	ch    chan M
}

// fanOutQueueCore copies every published message to the subscribers of its
// topic and to the subscribers of mq.AllTopics.
type fanOutQueueCore[M mq.TopicProvider] struct {
	publishChan chan M
	subscribers map[uuid.UUID]subscription[M]
	mu          sync.RWMutex
	quit        chan struct{}
	stopOnce    sync.Once
	bufferSize  int
}

func newFanOutQueueCore[M mq.TopicProvider](bufferSize int) *fanOutQueueCore[M] {
	if bufferSize < 0 {
		bufferSize = 0
	}
	core := &fanOutQueueCore[M]{
		publishChan: make(chan M, bufferSize),
		subscribers: make(map[uuid.UUID]subscription[M]),
		quit:        make(chan struct{}),
		bufferSize:  bufferSize,
	}
	go core.fanOutRoutine()
	return core
}

func (c *fanOutQueueCore[M]) fanOutRoutine() {
	for {
		select {
		case msg := <-c.publishChan:
			c.deliver(msg)
		case <-c.quit:
			c.mu.Lock()
			for id, sub := range c.subscribers {
				close(sub.ch)
				delete(c.subscribers, id)
			}
			c.mu.Unlock()
			return
		}
	}
}

// deliver holds the read lock so DeSubscribe cannot close a channel mid-send.
func (c *fanOutQueueCore[M]) deliver(msg M) {
	topic := msg.GetTopic()
	c.mu.RLock()
	defer c.mu.RUnlock()

	for id, sub := range c.subscribers {
		if sub.topic != mq.AllTopics && sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- msg:
		case <-c.quit:
			return
		case <-time.After(deliveryTimeout):
			log.Printf("Timeout sending message to subscriber %s. Skipping.", id)
		}
	}
}

// Publish hands msg to the fan-out routine. It blocks while the publish
// buffer is full.
func (c *fanOutQueueCore[M]) Publish(msg M) error {
	select {
	case <-c.quit:
		return ErrQueueClosed
	default:
	}
	select {
	case c.publishChan <- msg:
		return nil
	case <-c.quit:
		return ErrQueueClosed
	}
}

func (c *fanOutQueueCore[M]) Subscribe(topic uuid.UUID) (uuid.UUID, <-chan M, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.quit:
		return uuid.Nil, nil, ErrQueueClosed
	default:
	}

	id := uuid.New()
	ch := make(chan M, c.bufferSize)
	c.subscribers[id] = subscription[M]{topic: topic, ch: ch}
	return id, ch, nil
}

func (c *fanOutQueueCore[M]) DeSubscribe(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subscribers[id]
	if !ok {
		return fmt.Errorf("subscriber %s: %w", id, ErrSubscriberNotFound)
	}
	close(sub.ch)
	delete(c.subscribers, id)
	return nil
}

// Stop closes every subscriber channel. It is safe to call more than once.
func (c *fanOutQueueCore[M]) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
	})
}

// --- Error Definitions ---
type QueueError string

func (e QueueError) Error() string {
	return string(e)
}

const (
	ErrQueueClosed        QueueError = "message queue is closed"
	ErrSubscriberNotFound QueueError = "subscriber not found"
)
