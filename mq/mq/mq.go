package mq

import "github.com/google/uuid"

// TopicProvider is implemented by messages that know their routing topic.
type TopicProvider interface {
	GetTopic() uuid.UUID
}

// AllTopics subscribes to every topic of a queue.
var AllTopics = uuid.Nil

type ScoreMessageQueueWrapper interface {
	GetScoreEventQueue(action Action) ScoreEventQueue
	Close()
}

type ScoreEventQueue interface {
	GetAction() Action
	Publish(msg ScoreEvent) error
	// Subscribe receives events of one user, or of everybody with AllTopics.
	Subscribe(userID uuid.UUID) (uuid.UUID, <-chan ScoreEvent, error)
	DeSubscribe(id uuid.UUID) error
}
