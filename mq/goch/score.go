package goch

import (
	"github.com/google/uuid"

	"gogreen/mq/mq"
)

// ChannelScoreEventQueue implements mq.ScoreEventQueue in process.
type ChannelScoreEventQueue struct {
	action mq.Action
	core   *fanOutQueueCore[mq.ScoreEvent]
}

func NewChannelScoreEventQueue(action mq.Action, bufferSize int) *ChannelScoreEventQueue {
	return &ChannelScoreEventQueue{
		action: action,
		core:   newFanOutQueueCore[mq.ScoreEvent](bufferSize),
	}
}

// GetAction returns the action associated with this queue.
func (q *ChannelScoreEventQueue) GetAction() mq.Action {
	return q.action
}

func (q *ChannelScoreEventQueue) Publish(msg mq.ScoreEvent) error {
	return q.core.Publish(msg)
}

func (q *ChannelScoreEventQueue) Subscribe(userID uuid.UUID) (uuid.UUID, <-chan mq.ScoreEvent, error) {
	return q.core.Subscribe(userID)
}

func (q *ChannelScoreEventQueue) DeSubscribe(id uuid.UUID) error {
	return q.core.DeSubscribe(id)
}

// GoChanScoreMessageQueueWrapper holds one in-process queue per action.
type GoChanScoreMessageQueueWrapper struct {
	MQArray [mq.ActionCnt]*ChannelScoreEventQueue
}

// NewGoChanScoreMessageQueueWrapper creates a new instance of GoChanScoreMessageQueueWrapper.
func NewGoChanScoreMessageQueueWrapper(bufferSize int) mq.ScoreMessageQueueWrapper {
	wrapper := GoChanScoreMessageQueueWrapper{}
	for action := mq.Action(0); action < mq.ActionCnt; action++ {
		wrapper.MQArray[action] = NewChannelScoreEventQueue(action, bufferSize)
	}
	return &wrapper
}

func (wrapper *GoChanScoreMessageQueueWrapper) GetScoreEventQueue(action mq.Action) mq.ScoreEventQueue {
	if action < 0 || action >= mq.ActionCnt {
		return nil
	}
	return wrapper.MQArray[action]
}

// Close stops every queue and closes all subscriber channels.
func (wrapper *GoChanScoreMessageQueueWrapper) Close() {
	for _, q := range wrapper.MQArray {
		if q != nil {
			q.core.Stop()
		}
	}
}
