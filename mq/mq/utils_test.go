package mq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gogreen/mq/goch"
	"gogreen/mq/mq"
)

func TestActionString(t *testing.T) {
	assert.Equal(t, "route_saved", mq.ActionRouteSaved.String())
	assert.Equal(t, "score_credited", mq.ActionScoreCredited.String())
	assert.Equal(t, "credit_pending", mq.ActionCreditPending.String())
	assert.Equal(t, "unknown", mq.ActionCnt.String())
}

func TestScoreEventTopic(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, id, mq.ScoreEvent{UserID: id}.GetTopic())
}

func TestSubscribeProcessor(t *testing.T) {
	wrapper := goch.NewGoChanScoreMessageQueueWrapper(10)
	defer wrapper.Close()
	queue := wrapper.GetScoreEventQueue(mq.ActionScoreCredited)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userID := uuid.New()
	out := make(chan int64)
	mq.SubscribeProcessor(userID, ctx, queue, func(e mq.ScoreEvent) (int64, bool, error) {
		if e.Points < 0 {
			return 0, false, errors.New("negative")
		}
		return e.Total, e.Total == 0, nil
	}, out)

	// the subscription is registered asynchronously
	time.Sleep(50 * time.Millisecond)

	for _, e := range []mq.ScoreEvent{
		{UserID: userID, Points: -1, Total: 1},
		{UserID: userID, Points: 5, Total: 0},
		{UserID: userID, Points: 5, Total: 25},
	} {
		require.NoError(t, queue.Publish(e))
	}

	select {
	case total := <-out:
		assert.Equal(t, int64(25), total)
	case <-time.After(time.Second):
		t.Fatal("no output from processor")
	}

	cancel()
	select {
	case _, ok := <-out:
		assert.False(t, ok, "output is closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("output not closed after cancel")
	}
}
