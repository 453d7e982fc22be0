package goch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gogreen/mq/mq"
)

// Helper to receive a message from a channel with a timeout.
// Returns the message and true if successful, or zero value and false on timeout/closed.
func receiveMsgWithTimeout[T any](tb testing.TB, ch <-chan T, timeout time.Duration) (T, bool) {
	tb.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			var zero T
			return zero, false // Channel closed
		}
		return msg, true
	case <-time.After(timeout):
		var zero T
		return zero, false // Timeout
	}
}

// waitClosed reports whether ch is closed within timeout, draining buffered values.
func waitClosed[T any](ch <-chan T, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

type MockItem struct {
	Value   int
	TopicID uuid.UUID
}

func (item MockItem) GetTopic() uuid.UUID {
	return item.TopicID
}

func TestNewFanOutQueueCore(t *testing.T) {
	t.Parallel()

	t.Run("Unbuffered", func(t *testing.T) {
		t.Parallel()
		core := newFanOutQueueCore[MockItem](0)
		defer core.Stop()

		assert.NotNil(t, core.publishChan)
		assert.Equal(t, 0, cap(core.publishChan))
		assert.NotNil(t, core.subscribers)
		assert.NotNil(t, core.quit)
		assert.Equal(t, 0, core.bufferSize)
	})

	t.Run("Buffered", func(t *testing.T) {
		t.Parallel()
		core := newFanOutQueueCore[MockItem](10)
		defer core.Stop()

		assert.Equal(t, 10, cap(core.publishChan))
		assert.Equal(t, 10, core.bufferSize)
	})
}

func TestFanOutQueueCore_PublishSubscribeDeSubscribe(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[MockItem](0)
	defer core.Stop()
	topic := uuid.New()

	id, subChan, err := core.Subscribe(topic)
	require.NoError(t, err)

	// unbuffered publishChan needs the fan-out routine to be ready
	go func() {
		if pubErr := core.Publish(MockItem{Value: 42, TopicID: topic}); pubErr != nil {
			t.Errorf("Publish failed: %v", pubErr)
		}
	}()

	msg, ok := receiveMsgWithTimeout(t, subChan, 500*time.Millisecond)
	require.True(t, ok, "Failed to receive message or channel closed/timed out")
	assert.Equal(t, 42, msg.Value)

	require.NoError(t, core.DeSubscribe(id))
	assert.True(t, waitClosed(subChan, 500*time.Millisecond), "Subscriber channel not closed after DeSubscribe")

	err = core.DeSubscribe(id)
	assert.True(t, errors.Is(err, ErrSubscriberNotFound))

	// nobody listens any more, publishing must still succeed
	assert.NoError(t, core.Publish(MockItem{Value: 100, TopicID: topic}))
}

func TestFanOutQueueCore_TopicRouting(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[MockItem](10)
	defer core.Stop()

	alice, bob := uuid.New(), uuid.New()
	_, aliceCh, err := core.Subscribe(alice)
	require.NoError(t, err)
	_, bobCh, err := core.Subscribe(bob)
	require.NoError(t, err)
	_, allCh, err := core.Subscribe(mq.AllTopics)
	require.NoError(t, err)

	require.NoError(t, core.Publish(MockItem{Value: 1, TopicID: alice}))
	require.NoError(t, core.Publish(MockItem{Value: 2, TopicID: bob}))

	msg, ok := receiveMsgWithTimeout(t, aliceCh, 500*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, 1, msg.Value)

	msg, ok = receiveMsgWithTimeout(t, bobCh, 500*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, 2, msg.Value)

	for _, want := range []int{1, 2} {
		msg, ok = receiveMsgWithTimeout(t, allCh, 500*time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, want, msg.Value)
	}

	_, ok = receiveMsgWithTimeout(t, aliceCh, 100*time.Millisecond)
	assert.False(t, ok, "alice must not see bob's messages")
}

func TestFanOutQueueCore_MultipleSubscribers(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[MockItem](10)
	defer core.Stop()
	topic := uuid.New()

	const numSubscribers = 3
	chans := make([]<-chan MockItem, 0, numSubscribers)
	for i := 0; i < numSubscribers; i++ {
		_, ch, err := core.Subscribe(topic)
		require.NoError(t, err)
		chans = append(chans, ch)
	}

	require.NoError(t, core.Publish(MockItem{Value: 333, TopicID: topic}))

	var wg sync.WaitGroup
	for i, ch := range chans {
		wg.Add(1)
		go func(i int, ch <-chan MockItem) {
			defer wg.Done()
			msg, ok := receiveMsgWithTimeout(t, ch, 500*time.Millisecond)
			if !ok {
				t.Errorf("Subscriber %d failed to receive message or timed out", i)
				return
			}
			if msg.Value != 333 {
				t.Errorf("Subscriber %d expected 333, got %d", i, msg.Value)
			}
		}(i, ch)
	}
	wg.Wait()
}

func TestFanOutQueueCore_Stop(t *testing.T) {
	t.Parallel()
	core := newFanOutQueueCore[MockItem](1)

	_, ch, err := core.Subscribe(uuid.New())
	require.NoError(t, err)

	core.Stop()
	core.Stop()

	assert.True(t, waitClosed(ch, 500*time.Millisecond))
	assert.True(t, errors.Is(core.Publish(MockItem{}), ErrQueueClosed))
	_, _, err = core.Subscribe(uuid.New())
	assert.True(t, errors.Is(err, ErrQueueClosed))
}

func TestGoChanScoreMessageQueueWrapper(t *testing.T) {
	t.Parallel()
	wrapper := NewGoChanScoreMessageQueueWrapper(5)
	defer wrapper.Close()

	for action := mq.Action(0); action < mq.ActionCnt; action++ {
		q := wrapper.GetScoreEventQueue(action)
		require.NotNil(t, q, "queue for %s", action)
		assert.Equal(t, action, q.GetAction())
	}
	assert.Nil(t, wrapper.GetScoreEventQueue(mq.ActionCnt))
	assert.Nil(t, wrapper.GetScoreEventQueue(-1))

	userID := uuid.New()
	credited := wrapper.GetScoreEventQueue(mq.ActionScoreCredited)
	_, ch, err := credited.Subscribe(userID)
	require.NoError(t, err)

	event := mq.ScoreEvent{UserID: userID, RouteID: uuid.New(), Points: 16, Total: 58, At: time.Now()}
	require.NoError(t, credited.Publish(event))

	got, ok := receiveMsgWithTimeout(t, ch, 500*time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, event.RouteID, got.RouteID)
	assert.Equal(t, int64(58), got.Total)

	// other actions are separate queues
	_, ok = receiveMsgWithTimeout(t, ch, 100*time.Millisecond)
	assert.False(t, ok)
}
