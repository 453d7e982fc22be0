package gcppubsub_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gogreen/mq/gcppubsub"
	"gogreen/mq/mq"
)

// --- Test Pre-requisite ---
// This test suite requires the Google Cloud Pub/Sub emulator to be running:
//
//	gcloud beta emulators pubsub start --project=test-project
//
// The tests are skipped when PUBSUB_EMULATOR_HOST is not set.
const testProjectID = "test-project"

func getTestWrapper(t *testing.T) mq.ScoreMessageQueueWrapper {
	t.Helper()
	if os.Getenv("PUBSUB_EMULATOR_HOST") == "" {
		t.Skip("Skipping test: PUBSUB_EMULATOR_HOST environment variable not set. Please start the Pub/Sub emulator.")
	}
	wrapper, err := gcppubsub.NewGCPScoreMessageQueueWrapper(context.Background(), testProjectID)
	require.NoError(t, err, "Failed to create GCPScoreMessageQueueWrapper for emulator")
	t.Cleanup(wrapper.Close)
	return wrapper
}

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

func TestGetGCPProjectID(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "")
	_, err := gcppubsub.GetGCPProjectID("")
	assert.Error(t, err)

	t.Setenv("GCP_PROJECT_ID", "from-env")
	id, err := gcppubsub.GetGCPProjectID("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", id)

	id, err = gcppubsub.GetGCPProjectID("configured")
	require.NoError(t, err)
	assert.Equal(t, "configured", id)
}

func TestScoreEventQueue_FilteredSubscription(t *testing.T) {
	wrapper := getTestWrapper(t)
	queue := wrapper.GetScoreEventQueue(mq.ActionRouteSaved)
	require.NotNil(t, queue)
	assert.Equal(t, mq.ActionRouteSaved, queue.GetAction())

	alice, bob := uuid.New(), uuid.New()
	subID, ch, err := queue.Subscribe(alice)
	require.NoError(t, err)

	// give the emulator a moment to attach the receiver
	time.Sleep(500 * time.Millisecond)

	require.NoError(t, queue.Publish(mq.ScoreEvent{UserID: bob, Points: 3, At: time.Now().UTC()}))
	event := mq.ScoreEvent{UserID: alice, RouteID: uuid.New(), Points: 70, At: time.Now().UTC()}
	require.NoError(t, queue.Publish(event))

	got, ok := receiveMsgWithTimeout(t, ch, 10*time.Second)
	require.True(t, ok)
	assert.Equal(t, event.RouteID, got.RouteID)
	assert.Equal(t, int64(70), got.Points)

	require.NoError(t, queue.DeSubscribe(subID))
	assert.Error(t, queue.DeSubscribe(uuid.New()))
}
