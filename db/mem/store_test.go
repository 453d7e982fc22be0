package mem_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbt "gogreen/db/db"
	"gogreen/db/mem"
	"gogreen/score"
)

func ptr[T any](v T) *T { return &v }

// setupTest creates a new in-memory store with a fake clock for each test.
func setupTest() (dbt.GreenDBWrapper, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	return mem.NewInMemoryGreenDBWrapperWithClock(clock), clock
}

func newRoute(userID uuid.UUID, points int) *dbt.RouteRecord {
	return &dbt.RouteRecord{
		UserID:      userID,
		Start:       dbt.Coordinate{Lat: 25.03, Lon: 121.56},
		End:         dbt.Coordinate{Lat: 25.05, Lon: 121.52},
		DistanceKm:  4.2,
		Duration:    "14 mins",
		CO2Kg:       0,
		VehicleType: score.VehicleWalk,
		RouteType:   score.RouteFastest,
		GreenPoints: points,
	}
}

func TestAppendRoute(t *testing.T) {
	db, clock := setupTest()
	ctx := context.Background()
	userID := uuid.New()

	first := newRoute(userID, 29)
	id1, err := db.AppendRoute(ctx, first)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id1)
	assert.Equal(t, id1, first.ID)
	assert.Equal(t, clock.Now().UTC(), first.CreatedAt)

	// same instant: the store still hands out increasing timestamps
	second := newRoute(userID, 30)
	id2, err := db.AppendRoute(ctx, second)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
	assert.True(t, second.CreatedAt.After(first.CreatedAt))

	got, err := db.GetRoute(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, 30, got.GreenPoints)
	assert.Equal(t, userID, got.UserID)

	_, err = db.GetRoute(ctx, uuid.New())
	assert.True(t, errors.Is(err, dbt.ErrRouteNotFound))
}

func TestListRoutes(t *testing.T) {
	db, clock := setupTest()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		_, err := db.AppendRoute(ctx, newRoute(alice, 10+i))
		require.NoError(t, err)
		clock.Advance(time.Minute)
		_, err = db.AppendRoute(ctx, newRoute(bob, 20+i))
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	aliceRoutes, err := db.ListRoutesByUser(ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, aliceRoutes, 3)
	assert.Equal(t, 12, aliceRoutes[0].GreenPoints, "newest first")
	assert.Equal(t, 10, aliceRoutes[2].GreenPoints)

	limited, err := db.ListRoutesByUser(ctx, bob, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	recent, err := db.ListRecentRoutes(ctx, 4)
	require.NoError(t, err)
	require.Len(t, recent, 4)
	assert.Equal(t, bob, recent[0].UserID)
	assert.Equal(t, 22, recent[0].GreenPoints)
	for i := 1; i < len(recent); i++ {
		assert.True(t, recent[i-1].CreatedAt.After(recent[i].CreatedAt))
	}

	none, err := db.ListRoutesByUser(ctx, uuid.New(), 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpsertUser(t *testing.T) {
	db, _ := setupTest()
	ctx := context.Background()
	id := uuid.New()

	// Test 1: creation with zero defaults
	user, err := db.UpsertUser(ctx, dbt.UserPatch{ID: id, Username: ptr("ana")})
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)
	assert.Equal(t, "", user.DisplayName)
	assert.Equal(t, int64(0), user.GreenScore)

	// Test 2: only present fields are written
	user, err = db.UpsertUser(ctx, dbt.UserPatch{ID: id, DisplayName: ptr("Ana")})
	require.NoError(t, err)
	assert.Equal(t, "ana", user.Username)
	assert.Equal(t, "Ana", user.DisplayName)

	// Test 3: empty id is rejected
	_, err = db.UpsertUser(ctx, dbt.UserPatch{})
	assert.Error(t, err)
}

func TestUpsertUser_ZeroScoreDoesNotOverwrite(t *testing.T) {
	db, _ := setupTest()
	ctx := context.Background()
	id := uuid.New()

	_, err := db.UpsertUser(ctx, dbt.UserPatch{ID: id, Username: ptr("ana"), GreenScore: ptr[int64](42)})
	require.NoError(t, err)

	user, err := db.UpsertUser(ctx, dbt.UserPatch{ID: id, Username: ptr("ana"), GreenScore: ptr[int64](0)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.GreenScore)

	stored, err := db.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(42), stored.GreenScore)

	user, err = db.UpsertUser(ctx, dbt.UserPatch{ID: id, GreenScore: ptr[int64](50)})
	require.NoError(t, err)
	assert.Equal(t, int64(50), user.GreenScore)
}

func TestIncrementScore(t *testing.T) {
	db, _ := setupTest()
	ctx := context.Background()
	id := uuid.New()

	_, err := db.IncrementScore(ctx, id, 10)
	assert.True(t, errors.Is(err, dbt.ErrUserNotFound))

	_, err = db.UpsertUser(ctx, dbt.UserPatch{ID: id, Username: ptr("ana")})
	require.NoError(t, err)

	total, err := db.IncrementScore(ctx, id, 16)
	require.NoError(t, err)
	assert.Equal(t, int64(16), total)

	total, err = db.IncrementScore(ctx, id, 70)
	require.NoError(t, err)
	assert.Equal(t, int64(86), total)
}

func TestIncrementScore_Concurrent(t *testing.T) {
	db, _ := setupTest()
	ctx := context.Background()
	id := uuid.New()
	_, err := db.UpsertUser(ctx, dbt.UserPatch{ID: id, GreenScore: ptr[int64](100)})
	require.NoError(t, err)

	const n, delta = 200, 7
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.IncrementScore(ctx, id, delta)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	user, err := db.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(100+n*delta), user.GreenScore)
}

func TestLeaderboard(t *testing.T) {
	db, _ := setupTest()
	ctx := context.Background()

	scores := map[string]int64{"ana": 30, "ben": 90, "cy": 30, "dee": 5}
	for name, s := range scores {
		_, err := db.UpsertUser(ctx, dbt.UserPatch{ID: uuid.New(), Username: ptr(name), GreenScore: ptr(s)})
		require.NoError(t, err)
	}

	board, err := db.Leaderboard(ctx, 3)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "ben", board[0].Username)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "ana", board[1].Username)
	assert.Equal(t, "cy", board[2].Username)
	assert.Equal(t, 3, board[2].Rank)
}

func TestDataLoaderGetUserList(t *testing.T) {
	db, _ := setupTest()
	ctx := context.Background()
	known := uuid.New()
	_, err := db.UpsertUser(ctx, dbt.UserPatch{ID: known, Username: ptr("ana")})
	require.NoError(t, err)

	users, err := db.DataLoaderGetUserList(ctx, []uuid.UUID{known, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, "ana", users[known].Username)
}
