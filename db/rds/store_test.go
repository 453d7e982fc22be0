package rds

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbt "gogreen/db/db"
	"gogreen/score"
)

func ptr[T any](v T) *T { return &v }

func setupTest(t *testing.T) (*RedisGreenDBWrapper, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisGreenDBWrapper(client), server
}

func newRoute(userID uuid.UUID, points int) *dbt.RouteRecord {
	return &dbt.RouteRecord{
		UserID:      userID,
		Start:       dbt.Coordinate{Lat: 51.5, Lon: -0.12},
		End:         dbt.Coordinate{Lat: 51.52, Lon: -0.08},
		DistanceKm:  3,
		Duration:    "18 mins",
		CO2Kg:       0,
		VehicleType: score.VehicleCycle,
		RouteType:   score.RouteCostEffective,
		GreenPoints: points,
	}
}

func TestConnectRedis(t *testing.T) {
	server := miniredis.RunT(t)
	client, err := ConnectRedis(context.Background(), server.Addr(), "", 0)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	server.Close()
	_, err = ConnectRedis(context.Background(), server.Addr(), "", 0)
	assert.Error(t, err)
}

func TestAppendRoute_ServerTimestamps(t *testing.T) {
	db, server := setupTest(t)
	ctx := context.Background()
	userID := uuid.New()

	frozen := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	server.SetTime(frozen)

	first := newRoute(userID, 27)
	id1, err := db.AppendRoute(ctx, first)
	require.NoError(t, err)
	second := newRoute(userID, 12)
	id2, err := db.AppendRoute(ctx, second)
	require.NoError(t, err)

	assert.Equal(t, frozen, first.CreatedAt)
	assert.True(t, second.CreatedAt.After(first.CreatedAt), "same server second still yields increasing stamps")

	got, err := db.GetRoute(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, 27, got.GreenPoints)
	assert.Equal(t, score.VehicleCycle, got.VehicleType)
	assert.Equal(t, 51.52, got.End.Lat)
	assert.Equal(t, first.CreatedAt, got.CreatedAt)

	routes, err := db.ListRoutesByUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, id2, routes[0].ID)

	_, err = db.GetRoute(ctx, uuid.New())
	assert.True(t, errors.Is(err, dbt.ErrRouteNotFound))
}

func TestListRecentRoutes(t *testing.T) {
	db, server := setupTest(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	users := []uuid.UUID{uuid.New(), uuid.New()}
	for i := 0; i < 4; i++ {
		server.SetTime(start.Add(time.Duration(i) * time.Minute))
		_, err := db.AppendRoute(ctx, newRoute(users[i%2], i))
		require.NoError(t, err)
	}

	recent, err := db.ListRecentRoutes(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, 3, recent[0].GreenPoints)
	assert.Equal(t, 1, recent[2].GreenPoints)
}

func TestUpsertUser(t *testing.T) {
	db, server := setupTest(t)
	ctx := context.Background()
	id := uuid.New()

	user, err := db.UpsertUser(ctx, dbt.UserPatch{ID: id, Username: ptr("ana"), GreenScore: ptr[int64](42)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.GreenScore)

	// zero never overwrites a stored score
	user, err = db.UpsertUser(ctx, dbt.UserPatch{ID: id, DisplayName: ptr("Ana"), GreenScore: ptr[int64](0)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), user.GreenScore)
	assert.Equal(t, "ana", user.Username)
	assert.Equal(t, "42", server.HGet(userKey(id), "green_score"))
	assert.Equal(t, "Ana", server.HGet(userKey(id), "display_name"))

	// a hash without the score field accepts zero
	legacy := uuid.New()
	server.HSet(userKey(legacy), "id", legacy.String(), "username", "old")
	user, err = db.UpsertUser(ctx, dbt.UserPatch{ID: legacy, GreenScore: ptr[int64](0)})
	require.NoError(t, err)
	assert.Equal(t, "old", user.Username)
	assert.Equal(t, "0", server.HGet(userKey(legacy), "green_score"))
}

func TestIncrementScore(t *testing.T) {
	db, _ := setupTest(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := db.IncrementScore(ctx, id, 10)
	assert.True(t, errors.Is(err, dbt.ErrUserNotFound))

	_, err = db.UpsertUser(ctx, dbt.UserPatch{ID: id, Username: ptr("ana")})
	require.NoError(t, err)

	const n, delta = 40, 5
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
	assert.Equal(t, int64(n*delta), user.GreenScore)

	board, err := db.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, int64(n*delta), board[0].GreenScore)
	assert.Equal(t, 1, board[0].Rank)
}

func TestLeaderboard(t *testing.T) {
	db, _ := setupTest(t)
	ctx := context.Background()

	ids := map[string]uuid.UUID{}
	for name, s := range map[string]int64{"ana": 30, "ben": 90, "dee": 5} {
		id := uuid.New()
		ids[name] = id
		_, err := db.UpsertUser(ctx, dbt.UserPatch{ID: id, Username: ptr(name), GreenScore: ptr(s)})
		require.NoError(t, err)
	}
	_, err := db.IncrementScore(ctx, ids["dee"], 100)
	require.NoError(t, err)

	board, err := db.Leaderboard(ctx, 2)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "dee", board[0].Username)
	assert.Equal(t, int64(105), board[0].GreenScore)
	assert.Equal(t, "ben", board[1].Username)
	assert.Equal(t, 2, board[1].Rank)

	users, err := db.DataLoaderGetUserList(ctx, []uuid.UUID{ids["ana"], uuid.New()})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, "ana", users[ids["ana"]].Username)
}
