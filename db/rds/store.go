// Package rds stores users and routes in Redis. Scores are plain hash fields
// mirrored into a sorted set that serves the leaderboard.
package rds

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	dbt "gogreen/db/db"
	"gogreen/score"
)

const (
	keyPrefix      = "gogreen:"
	leaderboardKey = keyPrefix + "leaderboard"
	recentKey      = keyPrefix + "routes:recent"
	routeClockKey  = keyPrefix + "routes:clock"

	maxUpsertAttempts = 10
)

func userKey(id uuid.UUID) string       { return keyPrefix + "user:" + id.String() }
func routeKey(id uuid.UUID) string      { return keyPrefix + "route:" + id.String() }
func userRoutesKey(id uuid.UUID) string { return keyPrefix + "routes:user:" + id.String() }

// appendRouteScript stamps the route with the server clock, bumped past the
// last issued stamp, and indexes it in one step.
var appendRouteScript = redis.NewScript(`
local t = redis.call('TIME')
local now = tonumber(t[1]) * 1000000 + tonumber(t[2])
local last = tonumber(redis.call('GET', KEYS[1]) or '0')
if now <= last then
	now = last + 1
end
redis.call('SET', KEYS[1], now)
redis.call('HSET', KEYS[2], 'created_at', now, unpack(ARGV, 2))
redis.call('ZADD', KEYS[3], now, ARGV[1])
redis.call('ZADD', KEYS[4], now, ARGV[1])
return now
`)

// incrementScoreScript returns nil for a missing user.
var incrementScoreScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
local total = redis.call('HINCRBY', KEYS[1], 'green_score', ARGV[1])
redis.call('ZADD', KEYS[2], total, ARGV[2])
return total
`)

type routeHash struct {
	ID          string  `redis:"id"`
	UserID      string  `redis:"user_id"`
	StartLat    float64 `redis:"start_lat"`
	StartLon    float64 `redis:"start_lon"`
	EndLat      float64 `redis:"end_lat"`
	EndLon      float64 `redis:"end_lon"`
	DistanceKm  float64 `redis:"distance_km"`
	Duration    string  `redis:"duration"`
	CO2Kg       float64 `redis:"co2_kg"`
	VehicleType string  `redis:"vehicle_type"`
	RouteType   string  `redis:"route_type"`
	GreenPoints int     `redis:"green_points"`
	// CreatedAt is unix microseconds.
	CreatedAt int64 `redis:"created_at"`
}

func (h routeHash) toRecord() (dbt.RouteRecord, error) {
	id, err := uuid.Parse(h.ID)
	if err != nil {
		return dbt.RouteRecord{}, fmt.Errorf("corrupt route id %q: %w", h.ID, err)
	}
	userID, err := uuid.Parse(h.UserID)
	if err != nil {
		return dbt.RouteRecord{}, fmt.Errorf("corrupt user id on route %s: %w", h.ID, err)
	}
	return dbt.RouteRecord{
		ID:          id,
		UserID:      userID,
		Start:       dbt.Coordinate{Lat: h.StartLat, Lon: h.StartLon},
		End:         dbt.Coordinate{Lat: h.EndLat, Lon: h.EndLon},
		DistanceKm:  h.DistanceKm,
		Duration:    h.Duration,
		CO2Kg:       h.CO2Kg,
		VehicleType: score.VehicleType(h.VehicleType),
		RouteType:   score.RouteType(h.RouteType),
		GreenPoints: h.GreenPoints,
		CreatedAt:   time.UnixMicro(h.CreatedAt).UTC(),
	}, nil
}

// parseUser converts a user hash. hasScore reports whether green_score is set.
func parseUser(fields map[string]string) (account dbt.UserAccount, hasScore bool, err error) {
	account.ID, err = uuid.Parse(fields["id"])
	if err != nil {
		return account, false, fmt.Errorf("corrupt user id %q: %w", fields["id"], err)
	}
	account.Username = fields["username"]
	account.DisplayName = fields["display_name"]
	account.ProfileImageURL = fields["profile_image_url"]
	if raw, ok := fields["green_score"]; ok {
		account.GreenScore, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return account, false, fmt.Errorf("corrupt score on user %s: %w", account.ID, err)
		}
		hasScore = true
	}
	return account, hasScore, nil
}

// RedisGreenDBWrapper is a Redis implementation of dbt.GreenDBWrapper.
type RedisGreenDBWrapper struct {
	client *redis.Client
}

func NewRedisGreenDBWrapper(client *redis.Client) *RedisGreenDBWrapper {
	return &RedisGreenDBWrapper{client: client}
}

// AppendRoute stores the route hash and indexes it by user and by time.
func (r *RedisGreenDBWrapper) AppendRoute(ctx context.Context, record *dbt.RouteRecord) (uuid.UUID, error) {
	id := uuid.New()
	args := []any{
		id.String(),
		"id", id.String(),
		"user_id", record.UserID.String(),
		"start_lat", record.Start.Lat,
		"start_lon", record.Start.Lon,
		"end_lat", record.End.Lat,
		"end_lon", record.End.Lon,
		"distance_km", record.DistanceKm,
		"duration", record.Duration,
		"co2_kg", record.CO2Kg,
		"vehicle_type", string(record.VehicleType),
		"route_type", string(record.RouteType),
		"green_points", record.GreenPoints,
	}
	keys := []string{routeClockKey, routeKey(id), userRoutesKey(record.UserID), recentKey}

	stamp, err := appendRouteScript.Run(ctx, r.client, keys, args...).Int64()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to append route for user %s: %w", record.UserID, err)
	}
	record.ID = id
	record.CreatedAt = time.UnixMicro(stamp).UTC()
	return id, nil
}

// GetRoute retrieves a route by id.
func (r *RedisGreenDBWrapper) GetRoute(ctx context.Context, id uuid.UUID) (*dbt.RouteRecord, error) {
	cmd := r.client.HGetAll(ctx, routeKey(id))
	if err := cmd.Err(); err != nil {
		return nil, fmt.Errorf("failed to get route %s: %w", id, err)
	}
	if len(cmd.Val()) == 0 {
		return nil, fmt.Errorf("route with ID %s: %w", id, dbt.ErrRouteNotFound)
	}
	var h routeHash
	if err := cmd.Scan(&h); err != nil {
		return nil, fmt.Errorf("failed to decode route %s: %w", id, err)
	}
	record, err := h.toRecord()
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *RedisGreenDBWrapper) routesFromIndex(ctx context.Context, index string, limit int) ([]dbt.RouteRecord, error) {
	limit = dbt.NormalizeLimit(limit)
	ids, err := r.client.ZRevRange(ctx, index, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, raw := range ids {
			cmds[i] = pipe.HGetAll(ctx, keyPrefix+"route:"+raw)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]dbt.RouteRecord, 0, len(ids))
	for _, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			continue
		}
		var h routeHash
		if err := cmd.Scan(&h); err != nil {
			return nil, err
		}
		record, err := h.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// ListRoutesByUser returns the user's routes, newest first.
func (r *RedisGreenDBWrapper) ListRoutesByUser(ctx context.Context, userID uuid.UUID, limit int) ([]dbt.RouteRecord, error) {
	records, err := r.routesFromIndex(ctx, userRoutesKey(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes for user %s: %w", userID, err)
	}
	return records, nil
}

// ListRecentRoutes returns the latest routes of all users, newest first.
func (r *RedisGreenDBWrapper) ListRecentRoutes(ctx context.Context, limit int) ([]dbt.RouteRecord, error) {
	records, err := r.routesFromIndex(ctx, recentKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent routes: %w", err)
	}
	return records, nil
}

// GetUser retrieves a user by id.
func (r *RedisGreenDBWrapper) GetUser(ctx context.Context, id uuid.UUID) (*dbt.UserAccount, error) {
	fields, err := r.client.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("user with ID %s: %w", id, dbt.ErrUserNotFound)
	}
	account, _, err := parseUser(fields)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// UpsertUser applies dbt.ApplyUserPatch inside an optimistic WATCH transaction
// on the user hash.
func (r *RedisGreenDBWrapper) UpsertUser(ctx context.Context, patch dbt.UserPatch) (*dbt.UserAccount, error) {
	if patch.ID == uuid.Nil {
		return nil, fmt.Errorf("upsert user: empty id")
	}
	key := userKey(patch.ID)

	var account dbt.UserAccount
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		account = dbt.UserAccount{}
		created := len(fields) == 0
		var existingScore *int64
		if !created {
			var hasScore bool
			account, hasScore, err = parseUser(fields)
			if err != nil {
				return err
			}
			if hasScore {
				s := account.GreenScore
				existingScore = &s
			}
		}

		scoreWritten := dbt.ApplyUserPatch(&account, existingScore, created, patch)

		values := []any{"id", account.ID.String()}
		if created || patch.Username != nil {
			values = append(values, "username", account.Username)
		}
		if created || patch.DisplayName != nil {
			values = append(values, "display_name", account.DisplayName)
		}
		if created || patch.ProfileImageURL != nil {
			values = append(values, "profile_image_url", account.ProfileImageURL)
		}
		if scoreWritten {
			values = append(values, "green_score", account.GreenScore)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, values...)
			if scoreWritten {
				pipe.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(account.GreenScore), Member: account.ID.String()})
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxUpsertAttempts; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return &account, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, fmt.Errorf("failed to upsert user %s: %w", patch.ID, err)
	}
	return nil, fmt.Errorf("failed to upsert user %s: too many concurrent writers", patch.ID)
}

// IncrementScore adds delta with HINCRBY inside a script and returns the new total.
func (r *RedisGreenDBWrapper) IncrementScore(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	total, err := incrementScoreScript.Run(ctx, r.client, []string{userKey(id), leaderboardKey}, delta, id.String()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("increment score of %s: %w", id, dbt.ErrUserNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment score of %s: %w", id, err)
	}
	return total, nil
}

// Leaderboard reads the sorted set, highest first. Ties follow the member order.
func (r *RedisGreenDBWrapper) Leaderboard(ctx context.Context, limit int) ([]dbt.UserAccount, error) {
	limit = dbt.NormalizeLimit(limit)
	entries, err := r.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		member, _ := e.Member.(string)
		id, err := uuid.Parse(member)
		if err != nil {
			return nil, fmt.Errorf("corrupt leaderboard member %q: %w", member, err)
		}
		ids = append(ids, id)
	}
	users, err := r.DataLoaderGetUserList(ctx, ids)
	if err != nil {
		return nil, err
	}

	board := make([]dbt.UserAccount, 0, len(ids))
	for _, id := range ids {
		u, ok := users[id]
		if !ok {
			continue
		}
		account := *u
		account.Rank = len(board) + 1
		board = append(board, account)
	}
	return board, nil
}

// DataLoaderGetUserList fetches the user hashes in one pipeline. Unknown ids are omitted.
func (r *RedisGreenDBWrapper) DataLoaderGetUserList(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*dbt.UserAccount, error) {
	users := make(map[uuid.UUID]*dbt.UserAccount, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, userKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve users: %w", err)
	}
	for _, cmd := range cmds {
		if len(cmd.Val()) == 0 {
			continue
		}
		account, _, err := parseUser(cmd.Val())
		if err != nil {
			return nil, err
		}
		users[account.ID] = &account
	}
	return users, nil
}

func (r *RedisGreenDBWrapper) Close() error {
	return r.client.Close()
}
