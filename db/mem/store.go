package mem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	dbt "gogreen/db/db"
)

type memUser struct {
	account dbt.UserAccount
	// hasScore is false until a score field has been written.
	hasScore bool
}

// inMemoryGreenDBWrapper is an in-memory implementation of dbt.GreenDBWrapper.
// Routes are kept in insertion order which is also timestamp order.
type inMemoryGreenDBWrapper struct {
	users  map[uuid.UUID]*memUser
	routes []dbt.RouteRecord
	byID   map[uuid.UUID]int

	clock    clockwork.Clock
	lastTime time.Time

	mu sync.RWMutex
}

// NewInMemoryGreenDBWrapper creates an in-memory store using the real clock.
func NewInMemoryGreenDBWrapper() dbt.GreenDBWrapper {
	return NewInMemoryGreenDBWrapperWithClock(clockwork.NewRealClock())
}

// NewInMemoryGreenDBWrapperWithClock creates an in-memory store stamping routes with clock.
func NewInMemoryGreenDBWrapperWithClock(clock clockwork.Clock) dbt.GreenDBWrapper {
	return &inMemoryGreenDBWrapper{
		users: make(map[uuid.UUID]*memUser),
		byID:  make(map[uuid.UUID]int),
		clock: clock,
	}
}

// nextTimestamp must be called with the write lock held.
func (db *inMemoryGreenDBWrapper) nextTimestamp() time.Time {
	now := db.clock.Now().UTC()
	if !now.After(db.lastTime) {
		now = db.lastTime.Add(time.Nanosecond)
	}
	db.lastTime = now
	return now
}

// AppendRoute stores a copy of record with a fresh id and timestamp.
func (db *inMemoryGreenDBWrapper) AppendRoute(ctx context.Context, record *dbt.RouteRecord) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	record.ID = uuid.New()
	record.CreatedAt = db.nextTimestamp()

	db.byID[record.ID] = len(db.routes)
	db.routes = append(db.routes, *record)
	return record.ID, nil
}

// GetRoute retrieves one route by id.
func (db *inMemoryGreenDBWrapper) GetRoute(ctx context.Context, id uuid.UUID) (*dbt.RouteRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	idx, exists := db.byID[id]
	if !exists {
		return nil, fmt.Errorf("route with ID %s: %w", id, dbt.ErrRouteNotFound)
	}
	recordCopy := db.routes[idx]
	return &recordCopy, nil
}

// ListRoutesByUser returns the user's routes, newest first.
func (db *inMemoryGreenDBWrapper) ListRoutesByUser(ctx context.Context, userID uuid.UUID, limit int) ([]dbt.RouteRecord, error) {
	limit = dbt.NormalizeLimit(limit)
	db.mu.RLock()
	defer db.mu.RUnlock()

	records := make([]dbt.RouteRecord, 0)
	for i := len(db.routes) - 1; i >= 0 && len(records) < limit; i-- {
		if db.routes[i].UserID == userID {
			records = append(records, db.routes[i])
		}
	}
	return records, nil
}

// ListRecentRoutes returns the latest routes of all users, newest first.
func (db *inMemoryGreenDBWrapper) ListRecentRoutes(ctx context.Context, limit int) ([]dbt.RouteRecord, error) {
	limit = dbt.NormalizeLimit(limit)
	db.mu.RLock()
	defer db.mu.RUnlock()

	records := make([]dbt.RouteRecord, 0, min(limit, len(db.routes)))
	for i := len(db.routes) - 1; i >= 0 && len(records) < limit; i-- {
		records = append(records, db.routes[i])
	}
	return records, nil
}

// GetUser retrieves a user by id.
func (db *inMemoryGreenDBWrapper) GetUser(ctx context.Context, id uuid.UUID) (*dbt.UserAccount, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	user, exists := db.users[id]
	if !exists {
		return nil, fmt.Errorf("user with ID %s: %w", id, dbt.ErrUserNotFound)
	}
	accountCopy := user.account
	return &accountCopy, nil
}

// UpsertUser creates or updates a user following dbt.ApplyUserPatch.
func (db *inMemoryGreenDBWrapper) UpsertUser(ctx context.Context, patch dbt.UserPatch) (*dbt.UserAccount, error) {
	if patch.ID == uuid.Nil {
		return nil, fmt.Errorf("upsert user: empty id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	user, exists := db.users[patch.ID]
	if !exists {
		user = &memUser{}
		db.users[patch.ID] = user
	}

	var existingScore *int64
	if exists && user.hasScore {
		score := user.account.GreenScore
		existingScore = &score
	}
	if dbt.ApplyUserPatch(&user.account, existingScore, !exists, patch) {
		user.hasScore = true
	}

	accountCopy := user.account
	return &accountCopy, nil
}

// IncrementScore adds delta to the user's score under the write lock.
func (db *inMemoryGreenDBWrapper) IncrementScore(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	user, exists := db.users[id]
	if !exists {
		return 0, fmt.Errorf("increment score of %s: %w", id, dbt.ErrUserNotFound)
	}
	user.account.GreenScore += delta
	user.hasScore = true
	return user.account.GreenScore, nil
}

// Leaderboard returns users ordered by score, highest first. Ties are ordered by username.
func (db *inMemoryGreenDBWrapper) Leaderboard(ctx context.Context, limit int) ([]dbt.UserAccount, error) {
	limit = dbt.NormalizeLimit(limit)
	db.mu.RLock()
	users := make([]dbt.UserAccount, 0, len(db.users))
	for _, u := range db.users {
		users = append(users, u.account)
	}
	db.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if users[i].GreenScore != users[j].GreenScore {
			return users[i].GreenScore > users[j].GreenScore
		}
		return users[i].Username < users[j].Username
	})
	if len(users) > limit {
		users = users[:limit]
	}
	for i := range users {
		users[i].Rank = i + 1
	}
	return users, nil
}

// DataLoaderGetUserList retrieves the users for the given ids. Unknown ids are omitted.
func (db *inMemoryGreenDBWrapper) DataLoaderGetUserList(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*dbt.UserAccount, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	result := make(map[uuid.UUID]*dbt.UserAccount, len(ids))
	for _, id := range ids {
		if u, ok := db.users[id]; ok {
			accountCopy := u.account
			result[id] = &accountCopy
		}
	}
	return result, nil
}

func (db *inMemoryGreenDBWrapper) Close() error {
	return nil
}
