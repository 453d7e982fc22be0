package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrRouteNotFound = errors.New("route not found")
)

type RouteDBWrapper interface {
	// Create
	AppendRoute(ctx context.Context, record *RouteRecord) (uuid.UUID, error)
	// Read
	GetRoute(ctx context.Context, id uuid.UUID) (*RouteRecord, error)
	ListRoutesByUser(ctx context.Context, userID uuid.UUID, limit int) ([]RouteRecord, error)
	ListRecentRoutes(ctx context.Context, limit int) ([]RouteRecord, error)
}

type UserDBWrapper interface {
	// Read
	GetUser(ctx context.Context, id uuid.UUID) (*UserAccount, error)
	Leaderboard(ctx context.Context, limit int) ([]UserAccount, error)
	// Update
	UpsertUser(ctx context.Context, patch UserPatch) (*UserAccount, error)
	IncrementScore(ctx context.Context, id uuid.UUID, delta int64) (int64, error)
	// Data Loader
	DataLoaderGetUserList(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*UserAccount, error)
}

// GreenDBWrapper is the full repository a backend has to provide.
type GreenDBWrapper interface {
	RouteDBWrapper
	UserDBWrapper
	Close() error
}

// Mode names a storage backend.
type Mode string

const (
	ModeMemory   Mode = "memory"
	ModePostgres Mode = "postgres"
	ModeRedis    Mode = "redis"
	ModeMongo    Mode = "mongo"
)

const DefaultListLimit = 50

// NormalizeLimit clamps a requested page size into [1, DefaultListLimit*4].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > DefaultListLimit*4 {
		return DefaultListLimit * 4
	}
	return limit
}
