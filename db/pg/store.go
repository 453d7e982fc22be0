package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbt "gogreen/db/db"
	"gogreen/score"
)

// GORMGreenDBWrapper is a GORM-based PostgreSQL implementation of dbt.GreenDBWrapper.
type GORMGreenDBWrapper struct {
	db *gorm.DB
}

// NewGORMGreenDBWrapper creates and returns a new instance of GORMGreenDBWrapper.
func NewGORMGreenDBWrapper(db *gorm.DB) *GORMGreenDBWrapper {
	return &GORMGreenDBWrapper{
		db: db,
	}
}

func toRouteModel(record *dbt.RouteRecord) RouteRecordModel {
	return RouteRecordModel{
		ID:          record.ID,
		UserID:      record.UserID,
		StartLat:    record.Start.Lat,
		StartLon:    record.Start.Lon,
		EndLat:      record.End.Lat,
		EndLon:      record.End.Lon,
		DistanceKm:  record.DistanceKm,
		Duration:    record.Duration,
		CO2Kg:       decimal.NewFromFloat(record.CO2Kg).Round(3),
		VehicleType: string(record.VehicleType),
		RouteType:   string(record.RouteType),
		GreenPoints: record.GreenPoints,
	}
}

func (m RouteRecordModel) toRecord() dbt.RouteRecord {
	return dbt.RouteRecord{
		ID:          m.ID,
		UserID:      m.UserID,
		Start:       dbt.Coordinate{Lat: m.StartLat, Lon: m.StartLon},
		End:         dbt.Coordinate{Lat: m.EndLat, Lon: m.EndLon},
		DistanceKm:  m.DistanceKm,
		Duration:    m.Duration,
		CO2Kg:       m.CO2Kg.InexactFloat64(),
		VehicleType: score.VehicleType(m.VehicleType),
		RouteType:   score.RouteType(m.RouteType),
		GreenPoints: m.GreenPoints,
		CreatedAt:   m.SavedAt.UTC(),
	}
}

func (m UserModel) toAccount() dbt.UserAccount {
	account := dbt.UserAccount{
		ID:              m.ID,
		Username:        m.Username,
		DisplayName:     m.DisplayName,
		ProfileImageURL: m.ProfileImageURL,
	}
	if m.GreenScore != nil {
		account.GreenScore = *m.GreenScore
	}
	return account
}

// AppendRoute inserts the route. The timestamp comes from the database clock.
func (pgdb *GORMGreenDBWrapper) AppendRoute(ctx context.Context, record *dbt.RouteRecord) (uuid.UUID, error) {
	record.ID = uuid.New()
	model := toRouteModel(record)
	result := pgdb.db.WithContext(ctx).Create(&model)
	if result.Error != nil {
		return uuid.Nil, fmt.Errorf("failed to append route for user %s: %w", record.UserID, result.Error)
	}
	record.CreatedAt = model.SavedAt.UTC()
	return record.ID, nil
}

// GetRoute retrieves a route by ID using GORM.
func (pgdb *GORMGreenDBWrapper) GetRoute(ctx context.Context, id uuid.UUID) (*dbt.RouteRecord, error) {
	var model RouteRecordModel
	result := pgdb.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("route with ID %s: %w", id, dbt.ErrRouteNotFound)
		}
		return nil, fmt.Errorf("failed to get route %s: %w", id, result.Error)
	}
	record := model.toRecord()
	return &record, nil
}

func (pgdb *GORMGreenDBWrapper) listRoutes(query *gorm.DB, limit int) ([]dbt.RouteRecord, error) {
	var models []RouteRecordModel
	result := query.Order("created_at DESC, seq DESC").Limit(dbt.NormalizeLimit(limit)).Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}
	records := make([]dbt.RouteRecord, 0, len(models))
	for _, m := range models {
		records = append(records, m.toRecord())
	}
	return records, nil
}

// ListRoutesByUser returns the user's routes, newest first.
func (pgdb *GORMGreenDBWrapper) ListRoutesByUser(ctx context.Context, userID uuid.UUID, limit int) ([]dbt.RouteRecord, error) {
	records, err := pgdb.listRoutes(pgdb.db.WithContext(ctx).Where("user_id = ?", userID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes for user %s: %w", userID, err)
	}
	return records, nil
}

// ListRecentRoutes returns the latest routes of all users, newest first.
func (pgdb *GORMGreenDBWrapper) ListRecentRoutes(ctx context.Context, limit int) ([]dbt.RouteRecord, error) {
	records, err := pgdb.listRoutes(pgdb.db.WithContext(ctx), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent routes: %w", err)
	}
	return records, nil
}

// GetUser retrieves a user by ID using GORM.
func (pgdb *GORMGreenDBWrapper) GetUser(ctx context.Context, id uuid.UUID) (*dbt.UserAccount, error) {
	var model UserModel
	result := pgdb.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user with ID %s: %w", id, dbt.ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, result.Error)
	}
	account := model.toAccount()
	return &account, nil
}

// errCreatedConcurrently means another transaction inserted the row first.
var errCreatedConcurrently = errors.New("user created concurrently")

// UpsertUser locks the user row, applies dbt.ApplyUserPatch and writes only
// the present fields. Losing a creation race is retried once, which then
// takes the locking update path.
func (pgdb *GORMGreenDBWrapper) UpsertUser(ctx context.Context, patch dbt.UserPatch) (*dbt.UserAccount, error) {
	if patch.ID == uuid.Nil {
		return nil, fmt.Errorf("upsert user: empty id")
	}
	account, err := pgdb.upsertUser(ctx, patch)
	if errors.Is(err, errCreatedConcurrently) {
		account, err = pgdb.upsertUser(ctx, patch)
	}
	return account, err
}

func (pgdb *GORMGreenDBWrapper) upsertUser(ctx context.Context, patch dbt.UserPatch) (*dbt.UserAccount, error) {
	var account dbt.UserAccount
	err := pgdb.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing UserModel
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&existing, "id = ?", patch.ID)
		created := false
		switch {
		case errors.Is(result.Error, gorm.ErrRecordNotFound):
			created = true
		case result.Error != nil:
			return fmt.Errorf("failed to lock user %s: %w", patch.ID, result.Error)
		default:
			account = existing.toAccount()
		}

		scoreWritten := dbt.ApplyUserPatch(&account, existing.GreenScore, created, patch)

		if created {
			model := UserModel{
				ID:              account.ID,
				Username:        account.Username,
				DisplayName:     account.DisplayName,
				ProfileImageURL: account.ProfileImageURL,
				GreenScore:      &account.GreenScore,
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
			if res.Error != nil {
				return fmt.Errorf("failed to create user %s: %w", patch.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("user %s: %w", patch.ID, errCreatedConcurrently)
			}
			return nil
		}

		updates := map[string]any{}
		if patch.Username != nil {
			updates["username"] = *patch.Username
		}
		if patch.DisplayName != nil {
			updates["display_name"] = *patch.DisplayName
		}
		if patch.ProfileImageURL != nil {
			updates["profile_image_url"] = *patch.ProfileImageURL
		}
		if scoreWritten {
			updates["green_score"] = account.GreenScore
		}
		if len(updates) == 0 {
			return nil
		}
		res := tx.Model(&UserModel{}).Where("id = ?", patch.ID).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update user %s: %w", patch.ID, res.Error)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// IncrementScore adds delta in a single UPDATE and returns the new total.
func (pgdb *GORMGreenDBWrapper) IncrementScore(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	var model UserModel
	result := pgdb.db.WithContext(ctx).
		Model(&model).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "green_score"}}}).
		Where("id = ?", id).
		Update("green_score", gorm.Expr("COALESCE(green_score, 0) + ?", delta))
	if result.Error != nil {
		return 0, fmt.Errorf("failed to increment score of %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 || model.GreenScore == nil {
		return 0, fmt.Errorf("increment score of %s: %w", id, dbt.ErrUserNotFound)
	}
	return *model.GreenScore, nil
}

// Leaderboard returns users ordered by score, highest first. Ties are ordered by username.
func (pgdb *GORMGreenDBWrapper) Leaderboard(ctx context.Context, limit int) ([]dbt.UserAccount, error) {
	var models []UserModel
	result := pgdb.db.WithContext(ctx).
		Order("COALESCE(green_score, 0) DESC, username ASC").
		Limit(dbt.NormalizeLimit(limit)).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", result.Error)
	}
	users := make([]dbt.UserAccount, 0, len(models))
	for i, m := range models {
		account := m.toAccount()
		account.Rank = i + 1
		users = append(users, account)
	}
	return users, nil
}

// DataLoaderGetUserList retrieves multiple users for a given set of IDs using GORM.
// This method is designed to be used with a DataLoader for batching queries.
func (pgdb *GORMGreenDBWrapper) DataLoaderGetUserList(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*dbt.UserAccount, error) {
	users := make(map[uuid.UUID]*dbt.UserAccount, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	var models []UserModel
	result := pgdb.db.WithContext(ctx).Where("id IN ?", ids).Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to retrieve users: %w", result.Error)
	}
	for _, m := range models {
		account := m.toAccount()
		users[m.ID] = &account
	}
	return users, nil
}

func (pgdb *GORMGreenDBWrapper) Close() error {
	return CloseGORM(pgdb.db)
}
