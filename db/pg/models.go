package pg

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type UserModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username        string    `gorm:"size:255;not null;default:''"`
	DisplayName     string    `gorm:"size:255;not null;default:''"`
	ProfileImageURL string    `gorm:"column:profile_image_url;not null;default:''"`
	// GreenScore is NULL until a score has been written.
	GreenScore *int64 `gorm:"column:green_score"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

type RouteRecordModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID       `gorm:"type:uuid;not null"`
	StartLat    float64         `gorm:"not null"`
	StartLon    float64         `gorm:"not null"`
	EndLat      float64         `gorm:"not null"`
	EndLon      float64         `gorm:"not null"`
	DistanceKm  float64         `gorm:"not null"`
	Duration    string          `gorm:"size:64;not null;default:''"`
	CO2Kg       decimal.Decimal `gorm:"column:co2_kg;type:numeric(10,3);not null"`
	VehicleType string          `gorm:"size:32;not null"`
	RouteType   string          `gorm:"size:32;not null"`
	GreenPoints int             `gorm:"not null"`
	// SavedAt is filled by the database and read back on insert.
	SavedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:clock_timestamp()"`
	// Seq orders routes saved within the same microsecond.
	Seq int64 `gorm:"column:seq;->"`
}

// TableName returns the table name for RouteRecordModel.
func (RouteRecordModel) TableName() string {
	return "route_records"
}
