package db

import (
	"time"

	"github.com/google/uuid"

	"gogreen/score"
)

// Coordinate is a lat/lon pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat" bson:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" bson:"lon" validate:"gte=-180,lte=180"`
}

// RouteRecord is one saved trip. It is append only.
type RouteRecord struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Start       Coordinate
	End         Coordinate
	DistanceKm  float64
	Duration    string
	CO2Kg       float64
	VehicleType score.VehicleType
	RouteType   score.RouteType
	GreenPoints int
	// CreatedAt is assigned by the store on write.
	CreatedAt time.Time
}

// UserAccount is the cumulative standing of one user.
type UserAccount struct {
	ID              uuid.UUID `diff:"id"`
	Username        string    `diff:"username"`
	DisplayName     string    `diff:"display_name"`
	ProfileImageURL string    `diff:"profile_image_url"`
	GreenScore      int64     `diff:"green_score"`
	// Rank is only set by leaderboard reads.
	Rank int `diff:"-"`
}

// UserPatch carries the user fields to write. Nil fields are left untouched.
type UserPatch struct {
	ID              uuid.UUID
	Username        *string
	DisplayName     *string
	ProfileImageURL *string
	GreenScore      *int64
}
