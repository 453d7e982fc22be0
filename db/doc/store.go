// Package doc stores users and routes as MongoDB documents.
package doc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	dbt "gogreen/db/db"
	"gogreen/score"
)

const (
	usersCollection    = "users"
	routesCollection   = "routes"
	countersCollection = "counters"
)

type userDocument struct {
	ID              string    `bson:"_id"`
	Username        string    `bson:"username"`
	DisplayName     string    `bson:"display_name"`
	ProfileImageURL string    `bson:"profile_image_url"`
	GreenScore      *int64    `bson:"green_score,omitempty"`
	CreatedAt       time.Time `bson:"created_at,omitempty"`
	UpdatedAt       time.Time `bson:"updated_at,omitempty"`
}

func (d userDocument) toAccount() (dbt.UserAccount, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return dbt.UserAccount{}, fmt.Errorf("corrupt user id %q: %w", d.ID, err)
	}
	account := dbt.UserAccount{
		ID:              id,
		Username:        d.Username,
		DisplayName:     d.DisplayName,
		ProfileImageURL: d.ProfileImageURL,
	}
	if d.GreenScore != nil {
		account.GreenScore = *d.GreenScore
	}
	return account, nil
}

type routeDocument struct {
	ID          string         `bson:"_id"`
	Seq         int64          `bson:"seq"`
	UserID      string         `bson:"user_id"`
	Start       dbt.Coordinate `bson:"start"`
	End         dbt.Coordinate `bson:"end"`
	DistanceKm  float64        `bson:"distance_km"`
	Duration    string         `bson:"duration"`
	CO2Kg       float64        `bson:"co2_kg"`
	VehicleType string         `bson:"vehicle_type"`
	RouteType   string         `bson:"route_type"`
	GreenPoints int            `bson:"green_points"`
	CreatedAt   time.Time      `bson:"created_at"`
}

func (d routeDocument) toRecord() (dbt.RouteRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return dbt.RouteRecord{}, fmt.Errorf("corrupt route id %q: %w", d.ID, err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return dbt.RouteRecord{}, fmt.Errorf("corrupt user id on route %s: %w", d.ID, err)
	}
	return dbt.RouteRecord{
		ID:          id,
		UserID:      userID,
		Start:       d.Start,
		End:         d.End,
		DistanceKm:  d.DistanceKm,
		Duration:    d.Duration,
		CO2Kg:       d.CO2Kg,
		VehicleType: score.VehicleType(d.VehicleType),
		RouteType:   score.RouteType(d.RouteType),
		GreenPoints: d.GreenPoints,
		CreatedAt:   d.CreatedAt.UTC(),
	}, nil
}

// MongoGreenDBWrapper is a MongoDB implementation of dbt.GreenDBWrapper.
type MongoGreenDBWrapper struct {
	client   *mongo.Client
	users    *mongo.Collection
	routes   *mongo.Collection
	counters *mongo.Collection
}

func NewMongoGreenDBWrapper(client *mongo.Client, database string) *MongoGreenDBWrapper {
	db := client.Database(database)
	return &MongoGreenDBWrapper{
		client:   client,
		users:    db.Collection(usersCollection),
		routes:   db.Collection(routesCollection),
		counters: db.Collection(countersCollection),
	}
}

func (m *MongoGreenDBWrapper) nextRouteSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": routesCollection},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Seq, err
}

// AppendRoute inserts the route with created_at set by the server ($currentDate).
// seq breaks ties between routes saved within the same millisecond.
func (m *MongoGreenDBWrapper) AppendRoute(ctx context.Context, record *dbt.RouteRecord) (uuid.UUID, error) {
	seq, err := m.nextRouteSeq(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to allocate route sequence: %w", err)
	}

	id := uuid.New()
	update := bson.M{
		"$setOnInsert": bson.M{
			"seq":          seq,
			"user_id":      record.UserID.String(),
			"start":        record.Start,
			"end":          record.End,
			"distance_km":  record.DistanceKm,
			"duration":     record.Duration,
			"co2_kg":       record.CO2Kg,
			"vehicle_type": string(record.VehicleType),
			"route_type":   string(record.RouteType),
			"green_points": record.GreenPoints,
		},
		"$currentDate": bson.M{"created_at": true},
	}

	var saved routeDocument
	err = m.routes.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&saved)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to append route for user %s: %w", record.UserID, err)
	}

	record.ID = id
	record.CreatedAt = saved.CreatedAt.UTC()
	return id, nil
}

// GetRoute retrieves a route by id.
func (m *MongoGreenDBWrapper) GetRoute(ctx context.Context, id uuid.UUID) (*dbt.RouteRecord, error) {
	var d routeDocument
	err := m.routes.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("route with ID %s: %w", id, dbt.ErrRouteNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route %s: %w", id, err)
	}
	record, err := d.toRecord()
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (m *MongoGreenDBWrapper) findRoutes(ctx context.Context, filter bson.M, limit int) ([]dbt.RouteRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}}).
		SetLimit(int64(dbt.NormalizeLimit(limit)))
	cursor, err := m.routes.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []routeDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	records := make([]dbt.RouteRecord, 0, len(docs))
	for _, d := range docs {
		record, err := d.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// ListRoutesByUser returns the user's routes, newest first.
func (m *MongoGreenDBWrapper) ListRoutesByUser(ctx context.Context, userID uuid.UUID, limit int) ([]dbt.RouteRecord, error) {
	records, err := m.findRoutes(ctx, bson.M{"user_id": userID.String()}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes for user %s: %w", userID, err)
	}
	return records, nil
}

// ListRecentRoutes returns the latest routes of all users, newest first.
func (m *MongoGreenDBWrapper) ListRecentRoutes(ctx context.Context, limit int) ([]dbt.RouteRecord, error) {
	records, err := m.findRoutes(ctx, bson.M{}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent routes: %w", err)
	}
	return records, nil
}

// GetUser retrieves a user by id.
func (m *MongoGreenDBWrapper) GetUser(ctx context.Context, id uuid.UUID) (*dbt.UserAccount, error) {
	var d userDocument
	err := m.users.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("user with ID %s: %w", id, dbt.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	account, err := d.toAccount()
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// isNew is true while the upserted document is being inserted.
var isNew = bson.M{"$eq": bson.A{bson.M{"$type": "$created_at"}, "missing"}}

// stringField writes value when present and keeps the stored value otherwise,
// defaulting to "" on insert.
func stringField(field string, value *string) any {
	if value != nil {
		return bson.M{"$literal": *value}
	}
	return bson.M{"$ifNull": bson.A{"$" + field, ""}}
}

// scoreField encodes dbt.ScoreWrite as an aggregation expression so the
// decision and the write happen in the same document update.
func scoreField(value *int64) any {
	switch {
	case value != nil && *value != 0:
		return bson.M{"$literal": *value}
	case value != nil:
		return bson.M{"$ifNull": bson.A{"$green_score", int64(0)}}
	default:
		return bson.M{"$cond": bson.A{isNew, int64(0), "$green_score"}}
	}
}

// UpsertUser runs a single pipeline update with upsert, so concurrent
// upserts of the same user never lose fields.
func (m *MongoGreenDBWrapper) UpsertUser(ctx context.Context, patch dbt.UserPatch) (*dbt.UserAccount, error) {
	if patch.ID == uuid.Nil {
		return nil, fmt.Errorf("upsert user: empty id")
	}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"username":          stringField("username", patch.Username),
			"display_name":      stringField("display_name", patch.DisplayName),
			"profile_image_url": stringField("profile_image_url", patch.ProfileImageURL),
			"green_score":       scoreField(patch.GreenScore),
			"created_at":        bson.M{"$ifNull": bson.A{"$created_at", "$$NOW"}},
			"updated_at":        "$$NOW",
		}}},
	}

	var d userDocument
	err := m.users.FindOneAndUpdate(ctx,
		bson.M{"_id": patch.ID.String()},
		pipeline,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&d)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user %s: %w", patch.ID, err)
	}
	account, err := d.toAccount()
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// IncrementScore applies $inc and returns the document after the update.
func (m *MongoGreenDBWrapper) IncrementScore(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	var d userDocument
	err := m.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{
			"$inc":         bson.M{"green_score": delta},
			"$currentDate": bson.M{"updated_at": true},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("increment score of %s: %w", id, dbt.ErrUserNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment score of %s: %w", id, err)
	}
	if d.GreenScore == nil {
		return 0, fmt.Errorf("increment score of %s: score missing after update", id)
	}
	return *d.GreenScore, nil
}

// Leaderboard returns users ordered by score, highest first. Ties are ordered by username.
func (m *MongoGreenDBWrapper) Leaderboard(ctx context.Context, limit int) ([]dbt.UserAccount, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "green_score", Value: -1}, {Key: "username", Value: 1}}).
		SetLimit(int64(dbt.NormalizeLimit(limit)))
	cursor, err := m.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode leaderboard: %w", err)
	}

	board := make([]dbt.UserAccount, 0, len(docs))
	for i, d := range docs {
		account, err := d.toAccount()
		if err != nil {
			return nil, err
		}
		account.Rank = i + 1
		board = append(board, account)
	}
	return board, nil
}

// DataLoaderGetUserList fetches the users with one $in query. Unknown ids are omitted.
func (m *MongoGreenDBWrapper) DataLoaderGetUserList(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*dbt.UserAccount, error) {
	users := make(map[uuid.UUID]*dbt.UserAccount, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}

	cursor, err := m.users.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve users: %w", err)
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	for _, d := range docs {
		account, err := d.toAccount()
		if err != nil {
			return nil, err
		}
		users[account.ID] = &account
	}
	return users, nil
}

func (m *MongoGreenDBWrapper) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
