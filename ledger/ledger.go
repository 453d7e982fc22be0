// Package ledger records confirmed routes and credits their green points to
// the route owner.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	dbt "gogreen/db/db"
	"gogreen/mq/mq"
	"gogreen/score"
)

// FallbackPoints replaces a missing or malformed green points value.
const FallbackPoints = 10

const defaultTimeout = 5 * time.Second

var (
	ErrInvalidRoute = errors.New("invalid route")
	ErrSaveFailed   = errors.New("save failed")
	// ErrCreditFailed is returned together with ErrSaveFailed when the route
	// is stored but the points were not credited yet.
	ErrCreditFailed = errors.New("credit failed")
)

// RouteInput is a confirmed route before it is stored.
type RouteInput struct {
	UserID      uuid.UUID         `validate:"required"`
	Start       dbt.Coordinate
	End         dbt.Coordinate
	DistanceKm  float64           `validate:"gt=0"`
	Duration    string            `validate:"max=64"`
	VehicleType score.VehicleType `validate:"vehicle_type"`
	RouteType   score.RouteType   `validate:"route_type"`
	// CO2Kg is estimated from the vehicle type when nil.
	CO2Kg *float64 `validate:"omitempty,gte=0"`
	// GreenPoints should hold a finite non-negative integer.
	GreenPoints *float64
}

// Receipt is what a successful save reports back.
type Receipt struct {
	RouteID   uuid.UUID
	Points    int
	Total     int64
	CreatedAt time.Time
}

type Config struct {
	// EnsureUser creates an empty user record before crediting a user that
	// does not exist yet.
	EnsureUser bool
	// Timeout bounds every store call.
	Timeout time.Duration
	Clock   clockwork.Clock
}

type Ledger struct {
	store    dbt.GreenDBWrapper
	queue    mq.ScoreMessageQueueWrapper
	validate *validator.Validate
	clock    clockwork.Clock
	cfg      Config
}

// NewValidator returns a validator that knows the vehicle_type and
// route_type tags.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("vehicle_type", func(fl validator.FieldLevel) bool {
		return score.VehicleType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("route_type", func(fl validator.FieldLevel) bool {
		return score.RouteType(fl.Field().String()).Valid()
	})
	return v
}

// New creates a Ledger. queue may be nil, in which case no events are published.
func New(store dbt.GreenDBWrapper, queue mq.ScoreMessageQueueWrapper, cfg Config) *Ledger {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Ledger{
		store:    store,
		queue:    queue,
		validate: NewValidator(),
		clock:    cfg.Clock,
		cfg:      cfg,
	}
}

// ResolvePoints returns the points to credit and whether the fallback was used.
func ResolvePoints(points *float64) (int, bool) {
	if points == nil {
		return FallbackPoints, true
	}
	p := *points
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p != math.Trunc(p) || p > math.MaxInt32 {
		return FallbackPoints, true
	}
	return int(p), false
}

func (l *Ledger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.cfg.Timeout)
}

func (l *Ledger) publish(action mq.Action, event mq.ScoreEvent) {
	if l.queue == nil {
		return
	}
	q := l.queue.GetScoreEventQueue(action)
	if q == nil {
		return
	}
	if err := q.Publish(event); err != nil {
		log.Printf("Failed to publish %s event for route %s: %v", action, event.RouteID, err)
	}
}

// SaveRoute stores the route and credits its points to the owner.
func (l *Ledger) SaveRoute(ctx context.Context, in RouteInput) (uuid.UUID, error) {
	receipt, err := l.Save(ctx, in)
	if receipt == nil {
		return uuid.Nil, err
	}
	return receipt.RouteID, err
}

// Save appends the route and then credits the owner. The append always
// happens first; a failed append never credits. When the credit fails the
// receipt is still returned, the error wraps ErrSaveFailed and
// ErrCreditFailed, and a CreditPending event is published for the reconciler.
func (l *Ledger) Save(ctx context.Context, in RouteInput) (*Receipt, error) {
	if err := l.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoute, err)
	}

	points, fallback := ResolvePoints(in.GreenPoints)
	if fallback {
		log.Printf("Invalid green points %v for user %s, using fallback %d", describePoints(in.GreenPoints), in.UserID, FallbackPoints)
	}

	co2 := score.EstimateCO2(in.DistanceKm, in.VehicleType)
	if in.CO2Kg != nil {
		co2 = *in.CO2Kg
	}

	record := &dbt.RouteRecord{
		UserID:      in.UserID,
		Start:       in.Start,
		End:         in.End,
		DistanceKm:  in.DistanceKm,
		Duration:    in.Duration,
		CO2Kg:       co2,
		VehicleType: in.VehicleType,
		RouteType:   in.RouteType,
		GreenPoints: points,
	}

	appendCtx, cancel := l.withTimeout(ctx)
	routeID, err := l.store.AppendRoute(appendCtx, record)
	cancel()
	if err != nil {
		log.Printf("Failed to save route for user %s: %v", in.UserID, err)
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	receipt := &Receipt{RouteID: routeID, Points: points, CreatedAt: record.CreatedAt}
	l.publish(mq.ActionRouteSaved, mq.ScoreEvent{
		UserID:  in.UserID,
		RouteID: routeID,
		Points:  int64(points),
		At:      l.clock.Now().UTC(),
	})

	total, err := l.CreditScore(ctx, in.UserID, int64(points))
	if err != nil {
		log.Printf("Route %s saved but credit of %d points to %s failed: %v", routeID, points, in.UserID, err)
		l.publish(mq.ActionCreditPending, mq.ScoreEvent{
			UserID:  in.UserID,
			RouteID: routeID,
			Points:  int64(points),
			Reason:  err.Error(),
			At:      l.clock.Now().UTC(),
		})
		return receipt, fmt.Errorf("%w: %w: %w", ErrSaveFailed, ErrCreditFailed, err)
	}

	receipt.Total = total
	l.publish(mq.ActionScoreCredited, mq.ScoreEvent{
		UserID:  in.UserID,
		RouteID: routeID,
		Points:  int64(points),
		Total:   total,
		At:      l.clock.Now().UTC(),
	})
	return receipt, nil
}

// CreditScore adds delta to the user's score with the store's atomic
// increment and returns the new total. The current record is read first for
// logging only.
func (l *Ledger) CreditScore(ctx context.Context, userID uuid.UUID, delta int64) (int64, error) {
	readCtx, cancel := l.withTimeout(ctx)
	user, err := l.store.GetUser(readCtx, userID)
	cancel()

	switch {
	case err == nil:
		log.Printf("Crediting %d points to %s (current %d)", delta, userID, user.GreenScore)
	case errors.Is(err, dbt.ErrUserNotFound) && l.cfg.EnsureUser:
		log.Printf("User %s has no record yet, creating it before crediting", userID)
		upsertCtx, cancel := l.withTimeout(ctx)
		_, err = l.store.UpsertUser(upsertCtx, dbt.UserPatch{ID: userID})
		cancel()
		if err != nil {
			return 0, fmt.Errorf("failed to create user %s: %w", userID, err)
		}
	case errors.Is(err, dbt.ErrUserNotFound):
		return 0, err
	default:
		// the read is diagnostic, the increment decides
		log.Printf("Could not read user %s before credit: %v", userID, err)
	}

	incCtx, cancel := l.withTimeout(ctx)
	defer cancel()
	total, err := l.store.IncrementScore(incCtx, userID, delta)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func describePoints(p *float64) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprint(*p)
}
