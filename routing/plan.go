package routing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"golang.org/x/sync/errgroup"

	dbt "gogreen/db/db"
	"gogreen/score"
)

// MaxCrowFliesKm rejects trips no vehicle here is meant for.
const MaxCrowFliesKm = 1000

var ErrTooFar = errors.New("destination too far")

// DefaultVehicles are planned when the request names none.
var DefaultVehicles = []score.VehicleType{score.VehicleCar, score.VehicleBike, score.VehicleWalk}

// Option is one scored way to make the trip.
type Option struct {
	VehicleType     score.VehicleType `json:"vehicle_type"`
	RouteType       score.RouteType   `json:"route_type"`
	DistanceKm      float64           `json:"distance_km"`
	Duration        string            `json:"duration"`
	DurationSeconds int64             `json:"duration_seconds"`
	TrafficDelaySec int64             `json:"traffic_delay_seconds"`
	CO2Kg           float64           `json:"co2_kg"`
	GreenPoints     int               `json:"green_points"`
	Path            orb.LineString    `json:"path,omitempty"`
}

type Planner struct {
	router Router
}

func NewPlanner(router Router) *Planner {
	return &Planner{router: router}
}

// Plan routes the trip once per vehicle and returns the options with the
// most green points first. Vehicles that cannot be routed are skipped; it
// fails only when none can.
func (p *Planner) Plan(ctx context.Context, from, to dbt.Coordinate, routeType score.RouteType, vehicles []score.VehicleType) ([]Option, error) {
	if len(vehicles) == 0 {
		vehicles = DefaultVehicles
	}
	crow := geo.DistanceHaversine(orb.Point{from.Lon, from.Lat}, orb.Point{to.Lon, to.Lat}) / 1000
	if crow > MaxCrowFliesKm {
		return nil, fmt.Errorf("%w: %.0f km", ErrTooFar, crow)
	}

	var (
		mu      sync.Mutex
		options []Option
		errs    []error
		g       errgroup.Group
	)
	g.SetLimit(4)
	for _, v := range vehicles {
		g.Go(func() error {
			leg, err := p.router.Route(ctx, from, to, v, routeType)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("No %s route: %v", v, err)
				errs = append(errs, err)
				return nil
			}
			options = append(options, scoreLeg(leg, v, routeType))
			return nil
		})
	}
	_ = g.Wait()

	if len(options) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ErrNoRoute
	}
	sort.SliceStable(options, func(i, j int) bool {
		if options[i].GreenPoints != options[j].GreenPoints {
			return options[i].GreenPoints > options[j].GreenPoints
		}
		return options[i].DurationSeconds < options[j].DurationSeconds
	})
	return options, nil
}

func scoreLeg(leg *Leg, v score.VehicleType, r score.RouteType) Option {
	return Option{
		VehicleType:     v,
		RouteType:       r,
		DistanceKm:      leg.DistanceKm,
		Duration:        FormatDuration(int64(leg.TravelTime.Seconds())),
		DurationSeconds: int64(leg.TravelTime.Seconds()),
		TrafficDelaySec: int64(leg.TrafficDelay.Seconds()),
		CO2Kg:           score.EstimateCO2(leg.DistanceKm, v),
		GreenPoints:     score.CalculateGreenPoints(leg.DistanceKm, v, r),
		Path:            leg.Path,
	}
}

// FormatDuration renders seconds the way the app shows them, "1 hr 5 mins".
func FormatDuration(seconds int64) string {
	if seconds < 60 {
		return "1 min"
	}
	hours := seconds / 3600
	mins := (seconds % 3600) / 60
	unit := func(n int64, one, many string) string {
		if n == 1 {
			return fmt.Sprintf("%d %s", n, one)
		}
		return fmt.Sprintf("%d %s", n, many)
	}
	switch {
	case hours == 0:
		return unit(mins, "min", "mins")
	case mins == 0:
		return unit(hours, "hr", "hrs")
	default:
		return unit(hours, "hr", "hrs") + " " + unit(mins, "min", "mins")
	}
}
