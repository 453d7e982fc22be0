// Package routing asks TomTom for routes and scores each option.
package routing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/tidwall/gjson"

	dbt "gogreen/db/db"
	"gogreen/score"
)

var (
	ErrNoAPIKey        = errors.New("routing api key not configured")
	ErrNoRoute         = errors.New("no route found")
	ErrUnsupportedMode = errors.New("vehicle type not routable")
)

// Leg is one routed trip between two points.
type Leg struct {
	DistanceKm   float64
	TravelTime   time.Duration
	TrafficDelay time.Duration
	Path         orb.LineString
}

// Router finds a route for a vehicle and routing strategy.
type Router interface {
	Route(ctx context.Context, from, to dbt.Coordinate, vehicle score.VehicleType, routeType score.RouteType) (*Leg, error)
}

type TomTomClient struct {
	key     string
	baseURL string
	http    *http.Client
}

func NewTomTomClient(key, baseURL string, timeout time.Duration) *TomTomClient {
	if baseURL == "" {
		baseURL = "https://api.tomtom.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TomTomClient{
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func travelMode(v score.VehicleType) (string, bool) {
	switch v {
	case score.VehicleCar, score.VehicleTaxi, score.VehicleAuto:
		return "car", true
	case score.VehicleBike, score.VehicleCycle:
		return "bicycle", true
	case score.VehicleWalk:
		return "pedestrian", true
	default:
		return "", false
	}
}

// tomtomRouteType maps a strategy onto TomTom's routeType. eco and thrilling
// are only offered for cars.
func tomtomRouteType(r score.RouteType, mode string) string {
	switch {
	case mode != "car":
		if r == score.RouteLongDrive {
			return "shortest"
		}
		return "fastest"
	case r == score.RouteCostEffective:
		return "eco"
	case r == score.RouteLongDrive:
		return "thrilling"
	default:
		return "fastest"
	}
}

// Route calls the calculateRoute endpoint and returns the first route.
func (c *TomTomClient) Route(ctx context.Context, from, to dbt.Coordinate, vehicle score.VehicleType, routeType score.RouteType) (*Leg, error) {
	if c.key == "" {
		return nil, ErrNoAPIKey
	}
	mode, ok := travelMode(vehicle)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, vehicle)
	}

	query := url.Values{}
	query.Set("key", c.key)
	query.Set("travelMode", mode)
	query.Set("routeType", tomtomRouteType(routeType, mode))
	query.Set("traffic", fmt.Sprint(routeType == score.RouteLowTraffic || routeType == score.RouteFastest))
	endpoint := fmt.Sprintf("%s/routing/1/calculateRoute/%f,%f:%f,%f/json?%s",
		c.baseURL, from.Lat, from.Lon, to.Lat, to.Lon, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tomtom request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read tomtom response: %w", err)
	}
	return parseRoute(resp.StatusCode, body)
}

func parseRoute(status int, body []byte) (*Leg, error) {
	res := gjson.ParseBytes(body)
	if status != http.StatusOK {
		msg := res.Get("detailedError.message").String()
		if msg == "" {
			msg = res.Get("error.description").String()
		}
		if status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "no route") {
			return nil, fmt.Errorf("%w: %s", ErrNoRoute, msg)
		}
		return nil, fmt.Errorf("tomtom returned %d: %s", status, msg)
	}

	route := res.Get("routes.0")
	if !route.Exists() {
		return nil, ErrNoRoute
	}

	var path orb.LineString
	route.Get("legs").ForEach(func(_, leg gjson.Result) bool {
		leg.Get("points").ForEach(func(_, p gjson.Result) bool {
			path = append(path, orb.Point{p.Get("longitude").Float(), p.Get("latitude").Float()})
			return true
		})
		return true
	})

	meters := route.Get("summary.lengthInMeters").Float()
	if meters <= 0 && len(path) > 1 {
		meters = geo.Length(path)
	}
	return &Leg{
		DistanceKm:   meters / 1000,
		TravelTime:   time.Duration(route.Get("summary.travelTimeInSeconds").Int()) * time.Second,
		TrafficDelay: time.Duration(route.Get("summary.trafficDelayInSeconds").Int()) * time.Second,
		Path:         path,
	}, nil
}
