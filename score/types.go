package score

import (
	"fmt"
	"strings"
)

// VehicleType is the mode of transport used for a route.
type VehicleType string

const (
	VehicleCar   VehicleType = "car"
	VehicleBike  VehicleType = "bike"
	VehicleCycle VehicleType = "cycle"
	VehicleWalk  VehicleType = "walk"
	VehicleTrain VehicleType = "train"
	VehicleAuto  VehicleType = "auto"
	VehicleTaxi  VehicleType = "taxi"
)

// RouteType is the routing strategy the user picked for a route.
type RouteType string

const (
	RouteFastest       RouteType = "fastest"
	RouteCostEffective RouteType = "cost-effective"
	RouteLowTraffic    RouteType = "low-traffic"
	RouteLongDrive     RouteType = "long-drive"
)

var (
	VehicleTypeList = []VehicleType{
		VehicleCar,
		VehicleBike,
		VehicleCycle,
		VehicleWalk,
		VehicleTrain,
		VehicleAuto,
		VehicleTaxi,
	}
	RouteTypeList = []RouteType{
		RouteFastest,
		RouteCostEffective,
		RouteLowTraffic,
		RouteLongDrive,
	}

	// labels used by the app for the same strategies
	routeTypeAlias = map[string]RouteType{
		"cost effective": RouteCostEffective,
		"costeffective":  RouteCostEffective,
		"eco":            RouteCostEffective,
		"low traffic":    RouteLowTraffic,
		"long drive":     RouteLongDrive,
		"high-traffic":   RouteLongDrive,
		"high traffic":   RouteLongDrive,
	}
)

// Valid reports whether v is one of the known vehicle types.
func (v VehicleType) Valid() bool {
	for _, known := range VehicleTypeList {
		if v == known {
			return true
		}
	}
	return false
}

// Valid reports whether r is one of the known route types.
func (r RouteType) Valid() bool {
	for _, known := range RouteTypeList {
		if r == known {
			return true
		}
	}
	return false
}

// ParseVehicleType normalizes s and returns the matching VehicleType.
func ParseVehicleType(s string) (VehicleType, error) {
	v := VehicleType(strings.ToLower(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("unknown vehicle type %q", s)
	}
	return v, nil
}

// ParseRouteType normalizes s and returns the matching RouteType.
func ParseRouteType(s string) (RouteType, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := routeTypeAlias[normalized]; ok {
		return alias, nil
	}
	r := RouteType(normalized)
	if !r.Valid() {
		return "", fmt.Errorf("unknown route type %q", s)
	}
	return r, nil
}
