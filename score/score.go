package score

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	// BaselineEmission is the kg of CO2 per km of a non-eco default trip.
	BaselineEmission = 0.2
	// UnknownEmission is used for vehicle types without a known factor.
	UnknownEmission = 0.10
	// MinPoints is the floor of every scored route.
	MinPoints = 5
	// ZeroEmissionBonusPerKm is the flat bonus per km for bike, cycle and walk.
	ZeroEmissionBonusPerKm = 5

	pointsPerKgSaved = 10
)

var emissionFactor = map[VehicleType]float64{
	VehicleCar:   0.12,
	VehicleBike:  0.0,
	VehicleCycle: 0.0,
	VehicleWalk:  0.0,
	VehicleTrain: 0.04,
	VehicleAuto:  0.15,
	VehicleTaxi:  0.15,
}

// EmissionFactor returns the kg of CO2 emitted per km by the vehicle type.
func EmissionFactor(v VehicleType) float64 {
	if f, ok := emissionFactor[v]; ok {
		return f
	}
	return UnknownEmission
}

// IsZeroEmission reports whether v earns the zero emission bonus.
func IsZeroEmission(v VehicleType) bool {
	return v == VehicleBike || v == VehicleCycle || v == VehicleWalk
}

// Multiplier returns the points multiplier for a vehicle and route type combination.
func Multiplier(v VehicleType, r RouteType) float64 {
	switch {
	case r == RouteCostEffective:
		return 2
	case v == VehicleCar && r == RouteFastest:
		return 0.8
	default:
		return 1
	}
}

// CalculateGreenPoints converts route attributes into reward points.
// The base points and the zero emission bonus are rounded independently and
// the result never drops below MinPoints.
func CalculateGreenPoints(distanceKm float64, v VehicleType, r RouteType) int {
	saved := BaselineEmission - EmissionFactor(v)
	base := int(math.Round(saved * distanceKm * pointsPerKgSaved * Multiplier(v, r)))

	bonus := 0
	if IsZeroEmission(v) {
		bonus = int(math.Round(distanceKm * ZeroEmissionBonusPerKm))
	}

	return max(base+bonus, MinPoints)
}

// EstimateCO2 returns the kg of CO2 emitted by travelling distanceKm with v,
// rounded to grams.
func EstimateCO2(distanceKm float64, v VehicleType) float64 {
	if distanceKm <= 0 {
		return 0
	}
	return decimal.NewFromFloat(distanceKm).
		Mul(decimal.NewFromFloat(EmissionFactor(v))).
		Round(3).
		InexactFloat64()
}
