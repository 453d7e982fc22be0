package score

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateGreenPoints(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		vehicle  VehicleType
		route    RouteType
		expected int
	}{
		{
			name:     "car cost effective doubles the saving",
			distance: 10,
			vehicle:  VehicleCar,
			route:    RouteCostEffective,
			expected: 16,
		},
		{
			name:     "walking adds the zero emission bonus",
			distance: 10,
			vehicle:  VehicleWalk,
			route:    RouteFastest,
			expected: 70,
		},
		{
			name:     "short fast car trip hits the floor",
			distance: 0.4,
			vehicle:  VehicleCar,
			route:    RouteFastest,
			expected: 5,
		},
		{
			name:     "car fastest is scaled down",
			distance: 100,
			vehicle:  VehicleCar,
			route:    RouteFastest,
			expected: 64, // 0.08 * 100 * 10 * 0.8
		},
		{
			name:     "train low traffic",
			distance: 50,
			vehicle:  VehicleTrain,
			route:    RouteLowTraffic,
			expected: 80, // 0.16 * 50 * 10
		},
		{
			name:     "taxi long drive",
			distance: 20,
			vehicle:  VehicleTaxi,
			route:    RouteLongDrive,
			expected: 10, // 0.05 * 20 * 10
		},
		{
			name:     "cycle cost effective gets both multiplier and bonus",
			distance: 3,
			vehicle:  VehicleCycle,
			route:    RouteCostEffective,
			expected: 27, // round(0.2*3*10*2)=12, round(3*5)=15
		},
		{
			name:     "unknown vehicle uses the default factor",
			distance: 10,
			vehicle:  VehicleType("scooter"),
			route:    RouteFastest,
			expected: 10, // 0.1 * 10 * 10
		},
		{
			name:     "zero distance still earns the floor",
			distance: 0,
			vehicle:  VehicleBike,
			route:    RouteFastest,
			expected: MinPoints,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateGreenPoints(tt.distance, tt.vehicle, tt.route)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCalculateGreenPoints_Floor(t *testing.T) {
	for _, v := range VehicleTypeList {
		for _, r := range RouteTypeList {
			for _, d := range []float64{0, 0.01, 0.4, 1, 2.5, 10, 123.4} {
				got := CalculateGreenPoints(d, v, r)
				assert.GreaterOrEqual(t, got, MinPoints, "vehicle=%s route=%s distance=%v", v, r, d)
			}
		}
	}
}

func TestCalculateGreenPoints_Deterministic(t *testing.T) {
	first := CalculateGreenPoints(42.42, VehicleTrain, RouteCostEffective)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, CalculateGreenPoints(42.42, VehicleTrain, RouteCostEffective))
	}
}

func TestCalculateGreenPoints_ZeroEmissionMonotonic(t *testing.T) {
	for _, v := range []VehicleType{VehicleBike, VehicleCycle, VehicleWalk} {
		prev := 0
		for d := 0.0; d <= 50; d += 0.25 {
			got := CalculateGreenPoints(d, v, RouteLowTraffic)
			assert.GreaterOrEqual(t, got, prev, "vehicle=%s distance=%v", v, d)
			prev = got
		}
	}
}

func TestCalculateGreenPoints_CarFastestVsLowTraffic(t *testing.T) {
	for _, d := range []float64{5, 12.5, 30, 77, 250} {
		fastest := float64(CalculateGreenPoints(d, VehicleCar, RouteFastest))
		lowTraffic := float64(CalculateGreenPoints(d, VehicleCar, RouteLowTraffic))
		assert.LessOrEqual(t, math.Abs(fastest-lowTraffic*0.8), 1.0, "distance=%v", d)
	}
}

func TestMultiplier(t *testing.T) {
	assert.Equal(t, 2.0, Multiplier(VehicleCar, RouteCostEffective))
	assert.Equal(t, 2.0, Multiplier(VehicleWalk, RouteCostEffective))
	assert.Equal(t, 0.8, Multiplier(VehicleCar, RouteFastest))
	assert.Equal(t, 1.0, Multiplier(VehicleTaxi, RouteFastest))
	assert.Equal(t, 1.0, Multiplier(VehicleCar, RouteLongDrive))
}

func TestEstimateCO2(t *testing.T) {
	assert.Equal(t, 1.2, EstimateCO2(10, VehicleCar))
	assert.Equal(t, 0.0, EstimateCO2(10, VehicleWalk))
	assert.Equal(t, 0.049, EstimateCO2(1.234, VehicleTrain))
	assert.Equal(t, 0.0, EstimateCO2(-3, VehicleCar))
}

func TestParseTypes(t *testing.T) {
	v, err := ParseVehicleType("  Walk ")
	require.NoError(t, err)
	assert.Equal(t, VehicleWalk, v)

	_, err = ParseVehicleType("rocket")
	assert.Error(t, err)

	r, err := ParseRouteType("Cost Effective")
	require.NoError(t, err)
	assert.Equal(t, RouteCostEffective, r)

	r, err = ParseRouteType("high-traffic")
	require.NoError(t, err)
	assert.Equal(t, RouteLongDrive, r)

	r, err = ParseRouteType("low-traffic")
	require.NoError(t, err)
	assert.Equal(t, RouteLowTraffic, r)

	_, err = ParseRouteType("scenic")
	assert.Error(t, err)
}
