package cmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gogreen/cmd"
	"gogreen/score"
)

func TestParseCSVToRouteRows(t *testing.T) {
	tests := []struct {
		name    string
		content [][]string
		want    []cmd.RouteRow
		wantErr bool
	}{
		{"empty", nil, nil, true},
		{"header only", [][]string{{"distance_km", "vehicle_type", "route_type"}}, []cmd.RouteRow{}, false},
		{
			"aliases and unknown vehicle",
			[][]string{
				{"distance_km", "vehicle_type", "route_type"},
				{"8", " Bike ", "cost effective"},
				{"2.5", "scooter", "fastest"},
			},
			[]cmd.RouteRow{
				{DistanceKm: 8, VehicleType: score.VehicleBike, RouteType: score.RouteCostEffective},
				{DistanceKm: 2.5, VehicleType: "scooter", RouteType: score.RouteFastest},
			},
			false,
		},
		{"wrong width", [][]string{{"h"}, {"1", "car"}}, nil, true},
		{"bad distance", [][]string{{"h"}, {"far", "car", "fastest"}}, nil, true},
		{"negative distance", [][]string{{"h"}, {"-1", "car", "fastest"}}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cmd.ParseCSVToRouteRows(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteScoredRows(t *testing.T) {
	var buf bytes.Buffer
	err := cmd.WriteScoredRows(&buf, []cmd.RouteRow{
		{DistanceKm: 10, VehicleType: score.VehicleCar, RouteType: score.RouteFastest},
		{DistanceKm: 10, VehicleType: score.VehicleWalk, RouteType: score.RouteFastest},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"distance_km,vehicle_type,route_type,green_points,co2_kg\n"+
			"10,car,fastest,6,1.200\n"+
			"10,walk,fastest,70,0.000\n",
		buf.String())
}

func TestScoreCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "routes.csv")
	out := filepath.Join(dir, "points.csv")
	require.NoError(t, os.WriteFile(in, []byte("distance_km,vehicle_type,route_type\n5,train,low-traffic\n"), 0o600))

	cmd.RootCmd.SetArgs([]string{"score", "-i", in, "-o", out})
	require.NoError(t, cmd.RootCmd.Execute())

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	// train: (0.2-0.04)*5*10 = 8
	assert.Contains(t, string(written), "5,train,low-traffic,8,0.200")
}

func TestQuoteCommand(t *testing.T) {
	var out bytes.Buffer
	cmd.RootCmd.SetOut(&out)
	cmd.RootCmd.SetArgs([]string{"score", "quote", "-d", "10", "-v", "walk", "-r", "fastest"})
	require.NoError(t, cmd.RootCmd.Execute())
	assert.Equal(t, "70 points, 0.000 kg CO2\n", out.String())
}
