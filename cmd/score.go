package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gogreen/score"
)

var inputPath string
var outputPath string

// RouteRow is one line of a batch scoring file.
type RouteRow struct {
	DistanceKm  float64
	VehicleType score.VehicleType
	RouteType   score.RouteType
}

var outputHeader = []string{"distance_km", "vehicle_type", "route_type", "green_points", "co2_kg"}

func scoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "score",
		Short:   "score routes from a CSV file",
		Long:    `read routes (distance_km,vehicle_type,route_type) from a CSV file and write them back with their green points and CO2 estimate`,
		Example: `gogreen score --input routes.csv --output points.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" || outputPath == "" {
				return cmd.Help()
			}

			inputFile, err := os.Open(inputPath)
			if err != nil {
				return err
			}
			defer func(inputFile *os.File) {
				if err := inputFile.Close(); err != nil {
					log.Printf("Failed to close input file: %v", err)
				}
			}(inputFile)

			csvContent, err := csv.NewReader(inputFile).ReadAll()
			if err != nil {
				return err
			}
			rows, err := ParseCSVToRouteRows(csvContent)
			if err != nil {
				return fmt.Errorf("failed to parse CSV: %w", err)
			}
			if len(rows) == 0 {
				return fmt.Errorf("no routes found in the CSV")
			}

			outputFile, err := os.Create(outputPath)
			if err != nil {
				return err
			}
			defer func(outputFile *os.File) {
				if err := outputFile.Close(); err != nil {
					log.Printf("Failed to close output file: %v", err)
				}
			}(outputFile)

			return WriteScoredRows(outputFile, rows)
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "csv input file path (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "csv output file path (required)")
	cmd.AddCommand(quoteCommand())
	return cmd
}

func quoteCommand() *cobra.Command {
	var (
		distance  float64
		vehicle   string
		routeType string
	)
	cmd := &cobra.Command{
		Use:     "quote",
		Short:   "score a single trip",
		Example: `gogreen score quote -d 10 -v walk -r fastest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if distance < 0 {
				return fmt.Errorf("distance must not be negative")
			}
			row := RouteRow{DistanceKm: distance, VehicleType: toVehicleType(vehicle), RouteType: toRouteType(routeType)}
			points := score.CalculateGreenPoints(row.DistanceKm, row.VehicleType, row.RouteType)
			co2 := score.EstimateCO2(row.DistanceKm, row.VehicleType)
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d points, %.3f kg CO2\n", points, co2)
			return err
		},
	}
	cmd.Flags().Float64VarP(&distance, "distance", "d", 0, "distance in km")
	cmd.Flags().StringVarP(&vehicle, "vehicle", "v", string(score.VehicleCar), "vehicle type")
	cmd.Flags().StringVarP(&routeType, "route", "r", string(score.RouteFastest), "route type")
	return cmd
}

// toVehicleType keeps unknown names so they score with the fallback factor.
func toVehicleType(s string) score.VehicleType {
	if v, err := score.ParseVehicleType(s); err == nil {
		return v
	}
	return score.VehicleType(strings.ToLower(strings.TrimSpace(s)))
}

func toRouteType(s string) score.RouteType {
	if r, err := score.ParseRouteType(s); err == nil {
		return r
	}
	return score.RouteType(strings.ToLower(strings.TrimSpace(s)))
}

// ParseCSVToRouteRows parses the rows after the header.
func ParseCSVToRouteRows(csvContent [][]string) ([]RouteRow, error) {
	if len(csvContent) == 0 {
		return nil, fmt.Errorf("CSV is empty")
	}

	dataRows := csvContent[1:]
	rows := make([]RouteRow, 0, len(dataRows))
	for i, row := range dataRows {
		if len(row) != 3 {
			return nil, fmt.Errorf("row %d: expected 3 columns, but got %d", i+2, len(row)) // +2 to account for the header row
		}

		distance, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: failed to convert distance '%s' to float: %w", i+2, row[0], err)
		}
		if distance < 0 {
			return nil, fmt.Errorf("row %d: negative distance %v", i+2, distance)
		}

		rows = append(rows, RouteRow{
			DistanceKm:  distance,
			VehicleType: toVehicleType(row[1]),
			RouteType:   toRouteType(row[2]),
		})
	}
	return rows, nil
}

// WriteScoredRows writes rows with their points and CO2 as CSV.
func WriteScoredRows(w io.Writer, rows []RouteRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(outputHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			strconv.FormatFloat(row.DistanceKm, 'f', -1, 64),
			string(row.VehicleType),
			string(row.RouteType),
			strconv.Itoa(score.CalculateGreenPoints(row.DistanceKm, row.VehicleType, row.RouteType)),
			strconv.FormatFloat(score.EstimateCO2(row.DistanceKm, row.VehicleType), 'f', 3, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
