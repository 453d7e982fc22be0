package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upInitRouteRecords, downInitRouteRecords)
}

func upInitRouteRecords(ctx context.Context, tx *sql.Tx) error {
	// No foreign key to users: a route is kept even when the owner record is missing.
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE gogreen.route_records (
			id UUID PRIMARY KEY,
			seq BIGSERIAL NOT NULL,
			user_id UUID NOT NULL,
			start_lat DOUBLE PRECISION NOT NULL,
			start_lon DOUBLE PRECISION NOT NULL,
			end_lat DOUBLE PRECISION NOT NULL,
			end_lon DOUBLE PRECISION NOT NULL,
			distance_km DOUBLE PRECISION NOT NULL,
			duration VARCHAR(64) NOT NULL DEFAULT '',
			co2_kg NUMERIC(10,3) NOT NULL DEFAULT 0,
			vehicle_type VARCHAR(32) NOT NULL,
			route_type VARCHAR(32) NOT NULL,
			green_points INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
		);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		CREATE INDEX idx_route_records_user_created
			ON gogreen.route_records (user_id, created_at DESC, seq DESC);
	`)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		CREATE INDEX idx_route_records_created
			ON gogreen.route_records (created_at DESC, seq DESC);
	`)
	return err
}

func downInitRouteRecords(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS gogreen.route_records;`)
	return err
}
