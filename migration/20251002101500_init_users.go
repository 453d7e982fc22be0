package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upInitUsers, downInitUsers)
}

func upInitUsers(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS gogreen;`)
	if err != nil {
		return err
	}

	// green_score stays NULL for rows that never had a score written
	_, err = tx.ExecContext(ctx, `
		CREATE TABLE gogreen.users (
			id UUID PRIMARY KEY,
			username VARCHAR(255) NOT NULL DEFAULT '',
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			profile_image_url TEXT NOT NULL DEFAULT '',
			green_score BIGINT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

func downInitUsers(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS gogreen.users;`)
	return err
}
