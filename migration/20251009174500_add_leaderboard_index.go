package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upAddLeaderboardIndex, downAddLeaderboardIndex)
}

func upAddLeaderboardIndex(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE INDEX idx_users_leaderboard
			ON gogreen.users ((COALESCE(green_score, 0)) DESC, username ASC);
	`)
	return err
}

func downAddLeaderboardIndex(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP INDEX IF EXISTS gogreen.idx_users_leaderboard;`)
	return err
}
