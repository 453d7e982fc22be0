package cmd

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/spf13/cobra"

	"gogreen/config"
	"gogreen/db/pg"
	_ "gogreen/migration" // registers the Go migrations

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pressly/goose/v3"
)

// migrations are compiled in, goose only needs an existing directory
const migrationsDir = "."

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "migrate the postgres schema",
		Long:  `This command migrates the PostgreSQL schema used by the postgres store with goose`,
		Run: func(cmd *cobra.Command, args []string) {
			up, _ := cmd.Flags().GetBool("up")
			down, _ := cmd.Flags().GetBool("down")
			if cmd.Flags().Changed("down") && !cmd.Flags().Changed("up") {
				up = false
			}
			if up && down {
				_ = cmd.Help()
				return
			}

			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}
			connStr := pg.CreateDSN(cfg.Store.PostgresDSN)

			if err := goose.SetDialect("postgres"); err != nil {
				log.Fatalf("Failed to set goose dialect: %v", err)
			}

			db, err := sql.Open("postgres", connStr)
			if err != nil {
				log.Fatalf("Failed to open database: %v", err)
			}
			defer db.Close()

			pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer pingCancel()
			if err := db.PingContext(pingCtx); err != nil {
				log.Fatalf("Failed to ping database: %v", err)
			}
			log.Println("Successfully connected to the database.")

			ctx := context.Background()
			if up {
				log.Println("Running 'up' migrations...")
				if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
					log.Fatalf("Goose UpContext failed: %v", err)
				}
			} else if down {
				log.Println("Rolling back('down') the last migration...")
				if err := goose.DownContext(ctx, db, migrationsDir); err != nil {
					log.Fatalf("Goose DownContext failed: %v", err)
				}
			}
			log.Println("Checking migration status...")
			if err := goose.StatusContext(ctx, db, migrationsDir); err != nil {
				log.Fatalf("Goose StatusContext failed: %v", err)
			}
		},
	}

	cmd.Flags().BoolP("up", "u", true, "up the version of db")
	cmd.Flags().BoolP("down", "d", false, "down the version of db")
	cmd.Flags().String("config", "", "Path to a YAML config file")

	return cmd
}
