package main

import (
	"context"
	"database/sql"
	"errors"

	"github.com/spf13/cobra"

	"brucewnd/api/internal/store"
)

func newMigrateCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), cc, func(db *sql.DB) error {
				return store.ApplyMigrations(cmd.Context(), db, cc.cfg.MigrationsDir, cc.logger)
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if steps < 1 {
				return errors.New("--steps must be at least 1")
			}
			return withDB(cmd.Context(), cc, func(db *sql.DB) error {
				return store.RollbackMigrations(cmd.Context(), db, cc.cfg.MigrationsDir, steps, cc.logger)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

func withDB(ctx context.Context, cc *commandContext, fn func(*sql.DB) error) error {
	if cc.cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	db, err := store.Open(ctx, cc.cfg.DatabaseURL, store.DefaultPoolOptions())
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
