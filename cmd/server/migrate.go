package main

import (
	"fmt"

	"github.com/honeynil/GymMembershipMarket/internal/config"
	"github.com/honeynil/GymMembershipMarket/internal/infrastructure/database"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Connect(cmd.Context(), config.LoadDatabaseDSN(), database.DefaultOptions())
			if err != nil {
				return err
			}
			defer db.Close()
			return database.Migrate(db)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}
			db, err := database.Connect(cmd.Context(), config.LoadDatabaseDSN(), database.DefaultOptions())
			if err != nil {
				return err
			}
			defer db.Close()
			return database.Rollback(db, steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}
