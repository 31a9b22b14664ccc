package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/usbsniff/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the capture database schema",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database file (defaults to db_path from the config)")

	open := func() (*db.DB, error) {
		path := dbPath
		if path == "" {
			path = a.cfg.GetDBPath()
		}
		if path == "" {
			return nil, errors.New("no database: set --db or db_path")
		}
		return db.OpenDB(path)
	}
	withDB := func(fn func(*cobra.Command, *db.DB, []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			database, err := open()
			if err != nil {
				return err
			}
			defer database.Close()
			return fn(cmd, database, args)
		}
	}
	parseVersion := func(s string) (uint, error) {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid version %q: %w", s, err)
		}
		return uint(v), nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, database *db.DB, _ []string) error {
				if err := database.MigrateUp(db.MigrationsFS()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "all migrations applied")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, database *db.DB, _ []string) error {
				return database.MigrateDown(db.MigrationsFS())
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show current and latest schema versions",
			Args:  cobra.NoArgs,
			RunE: withDB(func(cmd *cobra.Command, database *db.DB, _ []string) error {
				st, err := database.GetMigrationStatus(db.MigrationsFS())
				if err != nil {
					return err
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(st)
			}),
		},
		&cobra.Command{
			Use:   "to VERSION",
			Short: "Migrate up or down to VERSION",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, database *db.DB, args []string) error {
				v, err := parseVersion(args[0])
				if err != nil {
					return err
				}
				return database.MigrateTo(db.MigrationsFS(), v)
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: withDB(func(cmd *cobra.Command, database *db.DB, args []string) error {
				v, err := parseVersion(args[0])
				if err != nil {
					return err
				}
				return database.MigrateForce(db.MigrationsFS(), int(v))
			}),
		},
	)
	return cmd
}
