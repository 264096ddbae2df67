package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/morezero/sparkling-bridge/internal/config"
	"github.com/morezero/sparkling-bridge/pkg/db"
)

func loadDBConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := loadDBConfig()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return cfg, pool, nil
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the call log schema",
	}
	up := &cobra.Command{
		Use:   "up",
		Short: "Create the database when missing and run migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadDBConfig()
			if err != nil {
				return err
			}
			if err := db.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
				return err
			}
			pool, err := db.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			migrations, err := db.LoadMigrations(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("load migrations: %w", err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migrations.\n", len(migrations))
			return nil
		},
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			info, err := db.MigrationStatus(cmd.Context(), pool, cfg.MigrationPath)
			if err != nil {
				return err
			}
			printMigrationInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
	cmd.AddCommand(up, status)
	return cmd
}

func newClearCallsCmd() *cobra.Command {
	var before time.Duration
	cmd := &cobra.Command{
		Use:   "clear-calls",
		Short: "Truncate the call log, or delete rows older than --before",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, pool, err := openPool(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			if before <= 0 {
				if err := db.ClearCallLog(cmd.Context(), pool); err != nil {
					return fmt.Errorf("clear call log: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Call log cleared.")
				return nil
			}
			n, err := db.NewRepository(pool).DeleteCallsBefore(cmd.Context(), time.Now().Add(-before))
			if err != nil {
				return fmt.Errorf("delete calls: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d calls older than %s.\n", n, before)
			return nil
		},
	}
	cmd.Flags().DurationVar(&before, "before", 0, "keep calls newer than this age, e.g. 168h")
	return cmd
}

func printMigrationInfo(w io.Writer, info *db.MigrationInfo) {
	state := "applied"
	if !info.Applied {
		state = "pending"
	}
	fmt.Fprintf(w, "Schema: %s\n", state)
	for _, t := range info.Missing {
		fmt.Fprintf(w, "  missing table: %s\n", t)
	}
	fmt.Fprintf(w, "Migration files (%d):\n", len(info.Files))
	for _, f := range info.Files {
		fmt.Fprintf(w, "  %s\n", f)
	}
}
