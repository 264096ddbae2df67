// Package db stores the bridge call log and method snapshot in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// schemaTables are created by the migrations; their presence means the schema is applied.
var schemaTables = []string{"bridge_call_log", "bridge_methods"}

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	// The audit writer is the only steady user; keep the pool small.
	config.MaxConns = 8
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// RunMigrations applies migrations in order. Each file must be idempotent.
func RunMigrations(ctx context.Context, db DBTX, migrations []Migration) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrations)))

	for _, m := range migrations {
		if _, err := db.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", logPrefix, m.Name, err)
		}
		slog.Debug(fmt.Sprintf("%s - Applied %s", logPrefix, m.Name))
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// MigrationInfo is the result of MigrationStatus.
type MigrationInfo struct {
	Applied bool
	// Missing lists schema tables that do not exist yet.
	Missing []string
	Files   []string
}

// MigrationStatus reports whether the schema tables exist and which migration files are available.
func MigrationStatus(ctx context.Context, db DBTX, migrationPath string) (*MigrationInfo, error) {
	const statusLogPrefix = "db:MigrationStatus"

	info := &MigrationInfo{}
	for _, table := range schemaTables {
		var exists bool
		err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
			table).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to check table %s: %w", statusLogPrefix, table, err)
		}
		if !exists {
			info.Missing = append(info.Missing, table)
		}
	}
	info.Applied = len(info.Missing) == 0

	migrations, err := LoadMigrations(migrationPath)
	if err != nil {
		return nil, fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}
	for _, m := range migrations {
		info.Files = append(info.Files, m.Name)
	}
	return info, nil
}
