package db

import (
	"context"
	"fmt"
	"log/slog"
)

const clearLogPrefix = "db:clear"

// ClearCallLog truncates the call log and the method snapshot. Schema is preserved; RESTART IDENTITY
// resets the id sequence.
func ClearCallLog(ctx context.Context, db DBTX) error {
	slog.Info(fmt.Sprintf("%s - Clearing bridge tables", clearLogPrefix))

	_, err := db.Exec(ctx, `TRUNCATE TABLE bridge_call_log, bridge_methods RESTART IDENTITY`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Bridge tables cleared", clearLogPrefix))
	return nil
}
