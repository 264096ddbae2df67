package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const repoLogPrefix = "db:repository"

// DBTX is the subset of pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Repository provides database access for the call log and method snapshot.
type Repository struct {
	db DBTX
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// =========================================================================
// CALL LOG
// =========================================================================

// InsertCalls bulk-inserts records with COPY and returns the number written.
func (r *Repository) InsertCalls(ctx context.Context, records []CallRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		created := rec.Created
		if created.IsZero() {
			created = time.Now().UTC()
		}
		rows = append(rows, []any{
			rec.CallbackID, rec.Method, rec.Namespace, rec.ContainerID, rec.Platform, rec.Thread,
			rec.Code, rec.Message, rec.BusinessHandlerHit, rec.DurationMs, created,
		})
	}
	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"bridge_call_log"}, callLogColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("%s - copy %d call records: %w", repoLogPrefix, len(records), err)
	}
	slog.Debug(fmt.Sprintf("%s - InsertCalls wrote %d rows", repoLogPrefix, n))
	return n, nil
}

// RecentCallsParams holds parameters for RecentCalls.
type RecentCallsParams struct {
	Method      string
	ContainerID string
	// OnlyFailures skips successful calls.
	OnlyFailures bool
	Limit        int
}

// RecentCalls lists the newest call records matching params.
func (r *Repository) RecentCalls(ctx context.Context, params RecentCallsParams) ([]CallRecord, error) {
	limit := params.Limit
	if limit < 1 {
		limit = 50
	}

	query := `SELECT id, ` + strings.Join(callLogColumns, ", ") + ` FROM bridge_call_log WHERE 1=1`
	args := []any{}
	argIdx := 1

	if params.Method != "" {
		query += fmt.Sprintf(` AND method = $%d`, argIdx)
		args = append(args, params.Method)
		argIdx++
	}
	if params.ContainerID != "" {
		query += fmt.Sprintf(` AND container_id = $%d`, argIdx)
		args = append(args, params.ContainerID)
		argIdx++
	}
	if params.OnlyFailures {
		query += ` AND code <> 1`
	}
	query += fmt.Sprintf(` ORDER BY created DESC, id DESC LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - RecentCalls: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var rec CallRecord
		if err := rows.Scan(&rec.ID, &rec.CallbackID, &rec.Method, &rec.Namespace, &rec.ContainerID,
			&rec.Platform, &rec.Thread, &rec.Code, &rec.Message, &rec.BusinessHandlerHit,
			&rec.DurationMs, &rec.Created); err != nil {
			return nil, fmt.Errorf("%s - scan call record: %w", repoLogPrefix, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountByCode groups calls created at or after since by result code.
func (r *Repository) CountByCode(ctx context.Context, since time.Time) ([]CodeCount, error) {
	rows, err := r.db.Query(ctx,
		`SELECT code, COUNT(*) FROM bridge_call_log WHERE created >= $1 GROUP BY code ORDER BY code DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("%s - CountByCode: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []CodeCount
	for rows.Next() {
		var c CodeCount
		if err := rows.Scan(&c.Code, &c.Count); err != nil {
			return nil, fmt.Errorf("%s - scan code count: %w", repoLogPrefix, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCallsBefore removes call records older than cutoff and returns how many went.
func (r *Repository) DeleteCallsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM bridge_call_log WHERE created < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s - DeleteCallsBefore: %w", repoLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Deleted %d call records before %s", repoLogPrefix, tag.RowsAffected(), cutoff.Format(time.RFC3339)))
	return tag.RowsAffected(), nil
}

// =========================================================================
// METHOD SNAPSHOT
// =========================================================================

// UpsertMethods records the current registrations.
func (r *Repository) UpsertMethods(ctx context.Context, methods []MethodRecord) error {
	now := time.Now().UTC()
	for _, m := range methods {
		keys := m.RequiredKeys
		if keys == nil {
			keys = []string{}
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO bridge_methods (name, scope, shape, thread, required_keys, lazy, description, modified)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (name) DO UPDATE SET
			   scope = $2, shape = $3, thread = $4, required_keys = $5, lazy = $6, description = $7, modified = $8`,
			m.Name, m.Scope, m.Shape, m.Thread, keys, m.Lazy, m.Description, now)
		if err != nil {
			return fmt.Errorf("%s - upsert method %s: %w", repoLogPrefix, m.Name, err)
		}
	}
	slog.Info(fmt.Sprintf("%s - Recorded %d methods", repoLogPrefix, len(methods)))
	return nil
}

// ListMethods returns the recorded methods ordered by name.
func (r *Repository) ListMethods(ctx context.Context) ([]MethodRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT name, scope, shape, thread, required_keys, lazy, description, modified
		 FROM bridge_methods ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%s - ListMethods: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []MethodRecord
	for rows.Next() {
		var m MethodRecord
		if err := rows.Scan(&m.Name, &m.Scope, &m.Shape, &m.Thread, &m.RequiredKeys, &m.Lazy, &m.Description, &m.Modified); err != nil {
			return nil, fmt.Errorf("%s - scan method: %w", repoLogPrefix, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
