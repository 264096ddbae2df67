package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const repoTestPrefix = "db:repository_test"

var errFake = errors.New("fake db")

// fakeDB records what the repository sends and fails every read.
type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	querySQL string
	args     []any
	table    pgx.Identifier
	columns  []string
	copied   [][]any
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.NewCommandTag("DELETE 3"), nil
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.querySQL = sql
	f.args = args
	return nil, errFake
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (f *fakeDB) CopyFrom(_ context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	f.table = table
	f.columns = cols
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return 0, err
		}
		f.copied = append(f.copied, vals)
	}
	return int64(len(f.copied)), src.Err()
}

func TestInsertCalls(t *testing.T) {
	f := &fakeDB{}
	repo := NewRepository(f)
	ctx := context.Background()

	n, err := repo.InsertCalls(ctx, nil)
	if err != nil || n != 0 {
		t.Fatalf("%s - empty insert = (%d, %v), want (0, nil)", repoTestPrefix, n, err)
	}
	if f.table != nil {
		t.Fatalf("%s - empty insert should not touch the database", repoTestPrefix)
	}

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n, err = repo.InsertCalls(ctx, []CallRecord{
		{CallbackID: "cb-1", Method: "echo", Namespace: "default", Platform: "other", Thread: "main", Code: 1, DurationMs: 4, Created: created},
		{CallbackID: "cb-2", Method: "ghost", Namespace: "default", Code: -2, Message: "method ghost is not registered"},
	})
	if err != nil {
		t.Fatalf("%s - InsertCalls: %v", repoTestPrefix, err)
	}
	if n != 2 {
		t.Errorf("%s - expected 2 rows, got %d", repoTestPrefix, n)
	}
	if f.table.Sanitize() != `"bridge_call_log"` {
		t.Errorf("%s - copied into %s", repoTestPrefix, f.table.Sanitize())
	}
	if len(f.columns) != len(f.copied[0]) {
		t.Fatalf("%s - %d columns but %d values", repoTestPrefix, len(f.columns), len(f.copied[0]))
	}
	if f.copied[0][0] != "cb-1" || f.copied[0][10] != created {
		t.Errorf("%s - first row = %v", repoTestPrefix, f.copied[0])
	}
	if ts, ok := f.copied[1][10].(time.Time); !ok || ts.IsZero() {
		t.Errorf("%s - zero Created should be stamped, got %v", repoTestPrefix, f.copied[1][10])
	}
}

func TestRecentCalls_QueryShape(t *testing.T) {
	tests := []struct {
		name     string
		params   RecentCallsParams
		contains []string
		args     []any
	}{
		{
			name:     "defaults",
			params:   RecentCallsParams{},
			contains: []string{"ORDER BY created DESC", "LIMIT $1"},
			args:     []any{50},
		},
		{
			name:     "all filters",
			params:   RecentCallsParams{Method: "echo", ContainerID: "c1", OnlyFailures: true, Limit: 5},
			contains: []string{"method = $1", "container_id = $2", "code <> 1", "LIMIT $3"},
			args:     []any{"echo", "c1", 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeDB{}
			_, err := NewRepository(f).RecentCalls(context.Background(), tt.params)
			if !errors.Is(err, errFake) {
				t.Fatalf("%s - expected wrapped fake error, got %v", repoTestPrefix, err)
			}
			for _, s := range tt.contains {
				if !strings.Contains(f.querySQL, s) {
					t.Errorf("%s - query %q missing %q", repoTestPrefix, f.querySQL, s)
				}
			}
			if len(f.args) != len(tt.args) {
				t.Fatalf("%s - args = %v, want %v", repoTestPrefix, f.args, tt.args)
			}
			for i := range tt.args {
				if f.args[i] != tt.args[i] {
					t.Errorf("%s - arg %d = %v, want %v", repoTestPrefix, i, f.args[i], tt.args[i])
				}
			}
		})
	}
}

func TestDeleteCallsBefore(t *testing.T) {
	f := &fakeDB{}
	cutoff := time.Now().Add(-time.Hour)
	n, err := NewRepository(f).DeleteCallsBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("%s - DeleteCallsBefore: %v", repoTestPrefix, err)
	}
	if n != 3 {
		t.Errorf("%s - expected 3 rows affected, got %d", repoTestPrefix, n)
	}
	if f.execArgs[0][0] != cutoff {
		t.Errorf("%s - cutoff not passed through", repoTestPrefix)
	}
}

func TestUpsertMethods_NilKeys(t *testing.T) {
	f := &fakeDB{}
	err := NewRepository(f).UpsertMethods(context.Background(), []MethodRecord{{Name: "echo", Scope: "global"}})
	if err != nil {
		t.Fatalf("%s - UpsertMethods: %v", repoTestPrefix, err)
	}
	keys, ok := f.execArgs[0][4].([]string)
	if !ok || keys == nil {
		t.Errorf("%s - required_keys should be a non-nil slice, got %#v", repoTestPrefix, f.execArgs[0][4])
	}
}

func TestClearCallLog(t *testing.T) {
	f := &fakeDB{}
	if err := ClearCallLog(context.Background(), f); err != nil {
		t.Fatalf("%s - ClearCallLog: %v", repoTestPrefix, err)
	}
	if !strings.Contains(f.execSQL[0], "TRUNCATE TABLE bridge_call_log, bridge_methods") {
		t.Errorf("%s - unexpected SQL %q", repoTestPrefix, f.execSQL[0])
	}
}
