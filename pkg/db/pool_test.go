package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

const poolTestPrefix = "db:pool_test"

func TestNewPool_BadURL(t *testing.T) {
	for _, url := range []string{"", "invalid://not-a-valid-database-url", "postgres://%zz"} {
		pool, err := NewPool(context.Background(), url)
		if err == nil {
			pool.Close()
			t.Fatalf("%s - expected error for %q", poolTestPrefix, url)
		}
		if pool != nil {
			t.Errorf("%s - expected nil pool on error for %q", poolTestPrefix, url)
		}
	}
}

// failingExec fails the nth Exec.
type failingExec struct {
	fakeDB
	failAt int
}

func (f *failingExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if len(f.execSQL) == f.failAt {
		f.execSQL = append(f.execSQL, sql)
		return pgconn.CommandTag{}, errFake
	}
	return f.fakeDB.Exec(ctx, sql, args...)
}

func TestRunMigrations_AppliesInOrder(t *testing.T) {
	f := &fakeDB{}
	migrations := []Migration{
		{Name: "001_a.sql", SQL: "CREATE TABLE a ()"},
		{Name: "002_b.sql", SQL: "CREATE TABLE b ()"},
	}
	if err := RunMigrations(context.Background(), f, migrations); err != nil {
		t.Fatalf("%s - RunMigrations: %v", poolTestPrefix, err)
	}
	if len(f.execSQL) != 2 || f.execSQL[0] != migrations[0].SQL || f.execSQL[1] != migrations[1].SQL {
		t.Errorf("%s - executed %v", poolTestPrefix, f.execSQL)
	}
}

func TestRunMigrations_StopsAtFailure(t *testing.T) {
	f := &failingExec{failAt: 1}
	migrations := []Migration{
		{Name: "001_a.sql", SQL: "CREATE TABLE a ()"},
		{Name: "002_b.sql", SQL: "broken"},
		{Name: "003_c.sql", SQL: "CREATE TABLE c ()"},
	}
	err := RunMigrations(context.Background(), f, migrations)
	if !errors.Is(err, errFake) {
		t.Fatalf("%s - err = %v, want fake db error", poolTestPrefix, err)
	}
	if !strings.Contains(err.Error(), "002_b.sql") {
		t.Errorf("%s - error should name the failing migration: %v", poolTestPrefix, err)
	}
	if len(f.execSQL) != 2 {
		t.Errorf("%s - expected to stop after the failing migration, ran %d", poolTestPrefix, len(f.execSQL))
	}
}
