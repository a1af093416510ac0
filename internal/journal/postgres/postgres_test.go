package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/dawvox/internal/journal"
	"github.com/MrWong99/dawvox/internal/journal/postgres"
)

// testDSN skips the test unless DAWVOX_TEST_POSTGRES_DSN is set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("DAWVOX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DAWVOX_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS command_journal"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_AppendRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, intent := range []string{"track_mute", "undo"} {
		e := journal.Entry{
			ID:          intent,
			RunID:       "run",
			UtteranceID: uint64(i + 1),
			At:          base.Add(time.Duration(i) * time.Second),
			Intent:      intent,
			Status:      "executed",
			Duration:    time.Millisecond,
		}
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	// Same run and utterance: ignored.
	if err := s.Append(ctx, journal.Entry{ID: "dup", RunID: "run", UtteranceID: 1, At: base}); err != nil {
		t.Fatalf("duplicate Append: %v", err)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent = %d entries, want 2", len(got))
	}
	if got[0].Intent != "undo" || got[1].UtteranceID != 1 || got[1].Duration != time.Millisecond {
		t.Errorf("Recent = %+v", got)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	for range 2 {
		if err := postgres.Migrate(ctx, pool); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
	}
}
