// Package postgres stores journal entries in a PostgreSQL table, for setups
// that share one history across several machines.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/dawvox/internal/journal"
)

const ddl = `
CREATE TABLE IF NOT EXISTS command_journal (
    id           TEXT         PRIMARY KEY,
    run_id       TEXT         NOT NULL,
    utterance_id BIGINT       NOT NULL,
    at           TIMESTAMPTZ  NOT NULL DEFAULT now(),
    transcript   TEXT         NOT NULL DEFAULT '',
    language     TEXT         NOT NULL DEFAULT '',
    intent       TEXT         NOT NULL DEFAULT '',
    params       TEXT         NOT NULL DEFAULT '',
    match        TEXT         NOT NULL DEFAULT '',
    confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
    action       TEXT         NOT NULL DEFAULT '',
    mode         TEXT         NOT NULL DEFAULT '',
    status       TEXT         NOT NULL DEFAULT '',
    error        TEXT         NOT NULL DEFAULT '',
    feedback     TEXT         NOT NULL DEFAULT '',
    duration_ns  BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_command_journal_at
    ON command_journal (at);

CREATE UNIQUE INDEX IF NOT EXISTS idx_command_journal_run_utterance
    ON command_journal (run_id, utterance_id);
`

// Store is a PostgreSQL-backed journal.Store. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ journal.Store = (*Store)(nil)

// NewStore connects to dsn and creates the journal table if needed.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("journal postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("journal postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the journal table and its indexes. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("journal postgres: migrate: %w", err)
	}
	return nil
}

// Append implements [journal.Store]. A second entry for the same run and
// utterance is ignored.
func (s *Store) Append(ctx context.Context, e journal.Entry) error {
	const q = `
		INSERT INTO command_journal
		    (id, run_id, utterance_id, at, transcript, language, intent, params, match,
		     confidence, action, mode, status, error, feedback, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT DO NOTHING`

	_, err := s.pool.Exec(ctx, q,
		e.ID, e.RunID, int64(e.UtteranceID), e.At, e.Transcript, e.Language,
		e.Intent, e.Params, e.Match, e.Confidence, e.Action, e.Mode, e.Status,
		e.Error, e.Feedback, e.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("journal postgres: append: %w", err)
	}
	return nil
}

// Recent implements [journal.Store]. n <= 0 returns every entry.
func (s *Store) Recent(ctx context.Context, n int) ([]journal.Entry, error) {
	q := `
		SELECT id, run_id, utterance_id, at, transcript, language, intent, params, match,
		       confidence, action, mode, status, error, feedback, duration_ns
		FROM   command_journal
		ORDER  BY at DESC, id DESC`
	var args []any
	if n > 0 {
		q += "\n\t\tLIMIT $1"
		args = append(args, n)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal postgres: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (journal.Entry, error) {
		var (
			e          journal.Entry
			utterance  int64
			durationNS int64
		)
		if err := row.Scan(
			&e.ID, &e.RunID, &utterance, &e.At, &e.Transcript, &e.Language,
			&e.Intent, &e.Params, &e.Match, &e.Confidence, &e.Action, &e.Mode,
			&e.Status, &e.Error, &e.Feedback, &durationNS,
		); err != nil {
			return journal.Entry{}, err
		}
		e.UtteranceID = uint64(utterance)
		e.Duration = time.Duration(durationNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal postgres: scan rows: %w", err)
	}
	return entries, nil
}

// Close implements [journal.Store].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
