package workspace

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/leporo/sqlf"
	"github.com/pkg/errors"

	canary "github.com/sandialabs/canary/api/v1"
)

// PostgresStore persists session summaries to a Postgres table, for
// installations that want cross-session history queryable outside the
// workspace's own JSON files. It is optional: nothing in this package
// requires it. Grounded on tools/postgres_migrator/main.go's
// `CREATE TABLE IF NOT EXISTS ... JSON` + pgx/v4/stdlib idiom, with
// leporo/sqlf's query builder in place of that file's hand-formatted SQL
// strings for the per-row inserts.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// OpenPostgresStore connects to dsn (a postgres:// connection string) and
// ensures the summary table exists.
func OpenPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres connection")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pinging postgres")
	}

	store := &PostgresStore{db: db, table: table}
	if err := store.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (p *PostgresStore) ensureTable(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+p.table+` (
    session_id TEXT,
    created_at TIMESTAMPTZ,
    finished_at TIMESTAMPTZ,
    status_counts JSON,
    total_cases INT
)`)
	if err != nil {
		return errors.Wrap(err, "creating session summary table")
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *PostgresStore) Close() error { return p.db.Close() }

// RecordSession appends s's current summary to the store as a new row, so
// the table accumulates a history of session outcomes over time.
func (p *PostgresStore) RecordSession(ctx context.Context, s *Session) error {
	s.mu.Lock()
	counts := statusCounts(s.Cases)
	finishedAt := s.record.FinishedAt
	createdAt := s.record.CreatedAt
	total := len(s.Cases)
	s.mu.Unlock()

	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return errors.Wrap(err, "marshaling status counts")
	}

	q := sqlf.InsertInto(p.table).
		Set("session_id", s.ID).
		Set("created_at", createdAt).
		Set("finished_at", finishedAt).
		Set("status_counts", string(countsJSON)).
		Set("total_cases", total)

	if _, err := q.ExecAndClose(ctx, p.db); err != nil {
		return errors.Wrapf(err, "recording session %s", s.ID)
	}
	return nil
}

func statusCounts(cases map[string]*canary.TestCase) map[canary.Status]int {
	counts := map[canary.Status]int{}
	for _, tc := range cases {
		counts[tc.Status]++
	}
	return counts
}
