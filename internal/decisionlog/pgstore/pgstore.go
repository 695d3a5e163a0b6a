package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/davidahmann/strix/internal/decisionlog"
)

var (
	table       = decisionlog.Postgres.DecisionsTable
	insertQuery = fmt.Sprintf(`INSERT INTO %s(id, logged_at, day, digest, verdict, policy_version, request_json, decision_json)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)`, table)
	recentQuery = fmt.Sprintf(`SELECT id, logged_at, day::text, digest, verdict, policy_version, request_json::text, decision_json::text
FROM %s ORDER BY seq DESC LIMIT $1`, table)
	pruneQuery = fmt.Sprintf(`DELETE FROM %s WHERE logged_at < $1`, table)
)

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Migrate brings the schema up to date and verifies it.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := decisionlog.Migrate(ctx, s.db, decisionlog.Postgres)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(decisionlog.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) Append(ctx context.Context, e decisionlog.Entry) error {
	return s.WithTx(ctx, func(tx decisionlog.Tx) error { return tx.InsertEntry(e) })
}

func (s *Store) Recent(ctx context.Context, limit int) ([]decisionlog.Entry, error) {
	if limit <= 0 {
		limit = decisionlog.DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, recentQuery, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []decisionlog.Entry
	for rows.Next() {
		var row decisionlog.Row
		if err := rows.Scan(&row.ID, &row.LoggedAt, &row.Day, &row.Digest, &row.Verdict, &row.PolicyVersion, &row.RequestJSON, &row.DecisionJSON); err != nil {
			return nil, err
		}
		entry, err := row.Entry()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, pruneQuery, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) InsertEntry(e decisionlog.Entry) error {
	row, err := decisionlog.ToRow(e)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(insertQuery,
		row.ID, row.LoggedAt, row.Day, row.Digest, row.Verdict, row.PolicyVersion, row.RequestJSON, row.DecisionJSON)
	return err
}

var _ decisionlog.Sink = (*Store)(nil)
