package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/davidahmann/strix/internal/decisionlog"
)

var (
	table       = decisionlog.SQLite.DecisionsTable
	insertQuery = fmt.Sprintf(`INSERT INTO %s(id, logged_at, day, digest, verdict, policy_version, request_json, decision_json)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`, table)
	recentQuery = fmt.Sprintf(`SELECT id, logged_at, day, digest, verdict, policy_version, request_json, decision_json
FROM %s ORDER BY seq DESC LIMIT ?`, table)
	pruneQuery = fmt.Sprintf(`DELETE FROM %s WHERE logged_at < ?`, table)
)

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate brings the schema up to date and verifies it.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := decisionlog.Migrate(ctx, s.db, decisionlog.SQLite)
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
		var (
			row      decisionlog.Row
			loggedAt string
		)
		if err := rows.Scan(&row.ID, &loggedAt, &row.Day, &row.Digest, &row.Verdict, &row.PolicyVersion, &row.RequestJSON, &row.DecisionJSON); err != nil {
			return nil, err
		}
		row.LoggedAt, err = time.Parse(decisionlog.TimeLayout, loggedAt)
		if err != nil {
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

// Prune relies on logged_at being stored in a fixed-width layout, so string
// order matches time order.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, pruneQuery, cutoff.UTC().Format(decisionlog.TimeLayout))
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
		row.ID, row.LoggedAt.Format(decisionlog.TimeLayout), row.Day, row.Digest, row.Verdict, row.PolicyVersion, row.RequestJSON, row.DecisionJSON)
	return err
}

var _ decisionlog.Sink = (*Store)(nil)
