package decisionlog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// ErrSchemaMismatch means the decisions table is missing or lacks a column
// the SQL sinks read or write.
var ErrSchemaMismatch = errors.New("decision log schema mismatch")

// Dialect is how one SQL backend lays out the decision log.
type Dialect struct {
	Name string
	// DecisionsTable is the table the sink appends to and prunes.
	DecisionsTable string

	migrations      string
	versionsTable   string
	appliedAtColumn string
	appliedAt       func(time.Time) any
	bind            func(n int) string
}

var (
	SQLite = Dialect{
		Name:            "sqlite",
		DecisionsTable:  "decisions",
		migrations:      "migrations/sqlite",
		versionsTable:   "schema_migrations",
		appliedAtColumn: "TEXT",
		appliedAt:       func(t time.Time) any { return t.Format(TimeLayout) },
		bind:            func(int) string { return "?" },
	}
	Postgres = Dialect{
		Name:            "postgres",
		DecisionsTable:  "strix_decisions",
		migrations:      "migrations/postgres",
		versionsTable:   "strix_schema_migrations",
		appliedAtColumn: "TIMESTAMPTZ",
		appliedAt:       func(t time.Time) any { return t },
		bind:            func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

// DecisionColumns lists the columns every SQL sink relies on.
var DecisionColumns = []string{
	"seq", "id", "logged_at", "day", "digest", "verdict", "policy_version", "request_json", "decision_json",
}

// Migrate applies the dialect's pending migrations, one transaction each, and
// then verifies the decisions table. It returns the versions applied by this
// call; a fully migrated database yields none.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("missing db")
	}
	if d.migrations == "" {
		return nil, fmt.Errorf("unsupported dialect: %q", d.Name)
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  version TEXT PRIMARY KEY,\n  applied_at %s NOT NULL\n)", d.versionsTable, d.appliedAtColumn)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("%s migrations table: %w", d.Name, err)
	}

	// An existing table must already fit; migrations only create missing ones.
	if columns, err := tableColumns(ctx, db, d); err == nil {
		if err := checkColumns(d, columns); err != nil {
			return nil, err
		}
	}

	files, err := migrationFiles(d)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, file := range files {
		version := strings.TrimSuffix(path.Base(file), ".sql")
		ok, err := applyMigration(ctx, db, d, file, version)
		if err != nil {
			return applied, fmt.Errorf("%s migration %s: %w", d.Name, version, err)
		}
		if ok {
			applied = append(applied, version)
		}
	}
	return applied, VerifySchema(ctx, db, d)
}

// applyMigration claims version in the versions table and runs the file in
// the same transaction, so a failed migration is retried on the next start.
func applyMigration(ctx context.Context, db *sql.DB, d Dialect, file, version string) (bool, error) {
	contents, err := migrationsFS.ReadFile(file)
	if err != nil {
		return false, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	claim := fmt.Sprintf("INSERT INTO %s(version, applied_at) VALUES(%s, %s) ON CONFLICT(version) DO NOTHING",
		d.versionsTable, d.bind(1), d.bind(2))
	res, err := tx.ExecContext(ctx, claim, version, d.appliedAt(time.Now().UTC()))
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		_ = tx.Rollback()
		return false, err
	}
	if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
		_ = tx.Rollback()
		return false, err
	}
	return true, tx.Commit()
}

// VerifySchema checks that the decisions table carries DecisionColumns.
func VerifySchema(ctx context.Context, db *sql.DB, d Dialect) error {
	columns, err := tableColumns(ctx, db, d)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaMismatch, d.DecisionsTable, err)
	}
	return checkColumns(d, columns)
}

func tableColumns(ctx context.Context, db *sql.DB, d Dialect) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", d.DecisionsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.Columns()
}

func checkColumns(d Dialect, columns []string) error {
	for _, want := range DecisionColumns {
		if !slices.Contains(columns, want) {
			return fmt.Errorf("%w: %s has no column %q", ErrSchemaMismatch, d.DecisionsTable, want)
		}
	}
	return nil
}

func migrationFiles(d Dialect) ([]string, error) {
	names, err := fs.Glob(migrationsFS, path.Join(d.migrations, "*.sql"))
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no %s migrations embedded", d.Name)
	}
	slices.Sort(names)
	return names, nil
}
