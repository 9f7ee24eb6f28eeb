package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"farmledger/internal/core"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository stores users, sessions and every farm record in one SQLite file.
type SQLiteRepository struct {
	db         *sql.DB
	schemaWant uint
	now        func() time.Time
}

func dsn(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	want, err := latestMigration()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, schemaWant: want, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection and the migration state for readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return err
	}
	return r.checkSchema(ctx)
}

// notFound maps sql.ErrNoRows onto core.ErrNotFound, keeping the operation for context.
func notFound(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// conflict maps unique-constraint violations onto core.ErrConflict.
func conflict(op string, err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", op, core.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// expectOne turns a zero-row update or delete into core.ErrNotFound.
func expectOne(op string, res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDate(d core.Date) sql.NullString {
	return nullString(d.String())
}

func nullMoney(m core.Money) sql.NullInt64 {
	return sql.NullInt64{Int64: m.Cents, Valid: !m.IsZero()}
}

func dateFrom(ns sql.NullString) core.Date {
	if !ns.Valid {
		return core.Date{}
	}
	d, err := core.ParseDate(ns.String)
	if err != nil {
		return core.Date{}
	}
	return d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
