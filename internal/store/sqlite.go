package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the table operations shared by the store and its transactions.
type queries struct {
	q querier
}

// SQLiteStore is the authoritative local store.
type SQLiteStore struct {
	queries
	db   *sql.DB
	path string
}

// Tx is a unit of work opened by ExecuteTransaction. It must not be used after
// the callback returns.
type Tx struct {
	queries
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// It applies pragmas, runs migrations and pins the pool to a single
// connection so that at most one writer transaction is in flight.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite does not tolerate concurrent writers; a single connection also
	// keeps ":memory:" databases coherent across calls.
	db.SetMaxOpenConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{queries: queries{q: db}, db: db, path: dbPath}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database path the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.path
}

// ExecuteTransaction runs fn inside a transaction. The transaction commits when
// fn returns nil and rolls back when fn returns an error or panics; the error
// (or panic) is propagated to the caller.
func (s *SQLiteStore) ExecuteTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin transaction", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("transaction rollback failed",
				"component", "store",
				"error", rbErr,
			)
		}
	}()

	if err := fn(&Tx{queries: queries{q: sqlTx}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return storeErr("commit transaction", err)
	}
	committed = true
	return nil
}

// Backup writes a consistent copy of the database into dir and returns its path.
func (s *SQLiteStore) Backup(ctx context.Context, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("stockroom-%s.db", time.Now().UTC().Format("20060102T150405.000000000Z"))
	path := filepath.Join(dir, name)

	// VACUUM INTO does not accept bound parameters in every SQLite build.
	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO "+quoted); err != nil {
		return "", storeErr("vacuum into backup", err)
	}

	return path, nil
}

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored timestamp, logging rather than failing on bad data.
func parseTime(column, value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		slog.Warn("store: failed to parse timestamp",
			"column", column,
			"value", value,
			"error", err,
		)
	}
	return t
}
