// Package storage opens the collection's SQLite file and mediates all
// access through a proxy that owns one long-lived transaction. The
// proxy tracks a write dirty-flag and the col.mod value observed at
// transaction start, which the collection's save logic uses to decide
// whether anything needs committing.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/storage/migrations"
)

// DB wraps the SQLite handle behind a single open-ended transaction.
// While the transaction is open every statement routes through it;
// mutating statements flip the dirty flag. DB satisfies dbx.DBTX.
//
// DB is not goroutine-safe. The collection serializes all access.
type DB struct {
	sql         *sql.DB
	tx          *sql.Tx
	mod         bool
	lastBeginAt int64

	stats Stats
}

// Stats counts transaction boundaries crossed since Open. Tests and
// diagnostics use it to assert that clean saves commit nothing.
type Stats struct {
	Begins    int
	Commits   int
	Rollbacks int
}

// Open opens (creating if needed) the collection file at path and
// brings its schema up to date. No transaction is open on return.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open collection db: %w", err)
	}
	// One connection keeps the open transaction and every read on the
	// same session.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping collection db: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate collection db: %w", err)
	}
	return &DB{sql: db}, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Unwrap exposes the underlying handle for one-shot work outside the
// collection transaction, such as seeding a fresh file via dbx.WithTx.
func (d *DB) Unwrap() *sql.DB {
	return d.sql
}

// ExecContext implements dbx.DBTX, routing through the open
// transaction when there is one.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	d.sniffWrite(query)
	if d.tx != nil {
		return d.tx.ExecContext(ctx, query, args...)
	}
	return d.sql.ExecContext(ctx, query, args...)
}

// QueryContext implements dbx.DBTX.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if d.tx != nil {
		return d.tx.QueryContext(ctx, query, args...)
	}
	return d.sql.QueryContext(ctx, query, args...)
}

// QueryRowContext implements dbx.DBTX.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if d.tx != nil {
		return d.tx.QueryRowContext(ctx, query, args...)
	}
	return d.sql.QueryRowContext(ctx, query, args...)
}

// sniffWrite flips the dirty flag on mutating statements. Matching the
// statement verb is coarse but covers every write the collection
// issues, including "insert or replace".
func (d *DB) sniffWrite(query string) {
	q := strings.TrimSpace(query)
	if len(q) < 6 {
		return
	}
	switch strings.ToLower(q[:6]) {
	case "insert", "update", "delete":
		d.mod = true
	}
}

// Begin opens the long-lived transaction and snapshots col.mod so the
// collection can later tell whether the open window saw changes.
func (d *DB) Begin(ctx context.Context) error {
	if d.tx != nil {
		return common.ErrTransactionOpen
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	d.tx = tx
	d.stats.Begins++

	var mod int64
	err = tx.QueryRowContext(ctx, "select mod from col").Scan(&mod)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read col.mod at begin: %w", err)
	}
	d.lastBeginAt = mod
	return nil
}

// Commit commits the open transaction.
func (d *DB) Commit() error {
	if d.tx == nil {
		return common.ErrNoTransaction
	}
	if err := d.tx.Commit(); err != nil {
		d.tx = nil
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	d.tx = nil
	d.stats.Commits++
	return nil
}

// Rollback discards the open transaction.
func (d *DB) Rollback() error {
	if d.tx == nil {
		return common.ErrNoTransaction
	}
	err := d.tx.Rollback()
	d.tx = nil
	if err != nil {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	d.stats.Rollbacks++
	return nil
}

// InTransaction reports whether the long-lived transaction is open.
func (d *DB) InTransaction() bool {
	return d.tx != nil
}

// Mod reports whether a mutating statement ran since the flag was last
// cleared.
func (d *DB) Mod() bool { return d.mod }

// MarkMod flips the dirty flag without touching the database. Used for
// in-memory state (like deck caches) that must force the next save.
func (d *DB) MarkMod() { d.mod = true }

// ClearMod resets the dirty flag, normally right after a save.
func (d *DB) ClearMod() { d.mod = false }

// LastBeginAt returns the col.mod value observed when the current
// transaction window opened.
func (d *DB) LastBeginAt() int64 { return d.lastBeginAt }

// Stats returns transaction counters accumulated since Open.
func (d *DB) Stats() Stats { return d.stats }

// Scalar scans the first column of the first row into dest. A query
// with no rows leaves dest unchanged and returns nil.
func (d *DB) Scalar(ctx context.Context, dest any, query string, args ...any) error {
	err := d.QueryRowContext(ctx, query, args...).Scan(dest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to scan scalar: %w", err)
	}
	return nil
}

// List returns the first column of every matching row.
func (d *DB) List(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := d.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query list: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan list row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate list rows: %w", err)
	}
	return out, nil
}

// Close rolls back any open transaction and closes the file.
func (d *DB) Close() error {
	if d.tx != nil {
		_ = d.Rollback()
	}
	return d.sql.Close()
}
