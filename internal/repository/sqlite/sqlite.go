// Package sqlite implements repository.Store on SQLite.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of the SQLite C code: no CGo and
// no C compiler needed, so cross-compilation keeps working.
//
// CONCURRENCY:
// The pool is limited to ONE open connection. SQLite allows a single writer
// anyway, and with one connection every transaction runs to completion before
// the next begins. It also keeps a ":memory:" database alive for the lifetime
// of the *DB. The consequence: inside InTx, every query MUST go through the
// transaction-bound Store passed to fn. Using the outer Store there would wait
// forever for the connection the transaction holds.
//
// The schema lives in migrations/*.sql and is applied by goose on New.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/codeofclans/internal/apperror"
	"github.com/sakif/codeofclans/internal/dbx"
	"github.com/sakif/codeofclans/internal/repository"
	"github.com/sakif/codeofclans/internal/repository/sqlite/migrations"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// DB is the SQLite-backed store.
//
// A DB returned by New owns the pool (conn). The DB handed to an InTx
// callback shares nothing but the transaction (q) and has conn == nil.
type DB struct {
	conn *sql.DB
	q    dbx.DBTX
}

// New opens the database at dbPath and applies pending migrations.
//
// dbPath examples:
//   - "data/clans.db" → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests)
func New(ctx context.Context, dbPath string) (*DB, error) {
	// "sqlite" is the driver name registered by modernc.org/sqlite.
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers in other processes (the CLI, backups) proceed during writes.
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. The cascades from accounts
	// to links, follows and check-ins depend on them.
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	if err := Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, q: conn}, nil
}

// Migrate applies every pending migration in migrations/.
func Migrate(ctx context.Context, conn *sql.DB) error {
	p, err := goose.NewProvider(goose.DialectSQLite3, conn, migrations.FS)
	if err != nil {
		return fmt.Errorf("sqlite: preparing migrations: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return nil
}

// Close closes the database connection pool. It is a no-op on a
// transaction-bound DB.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return nil
	}
	return db.conn.PingContext(ctx)
}

// InTx implements repository.Store.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if db.conn == nil {
		return fn(ctx, db)
	}
	return dbx.WithTx(ctx, db.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &DB{q: tx})
	})
}

// isConstraint reports whether err is a SQLite constraint violation with one
// of the given extended result codes.
func isConstraint(err error, codes ...int) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.Code() == c {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	return isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}

// writeErr maps a failed write to the apperror taxonomy.
func writeErr(err error, op, resource, id string) error {
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("sqlite: %s: %w", op, apperror.Conflict(resource, id))
	case isConstraint(err, sqlite3.SQLITE_CONSTRAINT_CHECK):
		return fmt.Errorf("sqlite: %s: %w", op, apperror.ValidationFailed(resource, "constraint failed: "+err.Error()))
	case isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY):
		return fmt.Errorf("sqlite: %s: %w", op, apperror.NotFound(resource, id))
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}

// readErr maps a failed single-row read.
func readErr(err error, resource, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(resource, id)
	}
	return fmt.Errorf("sqlite: getting %s %s: %w", resource, id, err)
}

// requireAffected turns a zero-row UPDATE or DELETE into ErrNotFound.
func requireAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
