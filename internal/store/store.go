// Package store owns the database connection and runs builder-generated
// statements against the users/posts schema.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/mailblog/internal/apperr"
	"github.com/starford/mailblog/internal/sqlbuilder"
)

// Table and view names.
const (
	TableUsers = "users"
	TablePosts = "posts"
	ViewPosts  = "vwposts"
)

// Store wraps the single connection a mailblog process uses.
type Store struct {
	conn    *sql.DB
	dialect sqlbuilder.Dialect
	dsn     string
}

// Open connects to the database described by dialect and dsn.
func Open(ctx context.Context, dialect sqlbuilder.Dialect, dsn string) (*Store, error) {
	driver, source, err := driverSource(dialect, dsn)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open(driver, source)
	if err != nil {
		return nil, storeErr("open db", err)
	}
	// One-shot process: a single connection, no pool.
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, storeErr("ping", err)
	}
	return newStore(conn, dialect, dsn), nil
}

func newStore(conn *sql.DB, dialect sqlbuilder.Dialect, dsn string) *Store {
	return &Store{conn: conn, dialect: dialect, dsn: dsn}
}

func driverSource(dialect sqlbuilder.Dialect, dsn string) (string, string, error) {
	switch dialect {
	case sqlbuilder.SQLite:
		// _txlock=immediate takes the write lock at BEGIN so concurrent
		// deliveries serialize instead of racing on account names.
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return "sqlite3", dsn + sep + "_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", nil
	case sqlbuilder.Postgres:
		return "pgx", dsn, nil
	}
	return "", "", fmt.Errorf("store: unsupported dialect %q", dialect)
}

// Dialect returns the SQL dialect of the connection.
func (s *Store) Dialect() sqlbuilder.Dialect {
	return s.dialect
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Begin starts the transaction that carries every write of one invocation.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	var opts *sql.TxOptions
	if s.dialect == sqlbuilder.Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	tx, err := s.conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	return &Tx{tx: tx, b: sqlbuilder.New(s.dialect)}, nil
}

// InTx runs fn in a transaction and commits if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Tx runs statements inside one database transaction.
type Tx struct {
	tx *sql.Tx
	b  sqlbuilder.Builder
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Insert adds one row to table.
func (t *Tx) Insert(ctx context.Context, table string, fields sqlbuilder.Columns) error {
	st, err := t.b.Insert(table, fields)
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, st.SQL, st.Args...); err != nil {
		return storeErr("insert "+table, err)
	}
	return nil
}

// Update changes matching rows and returns how many were affected.
func (t *Tx) Update(ctx context.Context, table string, fields, where sqlbuilder.Columns) (int64, error) {
	st, err := t.b.Update(table, fields, where)
	if err != nil {
		return 0, err
	}
	return t.exec(ctx, "update "+table, st)
}

// Delete removes matching rows and returns how many were affected.
func (t *Tx) Delete(ctx context.Context, table string, where sqlbuilder.Columns) (int64, error) {
	st, err := t.b.Delete(table, where)
	if err != nil {
		return 0, err
	}
	return t.exec(ctx, "delete from "+table, st)
}

func (t *Tx) exec(ctx context.Context, op string, st sqlbuilder.Statement) (int64, error) {
	res, err := t.tx.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, storeErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeErr(op, err)
	}
	return n, nil
}

// Select runs q and returns a cursor over the result. No matching rows is
// not an error.
func (t *Tx) Select(ctx context.Context, q sqlbuilder.Query) (*Rows, error) {
	st, err := t.b.Select(q)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, storeErr("select from "+strings.Join(q.From, ","), err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, storeErr("columns", err)
	}
	return &Rows{rows: rows, cols: cols}, nil
}

// First returns the first row of q, if any.
func (t *Tx) First(ctx context.Context, q sqlbuilder.Query) (Row, bool, error) {
	q.Limit = 1
	rows, err := t.Select(ctx, q)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, false, rows.Err()
	}
	return rows.Row(), true, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %w", op, apperr.ErrStore, err)
}
