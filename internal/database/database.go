// Package database persists the catalog on SQLite or PostgreSQL through
// database/sql. Queries are written with "?" placeholders and rebound for
// PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every catalog statement. The same methods run inside and
// outside transactions.
type Queries struct {
	q       querier
	dialect Dialect
}

type DB struct {
	*Queries
	db *sql.DB
}

// Open connects to driver "sqlite" or "postgres".
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case "sqlite", "sqlite3", "":
		return OpenSQLite(dsn)
	case "postgres", "postgresql", "pgx":
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// OpenSQLite opens a single-connection pool. Pragmas travel in the DSN so
// a reopened connection gets them too.
func OpenSQLite(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &DB{Queries: &Queries{q: db, dialect: SQLite}, db: db}, nil
}

func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func OpenPostgres(dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &DB{Queries: &Queries{q: db, dialect: Postgres}, db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Dialect() Dialect { return d.dialect }

func (d *DB) Migrate(ctx context.Context) error {
	s := schema
	if d.dialect == Postgres {
		s = pgSchema
	}
	if _, err := d.db.ExecContext(ctx, s); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// WithTx runs fn in one transaction, committing only when fn returns nil.
func (d *DB) WithTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&Queries{q: tx, dialect: d.dialect}); err != nil {
		return err
	}
	return tx.Commit()
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.q.ExecContext(ctx, q.rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.q.QueryContext(ctx, q.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.q.QueryRowContext(ctx, q.rebind(query), args...)
}

// insert runs an INSERT and returns the generated value of idColumn.
func (q *Queries) insert(ctx context.Context, idColumn, query string, args ...any) (int64, error) {
	if q.dialect == Postgres {
		var id int64
		err := q.queryRow(ctx, query+" RETURNING "+idColumn, args...).Scan(&id)
		return id, err
	}
	res, err := q.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (q *Queries) rebind(query string) string {
	if q.dialect != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
