// Package db stores groups, expenses, settlement tasks and reminders in
// PostgreSQL or SQLite.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrationsFS embed.FS

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type dialect struct {
	name string
	// appended to the SELECT that locks pending tasks
	forUpdate string
	snapshot  *sql.TxOptions
	numbered  bool
}

var (
	postgresDialect = dialect{
		name:      "postgres",
		forUpdate: " FOR UPDATE",
		snapshot:  &sql.TxOptions{Isolation: sql.LevelRepeatableRead},
		numbered:  true,
	}
	sqliteDialect = dialect{name: "sqlite3"}
)

// rebind rewrites ? placeholders to $1, $2, ... for postgres.
func (d dialect) rebind(query string) string {
	if !d.numbered {
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

// Store implements Repository on database/sql. Postgres connections come
// from a pgx pool.
type Store struct {
	db      *sql.DB
	q       DBTX
	dialect dialect
	closeFn func()
}

var _ Repository = (*Store)(nil)

// Open connects to the database named by url. postgres:// and postgresql://
// use pgx; sqlite://path and file: URLs use SQLite.
func Open(ctx context.Context, url string) (*Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return openPostgres(ctx, url)
	case strings.HasPrefix(url, "sqlite://"):
		return openSQLite(ctx, strings.TrimPrefix(url, "sqlite://"))
	case strings.HasPrefix(url, "file:"):
		return openSQLite(ctx, url)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, url)
	}
}

func openPostgres(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	return &Store{
		db:      sqlDB,
		q:       sqlDB,
		dialect: postgresDialect,
		closeFn: pool.Close,
	}, nil
}

func openSQLite(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrUnsupportedScheme)
	}
	if !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("can not create database directory %s: %w", dir, err)
			}
		}
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("can not open database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("can not connect with database: %w", err)
	}
	return &Store{db: sqlDB, q: sqlDB, dialect: sqliteDialect}, nil
}

// Migrate applies every pending embedded migration.
func (s *Store) Migrate(ctx context.Context) error {
	var (
		driver database.Driver
		err    error
		dir    string
	)
	switch s.dialect.name {
	case postgresDialect.name:
		dir = "migrations/postgres"
		driver, err = migratepgx.WithInstance(s.db, &migratepgx.Config{})
	default:
		dir = "migrations/sqlite"
		driver, err = sqlite3.WithInstance(s.db, &sqlite3.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to set up migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, s.dialect.name, driver)
	if err != nil {
		return fmt.Errorf("failed to set up migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			return fmt.Errorf("migration failed: dirty database version %d", dirty.Version)
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// execTx runs fn against a store bound to one transaction.
func (s *Store) execTx(ctx context.Context, opts *sql.TxOptions, fn func(*Store) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	txStore := &Store{db: s.db, q: tx, dialect: s.dialect}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %v, rb err: %v", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.closeFn != nil {
		s.closeFn()
	}
	return err
}
