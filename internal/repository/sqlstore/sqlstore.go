// Package sqlstore implements the repository interfaces on database/sql.
//
// TWO DIALECTS:
// Production runs on PostgreSQL through the pgx stdlib driver. Local
// development and the test suite run on SQLite through modernc.org/sqlite
// (pure Go, no C compiler needed). Queries are written once with ?
// placeholders and rebound to $1, $2, ... for PostgreSQL.
//
// The schema is managed by goose. Each dialect has its own migration
// directory embedded in the binary (see migrations/).
//
// DATABASE/SQL REMINDER:
//   - sql.DB is a connection pool, not a single connection
//   - always close *sql.Rows and check rows.Err() after the loop
//   - sql.ErrNoRows means "no match", not a failure
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	// Drivers register themselves with database/sql in their init().
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/sakif/recipebox/internal/repository"
	"github.com/sakif/recipebox/internal/repository/sqlstore/migrations"
)

// Dialect names the SQL backend.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	if d == SQLite {
		return "sqlite"
	}
	return "pgx"
}

// gooseDialect is the dialect name goose expects.
func (d Dialect) gooseDialect() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "postgres"
}

// ParseDialect accepts the values allowed for DB_DRIVER.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("sqlstore: unknown database driver %q", s)
	}
}

// Config selects the backend and how to reach it.
type Config struct {
	Dialect Dialect
	// DSN is a PostgreSQL connection string, or a SQLite file path
	// (":memory:" for a throwaway database).
	DSN string
}

// DB owns the connection pool and implements repository.UserRepository,
// repository.RecipeRepository and repository.Pinger.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

var (
	_ repository.UserRepository   = (*DB)(nil)
	_ repository.RecipeRepository = (*DB)(nil)
	_ repository.Pinger           = (*DB)(nil)
)

// Open connects, verifies the connection with a ping, and applies
// migrations.
//
// sql.Open does not dial; the ping makes a bad DSN or an unreachable server
// fail here instead of on the first request.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	db, err := Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}

	return db, nil
}

// Connect is Open without the migration step.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open(cfg.Dialect.driverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening database: %w", err)
	}

	if cfg.Dialect == SQLite {
		// An in-memory SQLite database exists per connection. Pinning the
		// pool to one connection keeps every query on the same database,
		// and it also serialises writers, which SQLite wants anyway.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging database: %w", err)
	}

	if cfg.Dialect == SQLite {
		// Foreign keys are OFF by default in SQLite.
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlstore: enabling foreign keys: %w", err)
		}
		if cfg.DSN != ":memory:" {
			if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
				conn.Close()
				return nil, fmt.Errorf("sqlstore: setting WAL mode: %w", err)
			}
		}
	}

	return New(conn, cfg.Dialect, logger), nil
}

// New wraps an existing pool. It does not ping or migrate; tests use it with
// sqlmock.
func New(conn *sql.DB, dialect Dialect, logger *slog.Logger) *DB {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return &DB{conn: conn, dialect: dialect, logger: logger}
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Dialect reports which backend this DB talks to.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return classify(err, "Database connection error")
	}
	return nil
}

// ServerVersion returns the backend's version string.
func (db *DB) ServerVersion(ctx context.Context) (string, error) {
	query := `SELECT version()`
	if db.dialect == SQLite {
		query = `SELECT sqlite_version()`
	}
	var version string
	if err := db.conn.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return "", fmt.Errorf("sqlstore: reading server version: %w", err)
	}
	return version, nil
}

// Migrate applies every pending goose migration for the dialect.
func (db *DB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{logger: db.logger})
	if err := goose.SetDialect(db.dialect.gooseDialect()); err != nil {
		return err
	}
	return goose.UpContext(ctx, db.conn, string(db.dialect))
}

// rebind rewrites ? placeholders to $n for PostgreSQL. Queries in this
// package never contain a literal '?', so a plain scan is enough.
func (db *DB) rebind(query string) string {
	if db.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// gooseLogger routes goose's printf-style output into slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "goose"))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "goose"))
	os.Exit(1)
}
