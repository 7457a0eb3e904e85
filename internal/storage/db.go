package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Dialect is the SQL flavour of a connection.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name to a dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported database driver: %s", driver)
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// Rebind rewrites ? placeholders to $n for Postgres.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
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

// Options configures Open.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// JournalMode is applied to SQLite databases (WAL by default).
	JournalMode string
	// PingAttempts bounds the startup connectivity check.
	PingAttempts uint64
	PingBackoff  time.Duration
}

// Open opens a database and waits until it answers a ping, retrying with
// exponential backoff so the service can start alongside its database.
func Open(ctx context.Context, opts Options, logger *observability.Logger) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(opts.Driver)
	if err != nil {
		return nil, "", err
	}
	if opts.DSN == "" {
		return nil, "", fmt.Errorf("open %s database: empty dsn", dialect)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	db, err := sql.Open(dialect.DriverName(), opts.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	attempts := opts.PingAttempts
	if attempts == 0 {
		attempts = 5
	}
	backoffBase := opts.PingBackoff
	if backoffBase <= 0 {
		backoffBase = 200 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(backoffBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := db.PingContext(ctx); pingErr != nil {
			logger.Warn().Err(pingErr).Str("driver", string(dialect)).Msg("Database not ready, retrying")
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s database: %w: %w", dialect, content.ErrUnavailable, err)
	}

	if dialect == DialectSQLite {
		mode := opts.JournalMode
		if mode == "" {
			mode = "WAL"
		}
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode="+mode); err != nil {
			logger.Warn().Err(err).Str("journal_mode", mode).Msg("Failed to set SQLite journal mode")
		}
	}

	logger.Debug().Str("driver", string(dialect)).Msg("Database connection ready")
	return db, dialect, nil
}
