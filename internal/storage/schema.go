package storage

import (
	"context"
	"fmt"
	"time"
)

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS content_items (
				kind         TEXT NOT NULL,
				id           TEXT NOT NULL,
				title        TEXT NOT NULL,
				url          TEXT NOT NULL DEFAULT '',
				description  TEXT NOT NULL DEFAULT '',
				categories   TEXT NOT NULL DEFAULT '[]',
				published_at BIGINT,
				starts_at    BIGINT,
				ends_at      BIGINT,
				location     TEXT NOT NULL DEFAULT '',
				price        TEXT NOT NULL DEFAULT '',
				search_text  TEXT NOT NULL DEFAULT '',
				updated_at   BIGINT NOT NULL,
				PRIMARY KEY (kind, id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_content_items_kind_starts ON content_items (kind, starts_at)`,
			`CREATE INDEX IF NOT EXISTS idx_content_items_kind_published ON content_items (kind, published_at)`,
		},
	},
}

// Migrate brings the schema up to date and returns the resulting version.
func Migrate(ctx context.Context, db DB, dialect Dialect) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at BIGINT NOT NULL
	)`); err != nil {
		return 0, wrapQueryError("create schema_migrations", err)
	}

	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return 0, err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return current, fmt.Errorf("migration %d: %w", m.version, wrapQueryError("exec", err))
			}
		}
		if _, err := db.ExecContext(ctx,
			dialect.Rebind(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`),
			m.version, time.Now().Unix(),
		); err != nil {
			return current, fmt.Errorf("record migration %d: %w", m.version, wrapQueryError("exec", err))
		}
		current = m.version
	}
	return current, nil
}

// SchemaVersion returns the highest applied migration, 0 for a fresh database.
func SchemaVersion(ctx context.Context, db DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, wrapQueryError("read schema version", err)
	}
	return version, nil
}
