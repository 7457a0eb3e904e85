package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/content"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrInvalid  = errors.New("invalid content item")
)

const contentColumns = `kind, id, title, url, description, categories, published_at, starts_at, ends_at, location, price`

// ContentRepository stores catalog items and implements content.Store.
type ContentRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewContentRepository creates a new content repository.
func NewContentRepository(db *sql.DB, dialect Dialect) *ContentRepository {
	return &ContentRepository{db: db, dialect: dialect}
}

// Dialect returns the repository's SQL dialect.
func (r *ContentRepository) Dialect() Dialect {
	return r.dialect
}

// Search returns items of q.Kind matching any keyword term in title,
// description, categories or url. Events are ordered soonest first, other
// kinds by the number of matched terms so the limit keeps the closest
// matches regardless of age. Ranking happens in the scorer.
func (r *ContentRepository) Search(ctx context.Context, q content.SearchQuery) ([]content.Item, error) {
	where := []string{"kind = ?"}
	args := []interface{}{string(q.Kind)}

	if !q.UpcomingAfter.IsZero() {
		where = append(where, "starts_at >= ?")
		args = append(args, q.UpcomingAfter.Unix())
	}

	terms := content.SearchTerms(q.Keywords)
	if len(terms) > 0 {
		ors := make([]string, len(terms))
		for i, t := range terms {
			ors[i] = `search_text LIKE ? ESCAPE '\'`
			args = append(args, "%"+escapeLike(t)+"%")
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}

	order := "id ASC"
	switch {
	case q.Kind == content.KindEvent:
		order = "starts_at ASC, id ASC"
	case len(terms) > 0:
		hits := make([]string, len(terms))
		for i, t := range terms {
			hits[i] = `CASE WHEN search_text LIKE ? ESCAPE '\' THEN 1 ELSE 0 END`
			args = append(args, "%"+escapeLike(t)+"%")
		}
		order = "(" + strings.Join(hits, " + ") + ") DESC, id ASC"
	}

	query := "SELECT " + contentColumns + " FROM content_items WHERE " + strings.Join(where, " AND ") + " ORDER BY " + order
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, wrapQueryError("search "+string(q.Kind), err)
	}
	defer rows.Close()

	var items []content.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError("search "+string(q.Kind), err)
	}
	return items, nil
}

// GetByID retrieves one item.
func (r *ContentRepository) GetByID(ctx context.Context, kind content.Kind, id string) (*content.Item, error) {
	query := r.dialect.Rebind("SELECT " + contentColumns + " FROM content_items WHERE kind = ? AND id = ?")
	item, err := scanItem(r.db.QueryRowContext(ctx, query, string(kind), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Upsert inserts or replaces one item.
func (r *ContentRepository) Upsert(ctx context.Context, item content.Item) error {
	return r.upsert(ctx, r.db, item)
}

// UpsertBatch writes items in a single transaction. progress, when set, is
// called after each item.
func (r *ContentRepository) UpsertBatch(ctx context.Context, items []content.Item, progress func(done int)) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapQueryError("begin batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, item := range items {
		if err := r.upsert(ctx, tx, item); err != nil {
			return fmt.Errorf("item %d (%s/%s): %w", i, item.Kind, item.ID, err)
		}
		if progress != nil {
			progress(i + 1)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapQueryError("commit batch", err)
	}
	return nil
}

func (r *ContentRepository) upsert(ctx context.Context, db DB, item content.Item) error {
	if err := ValidateItem(item); err != nil {
		return err
	}
	rec, err := NewContentRecord(item)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO content_items (kind, id, title, url, description, categories,
			published_at, starts_at, ends_at, location, price, search_text, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			description = excluded.description,
			categories = excluded.categories,
			published_at = excluded.published_at,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			location = excluded.location,
			price = excluded.price,
			search_text = excluded.search_text,
			updated_at = excluded.updated_at
	`
	_, err = db.ExecContext(ctx, r.dialect.Rebind(query),
		rec.Kind, rec.ID, rec.Title, rec.URL, rec.Description, rec.Categories,
		rec.PublishedAt, rec.StartsAt, rec.EndsAt, rec.Location, rec.Price,
		rec.SearchText, rec.UpdatedAt,
	)
	if err != nil {
		return wrapQueryError("upsert", err)
	}
	return nil
}

// Delete removes one item.
func (r *ContentRepository) Delete(ctx context.Context, kind content.Kind, id string) error {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind("DELETE FROM content_items WHERE kind = ? AND id = ?"), string(kind), id)
	if err != nil {
		return wrapQueryError("delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Counts returns the number of stored items per kind.
func (r *ContentRepository) Counts(ctx context.Context) (map[content.Kind]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM content_items GROUP BY kind")
	if err != nil {
		return nil, wrapQueryError("count", err)
	}
	defer rows.Close()

	out := make(map[content.Kind]int, len(content.Kinds))
	for _, k := range content.Kinds {
		out[k] = 0
	}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, wrapQueryError("count", err)
		}
		out[content.Kind(kind)] = n
	}
	return out, wrapQueryError("count", rows.Err())
}

// SchemaVersion returns the applied schema version.
func (r *ContentRepository) SchemaVersion(ctx context.Context) (int, error) {
	return SchemaVersion(ctx, r.db)
}

// Ping reports whether the database is reachable.
func (r *ContentRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w: %w", content.ErrUnavailable, err)
	}
	return nil
}

// ValidateItem checks the fields every stored item needs.
func ValidateItem(item content.Item) error {
	if _, err := content.ParseKind(string(item.Kind)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if strings.TrimSpace(item.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("%w: %s/%s has no title", ErrInvalid, item.Kind, item.ID)
	}
	if item.Kind == content.KindEvent && item.StartsAt == nil {
		return fmt.Errorf("%w: event %s has no start time", ErrInvalid, item.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (content.Item, error) {
	var rec ContentRecord
	var published, starts, ends sql.NullInt64
	err := row.Scan(
		&rec.Kind, &rec.ID, &rec.Title, &rec.URL, &rec.Description, &rec.Categories,
		&published, &starts, &ends, &rec.Location, &rec.Price,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return content.Item{}, err
		}
		return content.Item{}, wrapQueryError("scan", err)
	}
	rec.PublishedAt = nullInt(published)
	rec.StartsAt = nullInt(starts)
	rec.EndsAt = nullInt(ends)
	return rec.Item()
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// wrapQueryError marks connectivity failures with content.ErrUnavailable so
// the engine can tell an outage from a bad query.
func wrapQueryError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, content.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08: connection exception, 57: operator intervention (shutdown)
		class := pqErr.Code.Class()
		return class == "08" || class == "57"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrCantOpen || liteErr.Code == sqlite3.ErrNotADB
	}
	return strings.Contains(err.Error(), "database is closed")
}
