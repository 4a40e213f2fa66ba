package shortener

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

// sqliteSchema mirrors the Postgres migrations for single-node deployments.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS links (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	original_url TEXT NOT NULL,
	short_code TEXT NOT NULL,
	visits INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS links_short_code_idx ON links(short_code);
CREATE INDEX IF NOT EXISTS links_original_url_idx ON links(original_url);
`

// sqliteTimeLayouts are the textual forms CURRENT_TIMESTAMP and the driver produce.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

type sqliteStore struct {
	db      *sql.DB
	timeout time.Duration
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	const op = "shortener.sqlite.Open"

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errx.E(op, errx.Unavailable, err)
	}
	// one writer avoids SQLITE_BUSY under concurrent visit increments
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errx.E(op, errx.Unavailable, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errx.E(op, errx.Unavailable, fmt.Errorf("apply schema: %w", err))
	}
	return db, nil
}

// NewSQLiteStore returns a LinkStore over a database opened with OpenSQLite.
func NewSQLiteStore(db *sql.DB, config *StoreConfig) LinkStore {
	return &sqliteStore{db: db, timeout: queryTimeout(config)}
}

func scanSQLiteLink(row *sql.Row) (Link, error) {
	var (
		l       Link
		created any
	)
	if err := row.Scan(&l.ID, &l.OriginalURL, &l.ShortCode, &l.Visits, &created); err != nil {
		return Link{}, err
	}

	ts, err := parseSQLiteTime(created)
	if err != nil {
		return Link{}, err
	}
	l.CreatedAt = ts
	return l, nil
}

func parseSQLiteTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		for _, layout := range sqliteTimeLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized created_at %q", t)
	case []byte:
		return parseSQLiteTime(string(t))
	default:
		return time.Time{}, fmt.Errorf("unexpected created_at type %T", v)
	}
}

func (s *sqliteStore) FindByCode(ctx context.Context, code string) (Link, error) {
	const op = "shortener.sqlite.FindByCode"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	link, err := scanSQLiteLink(s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE short_code = ?`, code))
	if err != nil {
		return Link{}, mapStoreError(op, err)
	}
	return link, nil
}

func (s *sqliteStore) FindByURL(ctx context.Context, url string) (Link, error) {
	const op = "shortener.sqlite.FindByURL"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	link, err := scanSQLiteLink(s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE original_url = ? ORDER BY id LIMIT 1`, url))
	if err != nil {
		return Link{}, mapStoreError(op, err)
	}
	return link, nil
}

func (s *sqliteStore) Insert(ctx context.Context, url, code string) (Link, error) {
	const op = "shortener.sqlite.Insert"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	link, err := scanSQLiteLink(s.db.QueryRowContext(ctx,
		`INSERT INTO links (original_url, short_code) VALUES (?, ?) RETURNING `+linkColumns, url, code))
	if err != nil {
		return Link{}, mapStoreError(op, err)
	}
	return link, nil
}

func (s *sqliteStore) IncrementVisits(ctx context.Context, code string) error {
	const op = "shortener.sqlite.IncrementVisits"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE links SET visits = visits + 1 WHERE short_code = ?`, code)
	if err != nil {
		return mapStoreError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapStoreError(op, err)
	}
	if n == 0 {
		return errx.E(op, errx.NotFound, fmt.Errorf("no link with code %q", code))
	}
	return nil
}
