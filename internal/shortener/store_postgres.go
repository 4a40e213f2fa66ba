package shortener

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

const DefaultQueryTimeout = 3 * time.Second

// dbtx is the subset of *pgxpool.Pool used by the store.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const linkColumns = `id, original_url, short_code, visits, created_at`

const (
	findByCodeSQL = `SELECT ` + linkColumns + ` FROM links WHERE short_code = $1`
	findByURLSQL  = `SELECT ` + linkColumns + ` FROM links WHERE original_url = $1 ORDER BY id LIMIT 1`
	insertSQL     = `INSERT INTO links (original_url, short_code) VALUES ($1, $2) RETURNING ` + linkColumns
	incrVisitsSQL = `UPDATE links SET visits = visits + 1 WHERE short_code = $1`
)

type postgresStore struct {
	db      dbtx
	timeout time.Duration
}

// StoreConfig holds configuration for the SQL-backed stores.
type StoreConfig struct {
	QueryTimeout time.Duration
}

// NewPostgresStore returns a LinkStore over a pgx pool.
func NewPostgresStore(db dbtx, config *StoreConfig) LinkStore {
	return &postgresStore{db: db, timeout: queryTimeout(config)}
}

func queryTimeout(config *StoreConfig) time.Duration {
	if config == nil || config.QueryTimeout <= 0 {
		return DefaultQueryTimeout
	}
	return config.QueryTimeout
}

func scanLink(row pgx.Row) (Link, error) {
	var l Link
	if err := row.Scan(&l.ID, &l.OriginalURL, &l.ShortCode, &l.Visits, &l.CreatedAt); err != nil {
		return Link{}, err
	}
	return l, nil
}

func (s *postgresStore) FindByCode(ctx context.Context, code string) (Link, error) {
	const op = "shortener.postgres.FindByCode"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	link, err := scanLink(s.db.QueryRow(ctx, findByCodeSQL, code))
	if err != nil {
		return Link{}, mapStoreError(op, err)
	}
	return link, nil
}

func (s *postgresStore) FindByURL(ctx context.Context, url string) (Link, error) {
	const op = "shortener.postgres.FindByURL"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	link, err := scanLink(s.db.QueryRow(ctx, findByURLSQL, url))
	if err != nil {
		return Link{}, mapStoreError(op, err)
	}
	return link, nil
}

func (s *postgresStore) Insert(ctx context.Context, url, code string) (Link, error) {
	const op = "shortener.postgres.Insert"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	link, err := scanLink(s.db.QueryRow(ctx, insertSQL, url, code))
	if err != nil {
		return Link{}, mapStoreError(op, err)
	}
	return link, nil
}

func (s *postgresStore) IncrementVisits(ctx context.Context, code string) error {
	const op = "shortener.postgres.IncrementVisits"

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.db.Exec(ctx, incrVisitsSQL, code)
	if err != nil {
		return mapStoreError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return errx.E(op, errx.NotFound, fmt.Errorf("no link with code %q", code))
	}
	return nil
}
