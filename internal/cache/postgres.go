package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/hooplens/courtsource/internal/db"
	"github.com/hooplens/courtsource/internal/table"
)

// PostgresStore is a durable tier shared by several engine processes.
// The upsert runs in a single statement, so publication is atomic.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgresStore connects a pool and migrates the cache table.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres cache: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres cache: ping")
	}

	s := &PostgresStore{pool: pool, closeFn: pool.Close}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresStoreWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: func() {}}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS fetch_cache (
	signature   TEXT PRIMARY KEY,
	league      TEXT NOT NULL,
	dataset     TEXT NOT NULL,
	season      TEXT NOT NULL DEFAULT '',
	method      TEXT NOT NULL,
	payload     TEXT NOT NULL,
	fetched_at  TIMESTAMPTZ NOT NULL,
	ttl_seconds BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fetch_cache_partition ON fetch_cache(league, dataset);
`

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres cache: migrate")
}

// Read implements Store.
func (s *PostgresStore) Read(ctx context.Context, key Key) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT league, dataset, season, method, payload, fetched_at, ttl_seconds
		 FROM fetch_cache WHERE signature = $1`,
		key.Signature,
	)

	var (
		league, dataset, season, method, payload string
		fetchedAt                                time.Time
		ttlSeconds                               int64
	)
	if err := row.Scan(&league, &dataset, &season, &method, &payload, &fetchedAt, &ttlSeconds); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres cache: read %s", key.Signature)
	}

	t, err := table.Unmarshal([]byte(payload))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres cache: decode %s", key.Signature)
	}
	return &Entry{
		Key:       Key{League: league, Dataset: dataset, Season: season, Signature: key.Signature},
		Table:     t,
		Method:    method,
		FetchedAt: fetchedAt,
		TTL:       time.Duration(ttlSeconds) * time.Second,
	}, nil
}

// Write implements Store.
func (s *PostgresStore) Write(ctx context.Context, e *Entry) error {
	payload, err := e.Table.Marshal()
	if err != nil {
		return eris.Wrap(err, "postgres cache: encode entry")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO fetch_cache (signature, league, dataset, season, method, payload, fetched_at, ttl_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (signature) DO UPDATE SET
			method = EXCLUDED.method,
			payload = EXCLUDED.payload,
			fetched_at = EXCLUDED.fetched_at,
			ttl_seconds = EXCLUDED.ttl_seconds`,
		e.Key.Signature, e.Key.League, e.Key.Dataset, e.Key.Season, e.Method,
		string(payload), e.FetchedAt.UTC(), int64(e.TTL/time.Second),
	)
	return eris.Wrapf(err, "postgres cache: write %s", e.Key.Signature)
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, key Key) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fetch_cache WHERE signature = $1`, key.Signature)
	if err != nil {
		return eris.Wrapf(err, "postgres cache: delete %s", key.Signature)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePrefix implements Store.
func (s *PostgresStore) DeletePrefix(ctx context.Context, league, dataset string) (int, error) {
	q := `DELETE FROM fetch_cache WHERE league = $1 AND dataset = $2`
	args := []any{league, dataset}
	if dataset == "" {
		q = `DELETE FROM fetch_cache WHERE league = $1`
		args = args[:1]
	}
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres cache: delete %s/%s", league, dataset)
	}
	return int(tag.RowsAffected()), nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}
