package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/hooplens/courtsource/internal/table"
)

// SQLiteStore is a durable tier backed by a single SQLite file, handy when
// the partition tree would be unwieldy (many tiny signatures). The upsert is
// transactional, which gives the same atomic-publication guarantee as the
// file store's rename.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at dsn with WAL mode.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite cache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite cache: exec %s", pragma)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS fetch_cache (
	signature   TEXT PRIMARY KEY,
	league      TEXT NOT NULL,
	dataset     TEXT NOT NULL,
	season      TEXT NOT NULL DEFAULT '',
	method      TEXT NOT NULL,
	payload     TEXT NOT NULL,
	fetched_at  DATETIME NOT NULL,
	ttl_seconds INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fetch_cache_partition ON fetch_cache(league, dataset);
`

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(sqliteMigration)
	return eris.Wrap(err, "sqlite cache: migrate")
}

// Read implements Store.
func (s *SQLiteStore) Read(ctx context.Context, key Key) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT league, dataset, season, method, payload, fetched_at, ttl_seconds
		 FROM fetch_cache WHERE signature = ?`,
		key.Signature,
	)

	var (
		league, dataset, season, method, payload string
		fetchedAt                                time.Time
		ttlSeconds                               int64
	)
	if err := row.Scan(&league, &dataset, &season, &method, &payload, &fetchedAt, &ttlSeconds); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite cache: read %s", key.Signature)
	}

	t, err := table.Unmarshal([]byte(payload))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite cache: decode %s", key.Signature)
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
func (s *SQLiteStore) Write(ctx context.Context, e *Entry) error {
	payload, err := e.Table.Marshal()
	if err != nil {
		return eris.Wrap(err, "sqlite cache: encode entry")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fetch_cache (signature, league, dataset, season, method, payload, fetched_at, ttl_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (signature) DO UPDATE SET
			method = excluded.method,
			payload = excluded.payload,
			fetched_at = excluded.fetched_at,
			ttl_seconds = excluded.ttl_seconds`,
		e.Key.Signature, e.Key.League, e.Key.Dataset, e.Key.Season, e.Method,
		string(payload), e.FetchedAt.UTC(), int64(e.TTL/time.Second),
	)
	return eris.Wrapf(err, "sqlite cache: write %s", e.Key.Signature)
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fetch_cache WHERE signature = ?`, key.Signature)
	if err != nil {
		return eris.Wrapf(err, "sqlite cache: delete %s", key.Signature)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePrefix implements Store.
func (s *SQLiteStore) DeletePrefix(ctx context.Context, league, dataset string) (int, error) {
	q := `DELETE FROM fetch_cache WHERE league = ? AND dataset = ?`
	args := []any{league, dataset}
	if dataset == "" {
		q = `DELETE FROM fetch_cache WHERE league = ?`
		args = args[:1]
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite cache: delete %s/%s", league, dataset)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
