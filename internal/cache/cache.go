// Package cache provides the two-tier fetch cache: an in-process tier that
// avoids redundant deserialization within one process lifetime, and a durable
// partitioned tier that is the source of truth across restarts.
//
// Expired entries are never deleted on read. They stay addressable as "last
// known good" so the orchestrator can serve them, flagged stale, when a live
// refresh fails and the caller allows it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hooplens/courtsource/internal/table"
)

// ErrNotFound is returned by stores when no entry exists for a key.
var ErrNotFound = eris.New("cache: entry not found")

// Key addresses one cached table. Season participates in the partition path;
// Signature is the unique identity.
type Key struct {
	League    string
	Dataset   string
	Season    string
	Signature string
}

// Entry is one cached canonical table with its provenance.
type Entry struct {
	Key       Key
	Table     *table.Table
	Method    string // fetch method that produced the payload
	FetchedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry's TTL has elapsed at now.
func (e *Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.FetchedAt.Add(e.TTL))
}

// Signature hashes league, dataset and the compiled canonical parameters into
// a deterministic hex key: identical logical requests always collide.
func Signature(league, dataset string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.ToUpper(league))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(dataset))
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Store is the durable tier. Writes must be atomic: a concurrent reader
// observes either the previous entry or the new one, never a partial write.
type Store interface {
	Read(ctx context.Context, key Key) (*Entry, error)
	Write(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, key Key) error
	DeletePrefix(ctx context.Context, league, dataset string) (int, error)
	Close() error
}

// Cache combines the ephemeral and durable tiers.
type Cache struct {
	mem   *memoryTier
	store Store

	nowFunc func() time.Time
}

// New creates a Cache over the given durable store.
func New(store Store) *Cache {
	return &Cache{
		mem:     newMemoryTier(),
		store:   store,
		nowFunc: time.Now,
	}
}

// WithNow fixes the clock for tests.
func (c *Cache) WithNow(fn func() time.Time) *Cache {
	c.nowFunc = fn
	return c
}

// Get returns the entry for the key and whether it is still fresh. A stale
// entry is returned with fresh=false rather than suppressed; the caller
// decides whether staleness is acceptable. found=false means neither tier has
// the key.
func (c *Cache) Get(ctx context.Context, key Key) (e *Entry, fresh, found bool) {
	now := c.nowFunc()

	if e, ok := c.mem.get(key.Signature); ok {
		return e, !e.Expired(now), true
	}

	e, err := c.store.Read(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			zap.L().Warn("cache: durable read failed",
				zap.String("signature", key.Signature),
				zap.Error(err),
			)
		}
		return nil, false, false
	}
	c.mem.put(e)
	return e, !e.Expired(now), true
}

// Put publishes an entry to both tiers. The durable write happens first so a
// crash never leaves the memory tier ahead of the source of truth.
func (c *Cache) Put(ctx context.Context, e *Entry) error {
	if e.FetchedAt.IsZero() {
		e.FetchedAt = c.nowFunc()
	}
	if err := c.store.Write(ctx, e); err != nil {
		return eris.Wrap(err, "cache: durable write")
	}
	c.mem.put(e)
	return nil
}

// Invalidate drops one signature from both tiers.
func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	c.mem.remove(key.Signature)
	if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return eris.Wrap(err, "cache: invalidate")
	}
	return nil
}

// InvalidatePrefix drops every entry under a (league, dataset) partition.
// An empty dataset drops the whole league.
func (c *Cache) InvalidatePrefix(ctx context.Context, league, dataset string) (int, error) {
	c.mem.removePrefix(league, dataset)
	n, err := c.store.DeletePrefix(ctx, league, dataset)
	if err != nil {
		return n, eris.Wrap(err, "cache: invalidate prefix")
	}
	return n, nil
}

// Close releases the durable store.
func (c *Cache) Close() error {
	return c.store.Close()
}
