package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hooplens/courtsource/internal/table"
)

func sampleTable() *table.Table {
	t := table.New("GAME_ID", "PTS")
	t.Append(table.Row{"GAME_ID": "G1", "PTS": 102})
	t.Append(table.Row{"GAME_ID": "G2", "PTS": 97})
	return t
}

func sampleEntry(sig string, ttl time.Duration) *Entry {
	return &Entry{
		Key: Key{
			League:    "LKL",
			Dataset:   "schedule",
			Season:    "2023-24",
			Signature: sig,
		},
		Table:     sampleTable(),
		Method:    "lkl_html_schedule",
		FetchedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		TTL:       ttl,
	}
}

func TestSignature_Deterministic(t *testing.T) {
	a := Signature("LKL", "schedule", map[string]string{"season": "2023-24", "team_id": "ZAL"})
	b := Signature("lkl", "SCHEDULE", map[string]string{"team_id": "ZAL", "season": "2023-24"})
	assert.Equal(t, a, b, "case and map order must not affect the signature")
}

func TestSignature_SensitiveToParams(t *testing.T) {
	base := Signature("LKL", "schedule", map[string]string{"season": "2023-24"})
	assert.NotEqual(t, base, Signature("LKL", "schedule", map[string]string{"season": "2022-23"}))
	assert.NotEqual(t, base, Signature("LKL", "shots", map[string]string{"season": "2023-24"}))
	assert.NotEqual(t, base, Signature("NBA", "schedule", map[string]string{"season": "2023-24"}))
}

func newTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	c := New(store)
	t.Cleanup(func() { _ = c.Close() })
	return c, dir
}

func TestCache_PutAndGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	e := sampleEntry("sig-a", time.Hour)
	now := e.FetchedAt.Add(time.Minute)
	c.WithNow(func() time.Time { return now })

	require.NoError(t, c.Put(ctx, e))

	got, fresh, found := c.Get(ctx, e.Key)
	require.True(t, found)
	assert.True(t, fresh)
	assert.Equal(t, 2, got.Table.Len())
	assert.Equal(t, "lkl_html_schedule", got.Method)
}

func TestCache_MemoryTierServesAfterDurableLoss(t *testing.T) {
	c, dir := newTestCache(t)
	ctx := context.Background()

	e := sampleEntry("sig-b", time.Hour)
	c.WithNow(func() time.Time { return e.FetchedAt })
	require.NoError(t, c.Put(ctx, e))

	// Wipe the durable tier out from under the cache; the in-process tier
	// still answers for this signature.
	require.NoError(t, os.RemoveAll(dir))

	_, _, found := c.Get(ctx, e.Key)
	assert.True(t, found)
}

func TestCache_ExpiredEntryStaysAddressable(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	e := sampleEntry("sig-c", time.Hour)
	require.NoError(t, c.Put(ctx, e))

	c.WithNow(func() time.Time { return e.FetchedAt.Add(2 * time.Hour) })

	got, fresh, found := c.Get(ctx, e.Key)
	require.True(t, found, "expired entries are last-known-good, not gone")
	assert.False(t, fresh)
	assert.Equal(t, 2, got.Table.Len())
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	e := sampleEntry("sig-d", 0)
	assert.False(t, e.Expired(e.FetchedAt.Add(100*24*time.Hour)))
}

func TestCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	e := sampleEntry("sig-e", time.Hour)
	require.NoError(t, c.Put(ctx, e))
	require.NoError(t, c.Invalidate(ctx, e.Key))

	_, _, found := c.Get(ctx, e.Key)
	assert.False(t, found)

	// Invalidating an absent key is not an error.
	assert.NoError(t, c.Invalidate(ctx, Key{League: "LKL", Dataset: "schedule", Signature: "gone"}))
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	a := sampleEntry("sig-f", time.Hour)
	b := sampleEntry("sig-g", time.Hour)
	b.Key.Dataset = "shots"
	require.NoError(t, c.Put(ctx, a))
	require.NoError(t, c.Put(ctx, b))

	n, err := c.InvalidatePrefix(ctx, "LKL", "schedule")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, found := c.Get(ctx, a.Key)
	assert.False(t, found)
	_, _, found = c.Get(ctx, b.Key)
	assert.True(t, found)
}

func TestCache_InvalidatePrefix_WholeLeague(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	a := sampleEntry("sig-h", time.Hour)
	b := sampleEntry("sig-i", time.Hour)
	b.Key.Dataset = "shots"
	require.NoError(t, c.Put(ctx, a))
	require.NoError(t, c.Put(ctx, b))

	n, err := c.InvalidatePrefix(ctx, "LKL", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, _, found := c.Get(ctx, a.Key)
	assert.False(t, found)
	_, _, found = c.Get(ctx, b.Key)
	assert.False(t, found)
}
