package cache

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hooplens/courtsource/internal/table"
)

// FileStore is the default durable tier: one JSON document per entry,
// partitioned {league}/{dataset}/{season}/{signature}.json under a root
// directory. Publication is write-temporary-then-rename so a concurrent
// reader never observes a half-written entry.
type FileStore struct {
	root string
}

// NewFileStore creates the store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, eris.New("filestore: empty root dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "filestore: create root %s", dir)
	}
	return &FileStore{root: dir}, nil
}

// entryDoc is the on-disk shape of one cache entry.
type entryDoc struct {
	Signature  string       `json:"signature"`
	League     string       `json:"league"`
	Dataset    string       `json:"dataset"`
	Season     string       `json:"season"`
	Method     string       `json:"method"`
	FetchedAt  time.Time    `json:"fetched_at"`
	TTLSeconds int64        `json:"ttl_seconds"`
	Table      *table.Table `json:"table"`
}

func partSegment(s string) string {
	if s == "" {
		return "any"
	}
	return strings.ReplaceAll(s, string(os.PathSeparator), "_")
}

func (f *FileStore) partitionDir(league, dataset, season string) string {
	return filepath.Join(f.root,
		partSegment(strings.ToUpper(league)),
		partSegment(strings.ToLower(dataset)),
		partSegment(season),
	)
}

func (f *FileStore) path(key Key) string {
	return filepath.Join(f.partitionDir(key.League, key.Dataset, key.Season), key.Signature+".json")
}

// Read implements Store.
func (f *FileStore) Read(_ context.Context, key Key) (*Entry, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "filestore: read %s", key.Signature)
	}

	var doc entryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "filestore: decode %s", key.Signature)
	}
	return &Entry{
		Key: Key{
			League:    doc.League,
			Dataset:   doc.Dataset,
			Season:    doc.Season,
			Signature: doc.Signature,
		},
		Table:     doc.Table,
		Method:    doc.Method,
		FetchedAt: doc.FetchedAt,
		TTL:       time.Duration(doc.TTLSeconds) * time.Second,
	}, nil
}

// Write implements Store with atomic publication.
func (f *FileStore) Write(_ context.Context, e *Entry) error {
	dir := f.partitionDir(e.Key.League, e.Key.Dataset, e.Key.Season)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "filestore: create partition %s", dir)
	}

	doc := entryDoc{
		Signature:  e.Key.Signature,
		League:     e.Key.League,
		Dataset:    e.Key.Dataset,
		Season:     e.Key.Season,
		Method:     e.Method,
		FetchedAt:  e.FetchedAt,
		TTLSeconds: int64(e.TTL / time.Second),
		Table:      e.Table,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "filestore: encode entry")
	}

	tmp, err := os.CreateTemp(dir, e.Key.Signature+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "filestore: create temp")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return eris.Wrap(err, "filestore: write temp")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "filestore: close temp")
	}
	if err := os.Rename(tmpName, filepath.Join(dir, e.Key.Signature+".json")); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "filestore: publish entry")
	}
	return nil
}

// Delete implements Store.
func (f *FileStore) Delete(_ context.Context, key Key) error {
	err := os.Remove(f.path(key))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return eris.Wrapf(err, "filestore: delete %s", key.Signature)
}

// DeletePrefix implements Store by removing the whole (league, dataset)
// subtree across all seasons.
func (f *FileStore) DeletePrefix(_ context.Context, league, dataset string) (int, error) {
	dir := filepath.Join(f.root, partSegment(strings.ToUpper(league)))
	if dataset != "" {
		dir = filepath.Join(dir, partSegment(strings.ToLower(dataset)))
	}

	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".json") {
			count++
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, eris.Wrapf(err, "filestore: walk %s", dir)
	}

	if err := os.RemoveAll(dir); err != nil {
		return 0, eris.Wrapf(err, "filestore: remove %s", dir)
	}
	return count, nil
}

// Close implements Store.
func (f *FileStore) Close() error { return nil }
