// Package history keeps a per-document log of reconciled states: every
// successful save, external reload, merge result, and restore becomes a
// content-addressed snapshot. Blobs are deduplicated, compressed past a
// size threshold, and served through an LRU cache.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	shared "mdsync/shared/types"
	"mdsync/shared/utils"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrVersionNotFound  = errors.New("version not found")
)

const (
	blobPrefix    = "blob:"
	versionPrefix = "version:"
	seqPrefix     = "verseq:"
)

// Store persists snapshots in badger. Content blobs are keyed by SHA-256
// hash; version records are keyed per path with a monotonically increasing
// sequence number.
type Store struct {
	db    *badger.DB
	cache *lru.Cache[string, string]
	codec *codec

	mu sync.Mutex // serializes sequence allocation per store
}

// Options configures Store behavior
type Options struct {
	CacheSize   int // number of blobs to cache
	CompressMin int // minimum blob size in bytes before compressing
}

// New creates a history store on top of an open badger instance.
func New(db *badger.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = 128
	}
	if opts.CompressMin == 0 {
		opts.CompressMin = 1024
	}

	cache, err := lru.New[string, string](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	codec, err := newCodec(opts.CompressMin)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	return &Store{
		db:    db,
		cache: cache,
		codec: codec,
	}, nil
}

// Record stores content as a snapshot of path and appends a version entry.
// Identical content is stored once; the version log still gets an entry so
// the timeline stays complete.
func (s *Store) Record(path, content string, origin shared.Origin) (shared.Version, error) {
	hash := utils.HashText(content)

	if err := s.storeBlob(hash, content); err != nil {
		return shared.Version{}, fmt.Errorf("storing snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSeq(path)
	if err != nil {
		return shared.Version{}, fmt.Errorf("allocating version number: %w", err)
	}

	version := shared.Version{
		Path:      path,
		Seq:       seq,
		Hash:      hash,
		Origin:    origin,
		Size:      int64(len(content)),
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(version)
	if err != nil {
		return shared.Version{}, fmt.Errorf("marshaling version: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(versionKey(path, seq), data)
	})
	if err != nil {
		return shared.Version{}, fmt.Errorf("storing version: %w", err)
	}

	return version, nil
}

// Versions returns the full version log for path, oldest first.
func (s *Store) Versions(path string) ([]shared.Version, error) {
	var versions []shared.Version

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(versionPrefix + path + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var v shared.Version
				if err := json.Unmarshal(val, &v); err != nil {
					return err
				}
				versions = append(versions, v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing versions for %s: %w", path, err)
	}

	return versions, nil
}

// Version returns one version record for path.
func (s *Store) Version(path string, seq uint64) (shared.Version, error) {
	var version shared.Version

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(versionKey(path, seq))
		if err == badger.ErrKeyNotFound {
			return ErrVersionNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &version)
		})
	})
	if err != nil {
		return shared.Version{}, err
	}

	return version, nil
}

// Content retrieves snapshot text by hash.
func (s *Store) Content(hash string) (string, error) {
	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blobPrefix + hash))
		if err == badger.ErrKeyNotFound {
			return ErrSnapshotNotFound
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", err
	}

	content, err := s.codec.decode(raw)
	if err != nil {
		return "", fmt.Errorf("decoding snapshot %s: %w", hash, err)
	}

	// Verify before caching.
	if utils.HashText(content) != hash {
		return "", fmt.Errorf("snapshot %s: content hash mismatch", hash)
	}

	s.cache.Add(hash, content)
	return content, nil
}

// VersionContent is a convenience lookup for one version's text.
func (s *Store) VersionContent(path string, seq uint64) (string, error) {
	version, err := s.Version(path, seq)
	if err != nil {
		return "", err
	}
	return s.Content(version.Hash)
}

func (s *Store) storeBlob(hash, content string) error {
	key := []byte(blobPrefix + hash)

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil // deduplicated
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		encoded := s.codec.encode(content)
		return txn.Set(key, encoded)
	})
}

// nextSeq increments the per-path version counter. Caller holds s.mu.
func (s *Store) nextSeq(path string) (uint64, error) {
	var seq uint64

	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(seqPrefix + path)

		item, err := txn.Get(key)
		if err == nil {
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &seq)
			})
			if err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		seq++
		data, err := json.Marshal(seq)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return 0, err
	}

	return seq, nil
}

func versionKey(path string, seq uint64) []byte {
	// Zero padding keeps badger's lexicographic iteration in sequence
	// order.
	return []byte(fmt.Sprintf("%s%s:%020d", versionPrefix, path, seq))
}
