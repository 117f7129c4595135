// Package badgerstore implements vfs.EntryStore and vfs.AccessCodeStore on
// BadgerDB, a fast embedded key-value store.
//
// This is the production metadata backend. It provides:
//   - Persistent storage with crash recovery (WAL-based)
//   - ACID transactions for structural operations (rename/move/restore
//     rewrite a whole subtree atomically)
//   - A storage-level uniqueness constraint for ACTIVE sibling names
//   - Efficient range scans for listings via prefixed index keys
//
// Thread Safety:
// All operations are protected by a single read-write mutex, making the
// store safe for concurrent access from multiple goroutines and keeping
// Badger's optimistic transactions from ever aborting on write conflicts.
// This coarse-grained locking is simple and correct; fine-grained locking
// could improve throughput for highly concurrent workloads.
package badgerstore

import (
	"context"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/rs/zerolog/log"
)

// Store holds the shared BadgerDB handle behind both the entry store and
// the access code store.
type Store struct {
	db *badger.DB

	// mu serializes writers so Badger's optimistic transactions never abort
	// on conflict; readers proceed concurrently under RLock. Shared by both
	// store views.
	mu sync.RWMutex
}

// Config contains configuration for opening a Badger-backed store.
type Config struct {
	// Path is the directory where BadgerDB keeps its files. Badger creates
	// the directory if it does not exist.
	Path string

	// InMemory runs Badger without touching disk. Used by tests.
	InMemory bool

	// BlockCacheSizeMB is Badger's block cache size in MB (default: 64).
	BlockCacheSizeMB int64
}

// Open opens (or creates) the database at the configured path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("badger store: path is required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts = opts.WithInMemory(cfg.InMemory)
	opts = opts.WithLoggingLevel(badger.WARNING)
	// Metadata rows are small JSON blobs; compression costs more than it saves.
	opts = opts.WithCompression(options.None)

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	log.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("badger store opened")
	return &Store{db: db}, nil
}

// Close flushes and closes the database. The entry and access code stores
// sharing this handle must not be used afterwards.
func (s *Store) Close() error {
	return s.db.Close()
}

// Entries returns the vfs.EntryStore view of this database.
func (s *Store) Entries() *EntryStore {
	return &EntryStore{store: s}
}

// AccessCodes returns the vfs.AccessCodeStore view of this database.
func (s *Store) AccessCodes() *AccessCodeStore {
	return &AccessCodeStore{store: s}
}

// healthcheck verifies the database accepts reads.
func (s *Store) healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("healthcheck"))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}
