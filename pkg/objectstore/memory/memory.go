// Package memory implements an in-memory objectstore.ObjectStore used by
// tests and local development. Objects are metadata-only: this double
// tracks which keys exist and their declared sizes, never bytes.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/cubbyhole/cubby/pkg/objectstore"
)

// ObjectStore is the in-memory object store.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string]int64

	// FailNextDelete makes the next delete call return an error, for
	// exercising hard-delete failure paths.
	FailNextDelete bool
}

// New creates an empty in-memory object store.
func New() *ObjectStore {
	return &ObjectStore{objects: make(map[string]int64)}
}

// Put registers an object as uploaded. Tests call this to simulate a
// client completing a pre-signed upload.
func (s *ObjectStore) Put(key string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = size
}

// Exists reports whether a key is present.
func (s *ObjectStore) Exists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// Len returns the number of stored objects.
func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// CreateUploadURL returns a synthetic upload URL for key.
func (s *ObjectStore) CreateUploadURL(ctx context.Context, key string, contentType string, ttl time.Duration) (*objectstore.UploadTarget, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &objectstore.UploadTarget{URL: "memory://upload/" + key}, nil
}

// CreateDownloadURL returns a synthetic download URL for key.
func (s *ObjectStore) CreateDownloadURL(ctx context.Context, key string, downloadName string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.objects[key]; !ok {
		return "", fmt.Errorf("object %q not found", key)
	}
	return "memory://download/" + key, nil
}

// HeadObject returns the registered size and a deterministic checksum.
func (s *ObjectStore) HeadObject(ctx context.Context, key string) (*objectstore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	size, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}

	sum := sha256.Sum256([]byte(key))
	return &objectstore.ObjectInfo{
		Size:     size,
		Checksum: hex.EncodeToString(sum[:8]),
		Name:     objectstore.FilenameFromKey(key),
	}, nil
}

// DeleteObject removes a key; absent keys succeed.
func (s *ObjectStore) DeleteObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNextDelete {
		s.FailNextDelete = false
		return fmt.Errorf("simulated object store failure")
	}
	delete(s.objects, key)
	return nil
}

// DeleteObjects removes every given key.
func (s *ObjectStore) DeleteObjects(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNextDelete {
		s.FailNextDelete = false
		return fmt.Errorf("simulated object store failure")
	}
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

// CopyObject duplicates the source's registration under destKey.
func (s *ObjectStore) CopyObject(ctx context.Context, sourceKey string, destKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	size, ok := s.objects[sourceKey]
	if !ok {
		return fmt.Errorf("object %q not found", sourceKey)
	}
	s.objects[destKey] = size
	return nil
}

// Healthcheck always succeeds for the in-memory store.
func (s *ObjectStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}

// Interface conformance check.
var _ objectstore.ObjectStore = (*ObjectStore)(nil)
