package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cubbyhole/cubby/pkg/vfs"
)

// AccessCodeStore is the in-memory access code repository.
type AccessCodeStore struct {
	mu    sync.RWMutex
	codes map[string]*vfs.AccessCode
}

// NewAccessCodeStore creates an empty in-memory access code store.
func NewAccessCodeStore() *AccessCodeStore {
	return &AccessCodeStore{codes: make(map[string]*vfs.AccessCode)}
}

// Create inserts a code, enforcing global code uniqueness.
func (s *AccessCodeStore) Create(ctx context.Context, code *vfs.AccessCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[code.Code]; exists {
		return &vfs.Error{Code: vfs.ErrConflict, Message: "access code already exists", Path: code.Code}
	}

	clone := *code
	s.codes[code.Code] = &clone
	return nil
}

// GetByCode retrieves a code row, expired or not.
func (s *AccessCodeStore) GetByCode(ctx context.Context, code string) (*vfs.AccessCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.codes[code]
	if !ok {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "access code not found", Path: code}
	}
	clone := *row
	return &clone, nil
}

// GetByFileID retrieves the most recently created code for a file.
func (s *AccessCodeStore) GetByFileID(ctx context.Context, fileID uuid.UUID) (*vfs.AccessCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *vfs.AccessCode
	for _, row := range s.codes {
		if row.FileID != fileID {
			continue
		}
		if latest == nil || row.CreatedAt.After(latest.CreatedAt) {
			latest = row
		}
	}
	if latest == nil {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "access code not found", Path: fileID.String()}
	}
	clone := *latest
	return &clone, nil
}

// DeleteByCode removes a single code row.
func (s *AccessCodeStore) DeleteByCode(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[code]; !exists {
		return &vfs.Error{Code: vfs.ErrNotFound, Message: "access code not found", Path: code}
	}
	delete(s.codes, code)
	return nil
}

// DeleteByFileID removes every code pointing at a file.
func (s *AccessCodeStore) DeleteByFileID(ctx context.Context, fileID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for code, row := range s.codes {
		if row.FileID == fileID {
			delete(s.codes, code)
		}
	}
	return nil
}

// PurgeExpired physically deletes rows whose expiry is before now.
func (s *AccessCodeStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for code, row := range s.codes {
		if now.After(row.ExpiresAt) {
			delete(s.codes, code)
			purged++
		}
	}
	return purged, nil
}

// Healthcheck always succeeds for the in-memory store.
func (s *AccessCodeStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}
