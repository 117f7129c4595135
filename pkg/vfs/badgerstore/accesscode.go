package badgerstore

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/cubbyhole/cubby/pkg/vfs"
)

// AccessCodeStore implements vfs.AccessCodeStore over the shared Badger
// handle. Code rows live under "a:" keys; "af:" keys index codes by file
// so revoking a file's codes is a single prefix scan.
type AccessCodeStore struct {
	store *Store
}

// Create inserts a code row, enforcing global code uniqueness inside the
// write transaction.
func (s *AccessCodeStore) Create(ctx context.Context, code *vfs.AccessCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	return s.store.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyCode(code.Code)); err == nil {
			return &vfs.Error{Code: vfs.ErrConflict, Message: "access code already exists", Path: code.Code}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		encoded, err := encodeAccessCode(code)
		if err != nil {
			return err
		}
		if err := txn.Set(keyCode(code.Code), encoded); err != nil {
			return err
		}
		return txn.Set(keyCodeFile(code.FileID, code.Code), []byte(code.Code))
	})
}

// GetByCode retrieves a code row, expired or not. Expiry policy belongs to
// the issuer, not the store.
func (s *AccessCodeStore) GetByCode(ctx context.Context, code string) (*vfs.AccessCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var row *vfs.AccessCode
	err := s.store.db.View(func(txn *badger.Txn) error {
		var err error
		row, err = getCodeTxn(txn, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// GetByFileID retrieves the most recently created code for a file.
func (s *AccessCodeStore) GetByFileID(ctx context.Context, fileID uuid.UUID) (*vfs.AccessCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var latest *vfs.AccessCode
	err := s.store.db.View(func(txn *badger.Txn) error {
		return scanCodesByFile(txn, fileID, func(row *vfs.AccessCode) error {
			if latest == nil || row.CreatedAt.After(latest.CreatedAt) {
				latest = row
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "access code not found", Path: fileID.String()}
	}
	return latest, nil
}

// DeleteByCode removes a single code row and its file index key.
func (s *AccessCodeStore) DeleteByCode(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	return s.store.db.Update(func(txn *badger.Txn) error {
		row, err := getCodeTxn(txn, code)
		if err != nil {
			return err
		}
		if err := txn.Delete(keyCodeFile(row.FileID, row.Code)); err != nil {
			return err
		}
		return txn.Delete(keyCode(code))
	})
}

// DeleteByFileID removes every code pointing at a file. Deleting codes for
// a file with none is not an error.
func (s *AccessCodeStore) DeleteByFileID(ctx context.Context, fileID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	return s.store.db.Update(func(txn *badger.Txn) error {
		return scanCodesByFile(txn, fileID, func(row *vfs.AccessCode) error {
			if err := txn.Delete(keyCode(row.Code)); err != nil {
				return err
			}
			return txn.Delete(keyCodeFile(fileID, row.Code))
		})
	})
}

// PurgeExpired physically deletes rows whose expiry is before now and
// returns how many were removed.
func (s *AccessCodeStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	purged := 0
	err := s.store.db.Update(func(txn *badger.Txn) error {
		// Collect first; Badger forbids writes while an iterator is open.
		expired, err := collectExpiredTxn(txn, now)
		if err != nil {
			return err
		}

		for _, row := range expired {
			if err := txn.Delete(keyCode(row.Code)); err != nil {
				return err
			}
			if err := txn.Delete(keyCodeFile(row.FileID, row.Code)); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

// Healthcheck verifies the database accepts reads.
func (s *AccessCodeStore) Healthcheck(ctx context.Context) error {
	return s.store.healthcheck(ctx)
}

// collectExpiredTxn scans every code row and returns those expired at now.
func collectExpiredTxn(txn *badger.Txn, now time.Time) ([]*vfs.AccessCode, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixCode)

	it := txn.NewIterator(opts)
	defer it.Close()

	var expired []*vfs.AccessCode
	for it.Rewind(); it.Valid(); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		row, err := decodeAccessCode(val)
		if err != nil {
			return nil, err
		}
		if now.After(row.ExpiresAt) {
			expired = append(expired, row)
		}
	}
	return expired, nil
}

// getCodeTxn loads and decodes a code row inside a transaction.
func getCodeTxn(txn *badger.Txn, code string) (*vfs.AccessCode, error) {
	item, err := txn.Get(keyCode(code))
	if err == badger.ErrKeyNotFound {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "access code not found", Path: code}
	}
	if err != nil {
		return nil, err
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeAccessCode(val)
}

// scanCodesByFile iterates the file index and loads each code row. The
// index is collected before fn runs so callers may write to the
// transaction from inside fn.
func scanCodesByFile(txn *badger.Txn, fileID uuid.UUID, fn func(row *vfs.AccessCode) error) error {
	var codes []string
	func() {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyCodeFilePrefix(fileID)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err == nil {
				codes = append(codes, string(val))
			}
		}
	}()

	for _, code := range codes {
		row, err := getCodeTxn(txn, code)
		if err != nil {
			if vfs.IsNotFound(err) {
				continue // dangling index key
			}
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

// Interface conformance check.
var _ vfs.AccessCodeStore = (*AccessCodeStore)(nil)
