package badgerstore

import (
	"context"
	"errors"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/cubbyhole/cubby/pkg/vfs"
)

// EntryStore implements vfs.EntryStore over the shared Badger handle. The
// read-write mutex guarding every operation lives on Store so entry and
// access code views of the same database serialize against each other.
type EntryStore struct {
	store *Store
}

// Get retrieves an entry by id.
func (s *EntryStore) Get(ctx context.Context, id uuid.UUID) (*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var entry *vfs.Entry
	err := s.store.db.View(func(txn *badger.Txn) error {
		var err error
		entry, err = getEntryTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetByPath retrieves the owner's ACTIVE entry at the exact FullPath.
func (s *EntryStore) GetByPath(ctx context.Context, ownerID string, fullPath string) (*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var found *vfs.Entry
	err := s.store.db.View(func(txn *badger.Txn) error {
		// Trashed entries stay indexed under their stale path, so the
		// exact-path scan can hit several rows; only the ACTIVE one counts.
		return scanIndex(txn, keyOwnerExactPath(ownerID, fullPath), func(id uuid.UUID) error {
			entry, err := getEntryTxn(txn, id)
			if err != nil {
				return err
			}
			if entry.Status == vfs.StatusActive {
				found = entry
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "entry not found", Path: fullPath}
	}
	return found, nil
}

// ListByParent returns the children of a folder matching the filter,
// ordered by FullPath ascending.
func (s *EntryStore) ListByParent(ctx context.Context, parentID uuid.UUID, filter vfs.StatusFilter) ([]*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var out []*vfs.Entry
	err := s.store.db.View(func(txn *badger.Txn) error {
		children, err := listChildrenTxn(txn, parentID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if filter.Matches(child.Status) {
				out = append(out, child)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByPath(out)
	return out, nil
}

// ListByOwner returns the owner's entries matching the filter, ordered by
// FullPath ascending, bounded by page. The owner index is keyed by path,
// so iteration order is already the result order.
func (s *EntryStore) ListByOwner(ctx context.Context, ownerID string, filter vfs.StatusFilter, page vfs.Page) ([]*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var out []*vfs.Entry
	skipped := 0
	err := s.store.db.View(func(txn *badger.Txn) error {
		return scanIndex(txn, keyOwnerPrefix(ownerID), func(id uuid.UUID) error {
			if page.Limit > 0 && len(out) >= page.Limit {
				return errScanDone
			}
			entry, err := getEntryTxn(txn, id)
			if err != nil {
				return err
			}
			if !filter.Matches(entry.Status) {
				return nil
			}
			if skipped < page.Offset {
				skipped++
				return nil
			}
			out = append(out, entry)
			return nil
		})
	})
	if err != nil && !errors.Is(err, errScanDone) {
		return nil, err
	}
	return out, nil
}

// ListByPathPrefix returns the owner's entries whose FullPath starts with
// prefix, ordered by FullPath ascending.
func (s *EntryStore) ListByPathPrefix(ctx context.Context, ownerID string, prefix string, filter vfs.StatusFilter) ([]*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var out []*vfs.Entry
	err := s.store.db.View(func(txn *badger.Txn) error {
		return scanIndex(txn, keyOwnerPathPrefix(ownerID, prefix), func(id uuid.UUID) error {
			entry, err := getEntryTxn(txn, id)
			if err != nil {
				return err
			}
			if filter.Matches(entry.Status) {
				out = append(out, entry)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExistsSiblingName reports whether an ACTIVE child of parentID carries the
// given name, via a point lookup on the name-slot index.
func (s *EntryStore) ExistsSiblingName(ctx context.Context, parentID uuid.UUID, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	exists := false
	err := s.store.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keyNameSlot(parentID, name))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// Create inserts a new entry. The ACTIVE name slot is checked and claimed
// inside the same transaction that writes the row, which is the storage
// half of sibling-name uniqueness.
func (s *EntryStore) Create(ctx context.Context, entry *vfs.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	return s.store.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyEntry(entry.ID)); err == nil {
			return &vfs.Error{Code: vfs.ErrConflict, Message: "entry id already exists", Path: entry.ID.String()}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		if entry.Status == vfs.StatusActive && entry.ParentID != nil {
			if err := checkNameSlotTxn(txn, *entry.ParentID, entry.Name, entry.ID); err != nil {
				return err
			}
		}

		return writeEntryTxn(txn, entry)
	})
}

// Update persists the entry's field values, reindexing as needed.
func (s *EntryStore) Update(ctx context.Context, entry *vfs.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	return s.store.db.Update(func(txn *badger.Txn) error {
		old, err := getEntryTxn(txn, entry.ID)
		if err != nil {
			return err
		}

		claimsNewSlot := entry.Status == vfs.StatusActive && entry.ParentID != nil &&
			(old.Status != vfs.StatusActive || old.Name != entry.Name || !sameParent(old.ParentID, entry.ParentID))
		if claimsNewSlot {
			if err := checkNameSlotTxn(txn, *entry.ParentID, entry.Name, entry.ID); err != nil {
				return err
			}
		}

		if err := clearIndexesTxn(txn, old); err != nil {
			return err
		}
		return writeEntryTxn(txn, entry)
	})
}

// Rename atomically renames an entry and rewrites its subtree's paths.
func (s *EntryStore) Rename(ctx context.Context, id uuid.UUID, newName string) (*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	var renamed *vfs.Entry
	err := s.store.db.Update(func(txn *badger.Txn) error {
		entry, err := getEntryTxn(txn, id)
		if err != nil {
			return err
		}
		if entry.ParentID == nil {
			return &vfs.Error{Code: vfs.ErrValidation, Message: "root containers cannot be renamed", Path: entry.FullPath}
		}

		if err := checkNameSlotTxn(txn, *entry.ParentID, newName, id); err != nil {
			return err
		}

		parent, err := getEntryTxn(txn, *entry.ParentID)
		if err != nil {
			return err
		}

		updated := entry.Clone()
		updated.Name = newName
		updated.FullPath = vfs.ChildPath(parent.FullPath, newName)
		updated.UpdatedAt = time.Now().UTC()

		if err := clearIndexesTxn(txn, entry); err != nil {
			return err
		}
		if err := writeEntryTxn(txn, updated); err != nil {
			return err
		}
		if err := rewriteSubtreeTxn(txn, updated); err != nil {
			return err
		}

		renamed = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// Move atomically reparents an entry. The target is re-validated inside
// the transaction, so a concurrently trashed target fails the move.
func (s *EntryStore) Move(ctx context.Context, id uuid.UUID, targetFolderID uuid.UUID, newName string) (*vfs.Entry, error) {
	return s.relocate(ctx, id, targetFolderID, newName, false)
}

// Restore atomically flips a TRASHED entry back to ACTIVE under the target
// parent, clearing trash bookkeeping.
func (s *EntryStore) Restore(ctx context.Context, id uuid.UUID, targetParentID uuid.UUID, newName string) (*vfs.Entry, error) {
	return s.relocate(ctx, id, targetParentID, newName, true)
}

// relocate is the shared reparenting transaction behind Move and Restore.
func (s *EntryStore) relocate(ctx context.Context, id uuid.UUID, targetID uuid.UUID, newName string, restore bool) (*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	var moved *vfs.Entry
	err := s.store.db.Update(func(txn *badger.Txn) error {
		entry, err := getEntryTxn(txn, id)
		if err != nil {
			return err
		}

		target, err := getEntryTxn(txn, targetID)
		if err != nil {
			if vfs.IsNotFound(err) {
				return &vfs.Error{Code: vfs.ErrNotFound, Message: "target folder not found", Path: targetID.String()}
			}
			return err
		}
		if !target.IsFolder() {
			return &vfs.Error{Code: vfs.ErrValidation, Message: "target is not a folder", Path: target.FullPath}
		}
		if target.Status != vfs.StatusActive {
			return &vfs.Error{Code: vfs.ErrValidation, Message: "target folder is not active", Path: target.FullPath}
		}

		if err := checkNameSlotTxn(txn, target.ID, newName, id); err != nil {
			return err
		}

		updated := entry.Clone()
		updated.ParentID = &target.ID
		updated.Name = newName
		updated.FullPath = vfs.ChildPath(target.FullPath, newName)
		updated.UpdatedAt = time.Now().UTC()
		if restore {
			updated.Status = vfs.StatusActive
			updated.TrashedAt = nil
			updated.RestoreParentID = nil
		}

		if err := clearIndexesTxn(txn, entry); err != nil {
			return err
		}
		if err := writeEntryTxn(txn, updated); err != nil {
			return err
		}
		if err := rewriteSubtreeTxn(txn, updated); err != nil {
			return err
		}

		moved = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// Delete removes a single row and its index keys.
func (s *EntryStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	return s.store.db.Update(func(txn *badger.Txn) error {
		entry, err := getEntryTxn(txn, id)
		if err != nil {
			return err
		}
		if err := clearIndexesTxn(txn, entry); err != nil {
			return err
		}
		return txn.Delete(keyEntry(id))
	})
}

// UsageByOwner sums file sizes over the owner's ACTIVE and TRASHED files.
func (s *EntryStore) UsageByOwner(ctx context.Context, ownerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()

	var total int64
	err := s.store.db.View(func(txn *badger.Txn) error {
		return scanIndex(txn, keyOwnerPrefix(ownerID), func(id uuid.UUID) error {
			entry, err := getEntryTxn(txn, id)
			if err != nil {
				return err
			}
			if entry.IsFolder() {
				return nil
			}
			if entry.Status == vfs.StatusActive || entry.Status == vfs.StatusTrashed {
				total += entry.Size
			}
			return nil
		})
	})
	return total, err
}

// Healthcheck verifies the database accepts reads.
func (s *EntryStore) Healthcheck(ctx context.Context) error {
	return s.store.healthcheck(ctx)
}

// ============================================================================
// Transaction helpers
// ============================================================================

// errScanDone aborts an index scan early; callers treat it as success.
var errScanDone = errors.New("scan done")

// getEntryTxn loads and decodes an entry row inside a transaction.
func getEntryTxn(txn *badger.Txn, id uuid.UUID) (*vfs.Entry, error) {
	item, err := txn.Get(keyEntry(id))
	if err == badger.ErrKeyNotFound {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "entry not found", Path: id.String()}
	}
	if err != nil {
		return nil, err
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeEntry(val)
}

// writeEntryTxn writes an entry row and all of its index keys, claiming the
// ACTIVE name slot when applicable. Callers have already verified the slot
// is free.
func writeEntryTxn(txn *badger.Txn, entry *vfs.Entry) error {
	encoded, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := txn.Set(keyEntry(entry.ID), encoded); err != nil {
		return err
	}

	idBytes := []byte(entry.ID.String())
	if entry.ParentID != nil {
		if err := txn.Set(keyChild(*entry.ParentID, entry.ID), idBytes); err != nil {
			return err
		}
		if entry.Status == vfs.StatusActive {
			if err := txn.Set(keyNameSlot(*entry.ParentID, entry.Name), idBytes); err != nil {
				return err
			}
		}
	}
	return txn.Set(keyOwner(entry.OwnerID, entry.FullPath, entry.ID), idBytes)
}

// clearIndexesTxn removes the index keys derived from an entry's current
// state. The row itself is left to the caller.
func clearIndexesTxn(txn *badger.Txn, entry *vfs.Entry) error {
	if entry.ParentID != nil {
		if err := txn.Delete(keyChild(*entry.ParentID, entry.ID)); err != nil {
			return err
		}
		if entry.Status == vfs.StatusActive {
			if err := txn.Delete(keyNameSlot(*entry.ParentID, entry.Name)); err != nil {
				return err
			}
		}
	}
	return txn.Delete(keyOwner(entry.OwnerID, entry.FullPath, entry.ID))
}

// checkNameSlotTxn returns ErrConflict if the ACTIVE name slot is occupied
// by an entry other than selfID.
func checkNameSlotTxn(txn *badger.Txn, parentID uuid.UUID, name string, selfID uuid.UUID) error {
	item, err := txn.Get(keyNameSlot(parentID, name))
	if err == badger.ErrKeyNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if string(val) == selfID.String() {
		return nil
	}
	return &vfs.Error{Code: vfs.ErrConflict, Message: "name already taken by an active sibling", Path: name}
}

// listChildrenTxn loads every child of a folder, regardless of status.
func listChildrenTxn(txn *badger.Txn, parentID uuid.UUID) ([]*vfs.Entry, error) {
	var out []*vfs.Entry
	err := scanIndex(txn, keyChildPrefix(parentID), func(id uuid.UUID) error {
		entry, err := getEntryTxn(txn, id)
		if err != nil {
			return err
		}
		out = append(out, entry)
		return nil
	})
	return out, err
}

// rewriteSubtreeTxn recomputes FullPath for every descendant of a folder
// whose own path just changed, maintaining the owner index as it goes. The
// walk is an explicit queue over the children index, so depth never hits
// the call stack and entries merely sharing a path prefix are untouched.
func rewriteSubtreeTxn(txn *badger.Txn, root *vfs.Entry) error {
	if !root.IsFolder() {
		return nil
	}

	queue := []*vfs.Entry{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		children, err := listChildrenTxn(txn, parent.ID)
		if err != nil {
			return err
		}

		for _, child := range children {
			if err := txn.Delete(keyOwner(child.OwnerID, child.FullPath, child.ID)); err != nil {
				return err
			}

			child.FullPath = vfs.ChildPath(parent.FullPath, child.Name)

			encoded, err := encodeEntry(child)
			if err != nil {
				return err
			}
			if err := txn.Set(keyEntry(child.ID), encoded); err != nil {
				return err
			}
			if err := txn.Set(keyOwner(child.OwnerID, child.FullPath, child.ID), []byte(child.ID.String())); err != nil {
				return err
			}

			if child.IsFolder() {
				queue = append(queue, child)
			}
		}
	}
	return nil
}

// scanIndex iterates an index prefix, decoding each value as an entry id.
func scanIndex(txn *badger.Txn, prefix []byte, fn func(id uuid.UUID) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		id, err := uuid.Parse(string(val))
		if err != nil {
			continue // index value is not an id (foreign namespace); skip
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

// sameParent compares two optional parent ids.
func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sortByPath orders entries by FullPath ascending.
func sortByPath(entries []*vfs.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FullPath < entries[j].FullPath
	})
}

// Interface conformance check.
var _ vfs.EntryStore = (*EntryStore)(nil)
