// Package memory implements vfs.EntryStore and vfs.AccessCodeStore using
// in-memory data structures.
//
// This implementation is suitable for:
//   - Tests and development environments
//   - Ephemeral deployments where metadata persistence is not required
//
// Thread Safety:
// All operations are protected by a single read-write mutex, making the
// store safe for concurrent access from multiple goroutines. This
// coarse-grained locking is simple and correct; the Badger-backed store is
// the one tuned for production concurrency.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cubbyhole/cubby/pkg/vfs"
)

// EntryStore is the in-memory entry repository.
//
// Storage model: a single map keyed by entry id. Every structural query is
// a scan, which is fine at test scale; the sibling and subtree helpers keep
// the scan logic in one place so the Badger store can mirror the exact same
// semantics over its indexes.
type EntryStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*vfs.Entry
}

// NewEntryStore creates an empty in-memory entry store.
func NewEntryStore() *EntryStore {
	return &EntryStore{entries: make(map[uuid.UUID]*vfs.Entry)}
}

// Get retrieves an entry by id.
func (s *EntryStore) Get(ctx context.Context, id uuid.UUID) (*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "entry not found", Path: id.String()}
	}
	return entry.Clone(), nil
}

// GetByPath retrieves the owner's ACTIVE entry with the exact FullPath.
func (s *EntryStore) GetByPath(ctx context.Context, ownerID string, fullPath string) (*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.entries {
		if entry.OwnerID == ownerID && entry.FullPath == fullPath && entry.Status == vfs.StatusActive {
			return entry.Clone(), nil
		}
	}
	return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "entry not found", Path: fullPath}
}

// ListByParent returns the children of a folder matching the filter,
// ordered by FullPath ascending.
func (s *EntryStore) ListByParent(ctx context.Context, parentID uuid.UUID, filter vfs.StatusFilter) ([]*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*vfs.Entry
	for _, entry := range s.entries {
		if entry.ParentID != nil && *entry.ParentID == parentID && filter.Matches(entry.Status) {
			out = append(out, entry.Clone())
		}
	}
	sortByPath(out)
	return out, nil
}

// ListByOwner returns the owner's entries matching the filter, ordered by
// FullPath ascending, bounded by page.
func (s *EntryStore) ListByOwner(ctx context.Context, ownerID string, filter vfs.StatusFilter, page vfs.Page) ([]*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*vfs.Entry
	for _, entry := range s.entries {
		if entry.OwnerID == ownerID && filter.Matches(entry.Status) {
			out = append(out, entry.Clone())
		}
	}
	sortByPath(out)
	return paginate(out, page), nil
}

// ListByPathPrefix returns the owner's entries whose FullPath starts with
// prefix, ordered by FullPath ascending.
func (s *EntryStore) ListByPathPrefix(ctx context.Context, ownerID string, prefix string, filter vfs.StatusFilter) ([]*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*vfs.Entry
	for _, entry := range s.entries {
		if entry.OwnerID == ownerID && hasPrefix(entry.FullPath, prefix) && filter.Matches(entry.Status) {
			out = append(out, entry.Clone())
		}
	}
	sortByPath(out)
	return out, nil
}

// ExistsSiblingName reports whether an ACTIVE child of parentID carries the
// given name.
func (s *EntryStore) ExistsSiblingName(ctx context.Context, parentID uuid.UUID, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.activeSiblingLocked(parentID, name, nil) != nil, nil
}

// Create inserts a new entry, enforcing ACTIVE sibling-name uniqueness.
func (s *EntryStore) Create(ctx context.Context, entry *vfs.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.ID]; exists {
		return &vfs.Error{Code: vfs.ErrConflict, Message: "entry id already exists", Path: entry.ID.String()}
	}

	if entry.Status == vfs.StatusActive && entry.ParentID != nil {
		if dup := s.activeSiblingLocked(*entry.ParentID, entry.Name, nil); dup != nil {
			return &vfs.Error{Code: vfs.ErrConflict, Message: "name already taken by an active sibling", Path: entry.Name}
		}
	}

	s.entries[entry.ID] = entry.Clone()
	return nil
}

// Update persists the entry's field values over the stored row.
func (s *EntryStore) Update(ctx context.Context, entry *vfs.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.ID]; !exists {
		return &vfs.Error{Code: vfs.ErrNotFound, Message: "entry not found", Path: entry.ID.String()}
	}

	if entry.Status == vfs.StatusActive && entry.ParentID != nil {
		if dup := s.activeSiblingLocked(*entry.ParentID, entry.Name, &entry.ID); dup != nil {
			return &vfs.Error{Code: vfs.ErrConflict, Message: "name already taken by an active sibling", Path: entry.Name}
		}
	}

	s.entries[entry.ID] = entry.Clone()
	return nil
}

// Rename atomically renames an entry and rewrites its subtree's paths.
func (s *EntryStore) Rename(ctx context.Context, id uuid.UUID, newName string) (*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "entry not found", Path: id.String()}
	}
	if entry.ParentID == nil {
		return nil, &vfs.Error{Code: vfs.ErrValidation, Message: "root containers cannot be renamed", Path: entry.FullPath}
	}

	if dup := s.activeSiblingLocked(*entry.ParentID, newName, &id); dup != nil {
		return nil, &vfs.Error{Code: vfs.ErrConflict, Message: "name already taken by an active sibling", Path: newName}
	}

	parent := s.entries[*entry.ParentID]
	if parent == nil {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "parent not found", Path: entry.FullPath}
	}

	entry.Name = newName
	entry.FullPath = vfs.ChildPath(parent.FullPath, newName)
	entry.UpdatedAt = time.Now().UTC()
	s.rewriteSubtreePathsLocked(entry)

	return entry.Clone(), nil
}

// Move atomically reparents an entry, re-validating the target inside the
// critical section so a concurrently trashed target fails the move.
func (s *EntryStore) Move(ctx context.Context, id uuid.UUID, targetFolderID uuid.UUID, newName string) (*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "entry not found", Path: id.String()}
	}

	target, err := s.liveTargetLocked(targetFolderID)
	if err != nil {
		return nil, err
	}

	if dup := s.activeSiblingLocked(target.ID, newName, &id); dup != nil {
		return nil, &vfs.Error{Code: vfs.ErrConflict, Message: "name already taken by an active sibling", Path: newName}
	}

	entry.ParentID = &target.ID
	entry.Name = newName
	entry.FullPath = vfs.ChildPath(target.FullPath, newName)
	entry.UpdatedAt = time.Now().UTC()
	s.rewriteSubtreePathsLocked(entry)

	return entry.Clone(), nil
}

// Restore atomically flips a TRASHED entry back to ACTIVE under the target
// parent, clearing trash bookkeeping and rewriting subtree paths.
func (s *EntryStore) Restore(ctx context.Context, id uuid.UUID, targetParentID uuid.UUID, newName string) (*vfs.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "entry not found", Path: id.String()}
	}

	target, err := s.liveTargetLocked(targetParentID)
	if err != nil {
		return nil, err
	}

	if dup := s.activeSiblingLocked(target.ID, newName, &id); dup != nil {
		return nil, &vfs.Error{Code: vfs.ErrConflict, Message: "name already taken by an active sibling", Path: newName}
	}

	entry.Status = vfs.StatusActive
	entry.TrashedAt = nil
	entry.RestoreParentID = nil
	entry.ParentID = &target.ID
	entry.Name = newName
	entry.FullPath = vfs.ChildPath(target.FullPath, newName)
	entry.UpdatedAt = time.Now().UTC()
	s.rewriteSubtreePathsLocked(entry)

	return entry.Clone(), nil
}

// Delete removes a single row.
func (s *EntryStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; !exists {
		return &vfs.Error{Code: vfs.ErrNotFound, Message: "entry not found", Path: id.String()}
	}
	delete(s.entries, id)
	return nil
}

// UsageByOwner sums file sizes over the owner's ACTIVE and TRASHED files.
func (s *EntryStore) UsageByOwner(ctx context.Context, ownerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, entry := range s.entries {
		if entry.OwnerID != ownerID || entry.IsFolder() {
			continue
		}
		if entry.Status == vfs.StatusActive || entry.Status == vfs.StatusTrashed {
			total += entry.Size
		}
	}
	return total, nil
}

// Healthcheck always succeeds for the in-memory store.
func (s *EntryStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}

// ============================================================================
// Internals (callers hold s.mu)
// ============================================================================

// activeSiblingLocked finds an ACTIVE child of parentID named name,
// excluding at most one id. Returns nil if no such sibling exists.
func (s *EntryStore) activeSiblingLocked(parentID uuid.UUID, name string, exclude *uuid.UUID) *vfs.Entry {
	for _, entry := range s.entries {
		if exclude != nil && entry.ID == *exclude {
			continue
		}
		if entry.ParentID != nil && *entry.ParentID == parentID &&
			entry.Name == name && entry.Status == vfs.StatusActive {
			return entry
		}
	}
	return nil
}

// liveTargetLocked loads a move/restore target and validates it is an
// ACTIVE folder. This check runs inside the same critical section as the
// mutation, which is what closes the move-vs-concurrent-trash race.
func (s *EntryStore) liveTargetLocked(id uuid.UUID) (*vfs.Entry, error) {
	target, ok := s.entries[id]
	if !ok {
		return nil, &vfs.Error{Code: vfs.ErrNotFound, Message: "target folder not found", Path: id.String()}
	}
	if !target.IsFolder() {
		return nil, &vfs.Error{Code: vfs.ErrValidation, Message: "target is not a folder", Path: target.FullPath}
	}
	if target.Status != vfs.StatusActive {
		return nil, &vfs.Error{Code: vfs.ErrValidation, Message: "target folder is not active", Path: target.FullPath}
	}
	return target, nil
}

// rewriteSubtreePathsLocked recomputes FullPath for every descendant of a
// folder after the folder's own path changed. The walk is an explicit
// queue over parent pointers (not a path-prefix scan), so entries that
// merely share a path prefix with the subtree are never touched, and depth
// never hits the call stack.
func (s *EntryStore) rewriteSubtreePathsLocked(root *vfs.Entry) {
	if !root.IsFolder() {
		return
	}

	queue := []*vfs.Entry{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		for _, child := range s.entries {
			if child.ParentID == nil || *child.ParentID != parent.ID {
				continue
			}
			child.FullPath = vfs.ChildPath(parent.FullPath, child.Name)
			if child.IsFolder() {
				queue = append(queue, child)
			}
		}
	}
}

// sortByPath orders entries by FullPath ascending for deterministic
// traversal; parents always sort before their descendants.
func sortByPath(entries []*vfs.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FullPath < entries[j].FullPath
	})
}

// paginate applies a Page bound to an already-sorted slice.
func paginate(entries []*vfs.Entry, page vfs.Page) []*vfs.Entry {
	if page.Offset > 0 {
		if page.Offset >= len(entries) {
			return nil
		}
		entries = entries[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(entries) {
		entries = entries[:page.Limit]
	}
	return entries
}

// hasPrefix matches FullPath prefixes. A bare string prefix is correct
// here because prefixes are always either "/" or a folder path plus "/".
func hasPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}
