package vfs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StatusFilter selects which lifecycle states a listing includes.
type StatusFilter struct {
	// Statuses is the set of states to include. Empty means all states.
	Statuses []EntryStatus
}

// FilterActive matches only ACTIVE entries. This is the default view of the
// hierarchy.
func FilterActive() StatusFilter {
	return StatusFilter{Statuses: []EntryStatus{StatusActive}}
}

// FilterTrashed matches only TRASHED entries.
func FilterTrashed() StatusFilter {
	return StatusFilter{Statuses: []EntryStatus{StatusTrashed}}
}

// FilterAny matches every state.
func FilterAny() StatusFilter {
	return StatusFilter{}
}

// Matches reports whether the filter includes the given status.
func (f StatusFilter) Matches(status EntryStatus) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Page bounds a listing for paginated reads. A zero Limit means no bound.
type Page struct {
	Limit  int
	Offset int
}

// EntryStore is the persistence abstraction over entry rows.
//
// The store exclusively owns persisted rows; the domain Service exclusively
// owns transition rules. No other component mutates Status, FullPath, or
// ParentID.
//
// Invariant Enforcement:
//
// Structural writes (Create, Update, Rename, Move, Restore) enforce name
// uniqueness among ACTIVE siblings of one parent inside the same transaction
// that performs the write, returning ErrConflict on violation. Two
// concurrent creates that both passed name resolution against a stale
// sibling list therefore cannot both commit; the Service catches the
// conflict and retries resolution once.
//
// Move and Restore additionally re-validate inside their transaction that
// the target folder still exists and is ACTIVE, so moving into a folder that
// a concurrent request just trashed fails with ErrValidation instead of
// silently relocating into the trash.
//
// Ordering:
//
// All list operations return entries ordered by FullPath ascending, which
// gives deterministic traversal and guarantees parents sort before their
// descendants.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type EntryStore interface {
	// Get retrieves an entry by id. Returns ErrNotFound if the row is
	// absent. Ownership is checked by the Service, which compares OwnerID
	// against the authenticated caller and reports ErrNotFound on mismatch.
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)

	// GetByPath retrieves the owner's ACTIVE entry with the exact
	// FullPath. Returns ErrNotFound if absent. Trashed entries keep their
	// old FullPath and a later ACTIVE entry may legitimately reuse it, so
	// path addressing is only well-defined for the ACTIVE view. Used to
	// locate the root container ("/") and for path-addressed lookups.
	GetByPath(ctx context.Context, ownerID string, fullPath string) (*Entry, error)

	// ListByParent returns the children of a folder matching the filter,
	// ordered by FullPath ascending.
	ListByParent(ctx context.Context, parentID uuid.UUID, filter StatusFilter) ([]*Entry, error)

	// ListByOwner returns all entries owned by ownerID matching the filter,
	// ordered by FullPath ascending, bounded by page.
	ListByOwner(ctx context.Context, ownerID string, filter StatusFilter, page Page) ([]*Entry, error)

	// ListByPathPrefix returns the owner's entries whose FullPath starts
	// with prefix, ordered by FullPath ascending. Prefix listings match
	// stale paths too: a TRASHED folder keeps its old FullPath, which a
	// later ACTIVE folder may reuse, so this is a path query, not a subtree
	// enumeration. Structural operations walk ListByParent instead.
	ListByPathPrefix(ctx context.Context, ownerID string, prefix string, filter StatusFilter) ([]*Entry, error)

	// ExistsSiblingName reports whether an ACTIVE child of parentID already
	// carries the given name.
	ExistsSiblingName(ctx context.Context, parentID uuid.UUID, name string) (bool, error)

	// Create inserts a new entry. Returns ErrConflict if an ACTIVE sibling
	// with the same name exists.
	Create(ctx context.Context, entry *Entry) error

	// Update persists the entry's current field values over the stored row.
	// Returns ErrNotFound if the row is absent and ErrConflict if the write
	// would violate ACTIVE sibling-name uniqueness. Update never rewrites
	// descendants; structural mutations go through Rename/Move/Restore.
	Update(ctx context.Context, entry *Entry) error

	// Rename atomically renames an entry and rewrites FullPath for the
	// entry and, for folders, its entire subtree (old prefix → new prefix).
	// Returns the updated entry.
	Rename(ctx context.Context, id uuid.UUID, newName string) (*Entry, error)

	// Move atomically reparents an entry under targetFolderID with the
	// given (already resolved) name, rewriting FullPath for the entry and
	// its subtree. The target's existence and ACTIVE folder status are
	// re-validated inside the transaction. The caller is responsible for
	// the acyclicity check (target not a descendant of id).
	Move(ctx context.Context, id uuid.UUID, targetFolderID uuid.UUID, newName string) (*Entry, error)

	// Restore atomically flips a TRASHED entry back to ACTIVE under
	// targetParentID with the given name, clearing TrashedAt and rewriting
	// FullPath for the entry and its subtree. The target's ACTIVE folder
	// status is re-validated inside the transaction.
	Restore(ctx context.Context, id uuid.UUID, targetParentID uuid.UUID, newName string) (*Entry, error)

	// Delete removes a single row. Returns ErrNotFound if absent. Callers
	// must delete children first; the store does not cascade.
	Delete(ctx context.Context, id uuid.UUID) error

	// UsageByOwner returns the total size in bytes of the owner's files in
	// {ACTIVE, TRASHED}. ARCHIVED files are excluded from quota accounting.
	UsageByOwner(ctx context.Context, ownerID string) (int64, error)

	// Healthcheck verifies the store is reachable and serving.
	Healthcheck(ctx context.Context) error
}

// AccessCodeStore persists sharing codes. Expiry is a logical property
// evaluated by the issuer: stores return expired rows as-is, and physical
// purging is an explicit maintenance operation.
type AccessCodeStore interface {
	// Create inserts a code. Returns ErrConflict if the code string is
	// already taken (the issuer regenerates and retries).
	Create(ctx context.Context, code *AccessCode) error

	// GetByCode retrieves a code row. Returns ErrNotFound if absent.
	GetByCode(ctx context.Context, code string) (*AccessCode, error)

	// GetByFileID retrieves the most recently created code for a file.
	// Returns ErrNotFound if the file has no codes.
	GetByFileID(ctx context.Context, fileID uuid.UUID) (*AccessCode, error)

	// DeleteByCode removes a code row. Returns ErrNotFound if absent.
	DeleteByCode(ctx context.Context, code string) error

	// DeleteByFileID removes every code pointing at a file. Deleting zero
	// rows is not an error; this is invoked on file hard-delete.
	DeleteByFileID(ctx context.Context, fileID uuid.UUID) error

	// PurgeExpired physically deletes rows whose ExpiresAt is before now
	// and returns how many were removed. Logical expiry does not depend on
	// this running.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)

	// Healthcheck verifies the store is reachable and serving.
	Healthcheck(ctx context.Context) error
}
