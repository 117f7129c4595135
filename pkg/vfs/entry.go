// Package vfs implements the virtual filesystem core of Cubby: the layer that
// turns a flat object-storage bucket into a per-user hierarchy of folders and
// files.
//
// The package is organized around a small set of collaborators, assembled via
// constructor injection:
//
//   - EntryStore: persistence for file/folder metadata rows (see repository.go)
//   - Service: the domain service owning all lifecycle transition rules
//   - QuotaAccountant: per-user storage accounting against plan limits
//   - AccessCodeIssuer: short-lived anonymous sharing codes
//   - objectstore.ObjectStore: the byte-level gateway (separate package)
//
// Separation of Concerns:
//
// The metadata layer manages hierarchy, naming, and lifecycle state but never
// stores file content. Content lives in an object store and is referenced by
// ObjectKey. Metadata is written only after an upload is confirmed, so an
// expired pre-signed URL never leaves an orphaned row behind.
package vfs

import (
	"time"

	"github.com/google/uuid"
)

// EntryType discriminates the two kinds of entries in the hierarchy.
type EntryType int

const (
	// EntryTypeFile is a regular file backed by an object in the object store.
	EntryTypeFile EntryType = iota

	// EntryTypeFolder is a directory. Folders have no content and no size.
	EntryTypeFolder
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeFile:
		return "file"
	case EntryTypeFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// EntryStatus is the lifecycle state of an entry.
//
// Transitions (enforced by Service, never by stores or callers):
//
//	ACTIVE → TRASHED   (Trash)
//	TRASHED → ACTIVE   (Restore)
//	TRASHED → removed  (HardDelete)
//	ACTIVE → ARCHIVED  (legal-hold/export workflows; terminal)
type EntryStatus string

const (
	StatusActive   EntryStatus = "ACTIVE"
	StatusTrashed  EntryStatus = "TRASHED"
	StatusArchived EntryStatus = "ARCHIVED"
)

// MaxNameLength is the maximum length of an entry name in characters.
const MaxNameLength = 64

// Entry is a single file or folder record in a user's hierarchy.
//
// The hierarchy is represented purely through ParentID pointers plus the
// cached FullPath; no live parent/child object references are ever held
// across requests. FullPath is derived state: it always equals the parent's
// FullPath + "/" + Name, and every structural mutation (rename, move,
// restore) recomputes it for the entry and, for folders, for the whole
// subtree. Keeping it materialized makes prefix queries cheap and
// deterministic ordering trivial.
type Entry struct {
	// ID is the stable, opaque identifier of the entry. It never changes,
	// not even across moves or renames.
	ID uuid.UUID `json:"id"`

	// Type discriminates files from folders.
	Type EntryType `json:"type"`

	// Name is the display name inside the parent folder (1-64 chars,
	// sanitized). Among ACTIVE siblings of one parent, names are unique.
	Name string `json:"name"`

	// ParentID is the containing folder. It is nil only for a user's root
	// and trash containers, which are provisioned externally.
	ParentID *uuid.UUID `json:"parent_id,omitempty"`

	// FullPath is the cached, slash-joined materialization of the entry's
	// ancestry, e.g. "/documents/reports/q3.pdf".
	FullPath string `json:"full_path"`

	// OwnerID identifies the owning user. All store queries are scoped by
	// owner; an entry is never visible to another user.
	OwnerID string `json:"owner_id"`

	// Status is the lifecycle state.
	Status EntryStatus `json:"status"`

	// TrashedAt is set iff Status != ACTIVE.
	TrashedAt *time.Time `json:"trashed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// File-only fields. Zero-valued for folders.

	// Size is the content size in bytes.
	Size int64 `json:"size,omitempty"`

	// MimeType is the declared content type, e.g. "application/pdf".
	MimeType string `json:"mime_type,omitempty"`

	// ContentHash is the checksum reported by the object store at upload
	// confirmation.
	ContentHash string `json:"content_hash,omitempty"`

	// ObjectKey points at the backing object in the object store.
	ObjectKey string `json:"object_key,omitempty"`

	// RestoreParentID snapshots ParentID at trash time. Restore targets it
	// if the original parent still exists and is ACTIVE, falling back to
	// the user's root folder otherwise.
	RestoreParentID *uuid.UUID `json:"restore_parent_id,omitempty"`
}

// IsFolder reports whether the entry is a folder.
func (e *Entry) IsFolder() bool {
	return e.Type == EntryTypeFolder
}

// IsActive reports whether the entry is in the ACTIVE state.
func (e *Entry) IsActive() bool {
	return e.Status == StatusActive
}

// Clone returns a deep copy of the entry. Stores return clones so callers
// can never mutate persisted state through a shared pointer.
func (e *Entry) Clone() *Entry {
	clone := *e
	if e.ParentID != nil {
		id := *e.ParentID
		clone.ParentID = &id
	}
	if e.RestoreParentID != nil {
		id := *e.RestoreParentID
		clone.RestoreParentID = &id
	}
	if e.TrashedAt != nil {
		t := *e.TrashedAt
		clone.TrashedAt = &t
	}
	return &clone
}

// ChildPath joins a parent path and a child name.
//
// The root folder's FullPath is "/", so naive concatenation would produce
// "//name" for root children; this helper normalizes that case.
func ChildPath(parentPath, name string) string {
	if parentPath == "/" || parentPath == "" {
		return "/" + name
	}
	return parentPath + "/" + name
}

// AccessCode grants time-boxed anonymous download access to a single file.
//
// Codes are consulted read-only by the download flow. A code whose ExpiresAt
// is in the past is logically absent whether or not the row has been
// physically purged.
type AccessCode struct {
	// Code is the short random token, globally unique.
	Code string `json:"code"`

	// FileID is the file this code grants access to. Many codes may point
	// at one file over time.
	FileID uuid.UUID `json:"file_id"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the code is logically absent at the given instant.
func (c *AccessCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// FileMetadata is the anonymous-download view of a file, resolved from an
// access code. It deliberately exposes nothing about the owner or hierarchy.
type FileMetadata struct {
	FileID        uuid.UUID `json:"file_id"`
	FileName      string    `json:"file_name"`
	FileSize      int64     `json:"file_size"`
	FileExtension string    `json:"file_extension"`
	MimeType      string    `json:"mime_type"`
	ObjectKey     string    `json:"-"`
}
