package vfs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cubbyhole/cubby/pkg/objectstore"
)

// RootPath is the FullPath of every user's root folder.
const RootPath = "/"

// TrashContainerName is the name of the per-user trash container provisioned
// alongside the root. Soft-deleted entries keep their original ParentID and
// are tracked by status, so the container itself only anchors the trash view
// in clients that want a folder to point at.
const TrashContainerName = "Trash"

// Service orchestrates the entry stores, the naming resolver, the quota
// accountant, and the object storage gateway to implement the entry
// lifecycle. It is the only component with cross-cutting invariants:
//
//   - among ACTIVE siblings of one parent, names are unique
//   - FullPath always equals parent FullPath + "/" + name, subtree included
//   - per-user bytes in {ACTIVE, TRASHED} stay within the plan limit
//   - parent chains never cycle; moves never target the moved subtree
//
// Every public operation is synchronous and request-scoped; there is no
// background scheduling inside this core.
type Service struct {
	entries EntryStore
	codes   AccessCodeStore
	objects objectstore.ObjectStore
	quota   *QuotaAccountant
}

// NewService wires a Service from its collaborators. All dependencies are
// required; assembly happens once at process start (see pkg/config).
func NewService(entries EntryStore, codes AccessCodeStore, objects objectstore.ObjectStore, quota *QuotaAccountant) *Service {
	return &Service{
		entries: entries,
		codes:   codes,
		objects: objects,
		quota:   quota,
	}
}

// ============================================================================
// Account provisioning
// ============================================================================

// ProvisionAccount creates the root and trash containers for a new user.
// Account creation itself (credentials, billing) is an external concern;
// this only seeds the two nil-parent folders every hierarchy hangs off.
//
// Provisioning is idempotent: if the root already exists, the existing
// containers are returned unchanged.
func (s *Service) ProvisionAccount(ctx context.Context, ownerID string) (root *Entry, trash *Entry, err error) {
	if ownerID == "" {
		return nil, nil, validation("owner id is required", "")
	}

	existing, err := s.entries.GetByPath(ctx, ownerID, RootPath)
	if err == nil {
		trash, terr := s.entries.GetByPath(ctx, ownerID, RootPath+TrashContainerName)
		if terr != nil {
			return nil, nil, terr
		}
		return existing, trash, nil
	}
	if !IsNotFound(err) {
		return nil, nil, err
	}

	now := time.Now().UTC()
	root = &Entry{
		ID:        uuid.New(),
		Type:      EntryTypeFolder,
		Name:      "",
		FullPath:  RootPath,
		OwnerID:   ownerID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.entries.Create(ctx, root); err != nil {
		return nil, nil, err
	}

	trash = &Entry{
		ID:        uuid.New(),
		Type:      EntryTypeFolder,
		Name:      TrashContainerName,
		FullPath:  RootPath + TrashContainerName,
		OwnerID:   ownerID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.entries.Create(ctx, trash); err != nil {
		return nil, nil, err
	}

	log.Info().Str("owner_id", ownerID).Msg("account containers provisioned")
	return root, trash, nil
}

// ============================================================================
// Create
// ============================================================================

// CreateFileParams carries the inputs for CreateFile. Size, ContentHash, and
// ObjectKey come from the confirmed upload (see ConfirmUpload); metadata is
// only written once the bytes are known to exist.
type CreateFileParams struct {
	OwnerID     string
	ParentID    uuid.UUID
	Name        string
	Size        int64
	MimeType    string
	ContentHash string
	ObjectKey   string
}

// CreateFile records a newly uploaded file under a parent folder.
//
// The quota admission check runs with the owner's admission lock held across
// check + insert, so two concurrent uploads by the same user cannot jointly
// overshoot the plan limit.
func (s *Service) CreateFile(ctx context.Context, params CreateFileParams) (*Entry, error) {
	if strings.TrimSpace(params.Name) == "" {
		return nil, validation("name is required", "")
	}
	if params.Size < 0 {
		return nil, validation("size must not be negative", params.Name)
	}
	if params.ObjectKey == "" {
		return nil, validation("object key is required", params.Name)
	}

	parent, err := s.getOwnedFolder(ctx, params.OwnerID, params.ParentID)
	if err != nil {
		return nil, err
	}

	unlock := s.quota.LockAdmission(params.OwnerID)
	defer unlock()

	if err := s.quota.CheckAdmission(ctx, params.OwnerID, params.Size); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:          uuid.New(),
		Type:        EntryTypeFile,
		ParentID:    &parent.ID,
		OwnerID:     params.OwnerID,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		Size:        params.Size,
		MimeType:    params.MimeType,
		ContentHash: params.ContentHash,
		ObjectKey:   params.ObjectKey,
	}

	if err := s.createResolved(ctx, entry, parent, params.Name); err != nil {
		return nil, err
	}

	log.Debug().
		Str("owner_id", params.OwnerID).
		Str("path", entry.FullPath).
		Int64("size", entry.Size).
		Msg("file created")
	return entry, nil
}

// CreateDirectory creates a folder under a parent. Folders are free: no
// quota check applies.
func (s *Service) CreateDirectory(ctx context.Context, ownerID string, parentID uuid.UUID, name string) (*Entry, error) {
	if strings.TrimSpace(name) == "" {
		return nil, validation("name is required", "")
	}

	parent, err := s.getOwnedFolder(ctx, ownerID, parentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := &Entry{
		ID:        uuid.New(),
		Type:      EntryTypeFolder,
		ParentID:  &parent.ID,
		OwnerID:   ownerID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.createResolved(ctx, entry, parent, name); err != nil {
		return nil, err
	}

	log.Debug().Str("owner_id", ownerID).Str("path", entry.FullPath).Msg("directory created")
	return entry, nil
}

// createResolved resolves a collision-free name against the parent's ACTIVE
// siblings and inserts the entry. A store-level conflict means a concurrent
// writer won the name after our sibling read; the siblings are re-read and
// resolution retried exactly once before the conflict is surfaced.
func (s *Service) createResolved(ctx context.Context, entry *Entry, parent *Entry, rawName string) error {
	for attempt := 0; ; attempt++ {
		names, err := s.activeSiblingNames(ctx, parent.ID, nil)
		if err != nil {
			return err
		}

		entry.Name = ResolveSafeName(rawName, names)
		entry.FullPath = ChildPath(parent.FullPath, entry.Name)

		err = s.entries.Create(ctx, entry)
		if err == nil {
			return nil
		}
		if !IsConflict(err) || attempt >= 1 {
			return err
		}
	}
}

// ============================================================================
// Rename / Move
// ============================================================================

// Rename changes an entry's display name, resolving collisions against its
// ACTIVE siblings (excluding itself). For folders, the FullPath of every
// descendant is rewritten atomically with the rename.
func (s *Service) Rename(ctx context.Context, ownerID string, id uuid.UUID, newName string) (*Entry, error) {
	if strings.TrimSpace(newName) == "" {
		return nil, validation("name is required", "")
	}

	entry, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if entry.ParentID == nil {
		return nil, validation("root containers cannot be renamed", entry.FullPath)
	}
	if !entry.IsActive() {
		return nil, &Error{Code: ErrInvalidState, Message: "only active entries can be renamed", Path: entry.FullPath}
	}

	for attempt := 0; ; attempt++ {
		names, err := s.activeSiblingNames(ctx, *entry.ParentID, &entry.ID)
		if err != nil {
			return nil, err
		}

		resolved := ResolveSafeName(newName, names)
		if resolved == entry.Name {
			return entry, nil
		}

		renamed, err := s.entries.Rename(ctx, id, resolved)
		if err == nil {
			log.Debug().Str("owner_id", ownerID).Str("from", entry.FullPath).Str("to", renamed.FullPath).Msg("entry renamed")
			return renamed, nil
		}
		if !IsConflict(err) || attempt >= 1 {
			return nil, err
		}
	}
}

// Move reparents an entry under targetFolderID, resolving its name against
// the target's ACTIVE siblings (an entry may be silently renamed on move to
// avoid a collision).
//
// Acyclicity (I4) is checked against the cached FullPath: the target must
// not be the entry itself nor live inside its subtree. The target's ACTIVE
// status is re-validated by the store inside the transaction that performs
// the reparent, so a concurrent Trash of the target fails the move instead
// of relocating into a trashed folder.
func (s *Service) Move(ctx context.Context, ownerID string, id uuid.UUID, targetFolderID uuid.UUID) (*Entry, error) {
	entry, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if entry.ParentID == nil {
		return nil, validation("root containers cannot be moved", entry.FullPath)
	}
	if !entry.IsActive() {
		return nil, &Error{Code: ErrInvalidState, Message: "only active entries can be moved", Path: entry.FullPath}
	}

	target, err := s.getOwnedFolder(ctx, ownerID, targetFolderID)
	if err != nil {
		return nil, err
	}

	if target.ID == entry.ID {
		return nil, validation("cannot move an entry into itself", entry.FullPath)
	}
	if entry.IsFolder() && isDescendantPath(entry.FullPath, target.FullPath) {
		return nil, validation("cannot move a folder into its own subtree", target.FullPath)
	}

	for attempt := 0; ; attempt++ {
		names, err := s.activeSiblingNames(ctx, target.ID, &entry.ID)
		if err != nil {
			return nil, err
		}

		resolved := ResolveSafeName(entry.Name, names)

		moved, err := s.entries.Move(ctx, id, target.ID, resolved)
		if err == nil {
			log.Debug().Str("owner_id", ownerID).Str("from", entry.FullPath).Str("to", moved.FullPath).Msg("entry moved")
			return moved, nil
		}
		if !IsConflict(err) || attempt >= 1 {
			return nil, err
		}
	}
}

// ============================================================================
// Copy
// ============================================================================

// Copy duplicates an entry into targetFolderID and returns the new root of
// the copy.
//
// Files are copied by a server-side object copy under a fresh key, then a
// new row. Folders are copied breadth-first with an explicit queue, mapping
// old parent ids to freshly created ones as the walk proceeds so child
// copies always reference the new tree, never the original. Only ACTIVE
// descendants are copied; trashed leftovers inside a folder stay behind.
//
// The admission check covers the total byte size of the copied subtree.
func (s *Service) Copy(ctx context.Context, ownerID string, id uuid.UUID, targetFolderID uuid.UUID) (*Entry, error) {
	source, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !source.IsActive() {
		return nil, &Error{Code: ErrInvalidState, Message: "only active entries can be copied", Path: source.FullPath}
	}

	target, err := s.getOwnedFolder(ctx, ownerID, targetFolderID)
	if err != nil {
		return nil, err
	}
	if source.IsFolder() && (target.ID == source.ID || isDescendantPath(source.FullPath, target.FullPath)) {
		return nil, validation("cannot copy a folder into its own subtree", target.FullPath)
	}

	// Snapshot the subtree up front. The breadth-first walk lists parents
	// before their children, which the copy loop below relies on.
	subtree := []*Entry{source}
	if source.IsFolder() {
		descendants, err := s.listSubtree(ctx, source, FilterActive())
		if err != nil {
			return nil, err
		}
		subtree = append(subtree, descendants...)
	}

	var totalSize int64
	for _, e := range subtree {
		totalSize += e.Size
	}

	unlock := s.quota.LockAdmission(ownerID)
	defer unlock()

	if err := s.quota.CheckAdmission(ctx, ownerID, totalSize); err != nil {
		return nil, err
	}

	// Old folder id → freshly created copy, so child copies always parent
	// into the new tree.
	newParents := map[uuid.UUID]*Entry{}

	var copiedRoot *Entry
	for _, src := range subtree {
		var parent *Entry
		if src.ID == source.ID {
			parent = target
		} else {
			// Every descendant's parent precedes it in the walk and has
			// already been copied.
			parent = newParents[*src.ParentID]
		}
		rawName := src.Name

		now := time.Now().UTC()
		clone := &Entry{
			ID:        uuid.New(),
			Type:      src.Type,
			ParentID:  &parent.ID,
			OwnerID:   ownerID,
			Status:    StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
			Size:      src.Size,
			MimeType:  src.MimeType,
		}

		if src.Type == EntryTypeFile {
			newKey := objectstore.BuildKey(objectstore.ScopeUserUploads, src.Name)
			if err := s.objects.CopyObject(ctx, src.ObjectKey, newKey); err != nil {
				return nil, &Error{
					Code:    ErrObjectStore,
					Message: fmt.Sprintf("object copy failed: %v", err),
					Path:    src.FullPath,
				}
			}
			clone.ObjectKey = newKey
			clone.ContentHash = src.ContentHash
		}

		if err := s.createResolved(ctx, clone, parent, rawName); err != nil {
			return nil, err
		}

		if clone.IsFolder() {
			newParents[src.ID] = clone
		}
		if src.ID == source.ID {
			copiedRoot = clone
		}
	}

	log.Debug().
		Str("owner_id", ownerID).
		Str("source", source.FullPath).
		Str("copy", copiedRoot.FullPath).
		Int("entries", len(subtree)).
		Msg("entry copied")
	return copiedRoot, nil
}

// ============================================================================
// Trash / Restore / Hard delete
// ============================================================================

// Trash soft-deletes an entry: status flips to TRASHED, the trash timestamp
// is set, and the current parent is snapshotted for restore. The object
// bytes are untouched and keep counting against the owner's quota.
func (s *Service) Trash(ctx context.Context, ownerID string, id uuid.UUID) error {
	entry, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if entry.ParentID == nil {
		return validation("root containers cannot be trashed", entry.FullPath)
	}
	if !entry.IsActive() {
		return &Error{Code: ErrInvalidState, Message: "entry is not active", Path: entry.FullPath}
	}

	now := time.Now().UTC()
	entry.Status = StatusTrashed
	entry.TrashedAt = &now
	entry.RestoreParentID = entry.ParentID
	entry.UpdatedAt = now

	if err := s.entries.Update(ctx, entry); err != nil {
		return err
	}

	log.Debug().Str("owner_id", ownerID).Str("path", entry.FullPath).Msg("entry trashed")
	return nil
}

// Restore brings a TRASHED entry back to ACTIVE. The target parent is the
// snapshot taken at trash time if that folder still exists and is ACTIVE,
// falling back to the user's root folder otherwise. The name is re-resolved
// against the target's current siblings, since names may have been taken
// while the entry sat in the trash.
func (s *Service) Restore(ctx context.Context, ownerID string, id uuid.UUID) (*Entry, error) {
	entry, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if entry.Status != StatusTrashed {
		return nil, &Error{Code: ErrInvalidState, Message: "entry is not in the trash", Path: entry.FullPath}
	}

	target := s.restoreTarget(ctx, entry)

	for attempt := 0; ; attempt++ {
		names, err := s.activeSiblingNames(ctx, target.ID, &entry.ID)
		if err != nil {
			return nil, err
		}

		resolved := ResolveSafeName(entry.Name, names)

		restored, err := s.entries.Restore(ctx, id, target.ID, resolved)
		if err == nil {
			log.Debug().Str("owner_id", ownerID).Str("path", restored.FullPath).Msg("entry restored")
			return restored, nil
		}
		if !IsConflict(err) || attempt >= 1 {
			return nil, err
		}
	}
}

// restoreTarget picks the parent a trashed entry goes back under: the
// trash-time snapshot when it is still a live folder, else the root.
func (s *Service) restoreTarget(ctx context.Context, entry *Entry) *Entry {
	if entry.RestoreParentID != nil {
		parent, err := s.entries.Get(ctx, *entry.RestoreParentID)
		if err == nil && parent.OwnerID == entry.OwnerID && parent.IsFolder() && parent.IsActive() {
			return parent
		}
	}

	root, err := s.entries.GetByPath(ctx, entry.OwnerID, RootPath)
	if err != nil {
		// A user without a root folder is unprovisioned; surfacing it here
		// would complicate every caller for a state that cannot happen
		// after ProvisionAccount. Restore into a detached root reference
		// and let the store's target validation report it.
		log.Error().Str("owner_id", entry.OwnerID).Err(err).Msg("root folder missing during restore")
		return &Entry{ID: uuid.Nil, FullPath: RootPath}
	}
	return root
}

// HardDelete permanently removes an entry.
//
// For files, the object is deleted first and the metadata row only after
// the object delete succeeded. A failed object delete therefore leaves the
// row in place as the source of truth for retry, never an orphaned object
// without metadata. For folders, children are removed first (the
// parent-before-child subtree walk replayed in reverse), then the folder
// row.
func (s *Service) HardDelete(ctx context.Context, ownerID string, id uuid.UUID) error {
	entry, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if entry.ParentID == nil {
		return validation("root containers cannot be deleted", entry.FullPath)
	}

	if !entry.IsFolder() {
		if err := s.hardDeleteFile(ctx, entry); err != nil {
			return err
		}
		log.Debug().Str("owner_id", ownerID).Str("path", entry.FullPath).Msg("file hard-deleted")
		return nil
	}

	// The walk lists parents before children; deleting backwards yields
	// post-order without recursion, so arbitrarily deep trees cannot exhaust
	// the stack.
	subtree, err := s.listSubtree(ctx, entry, FilterAny())
	if err != nil {
		return err
	}

	for i := len(subtree) - 1; i >= 0; i-- {
		child := subtree[i]
		if child.IsFolder() {
			if err := s.entries.Delete(ctx, child.ID); err != nil && !IsNotFound(err) {
				return err
			}
			continue
		}
		if err := s.hardDeleteFile(ctx, child); err != nil {
			return err
		}
	}

	if err := s.entries.Delete(ctx, entry.ID); err != nil {
		return err
	}

	log.Debug().
		Str("owner_id", ownerID).
		Str("path", entry.FullPath).
		Int("entries", len(subtree)+1).
		Msg("folder hard-deleted")
	return nil
}

// hardDeleteFile deletes a file's object, then its row, then any access
// codes pointing at it. Code cleanup is best-effort: a dangling code already
// resolves to NotFound through the issuer.
func (s *Service) hardDeleteFile(ctx context.Context, entry *Entry) error {
	if err := s.objects.DeleteObject(ctx, entry.ObjectKey); err != nil {
		return &Error{
			Code:    ErrObjectStore,
			Message: fmt.Sprintf("object delete failed: %v", err),
			Path:    entry.FullPath,
		}
	}

	if err := s.entries.Delete(ctx, entry.ID); err != nil {
		return err
	}

	if err := s.codes.DeleteByFileID(ctx, entry.ID); err != nil {
		log.Warn().Str("file_id", entry.ID.String()).Err(err).Msg("failed to clean up access codes")
	}
	return nil
}

// EmptyTrash hard-deletes every TRASHED entry owned by ownerID, batching
// object deletions through the store's bulk delete. It returns the number of
// metadata rows removed.
//
// Objects are deleted before any row: if the batch delete fails, all rows
// remain and the operation can be retried.
func (s *Service) EmptyTrash(ctx context.Context, ownerID string) (int, error) {
	trashed, err := s.entries.ListByOwner(ctx, ownerID, FilterTrashed(), Page{})
	if err != nil {
		return 0, err
	}
	if len(trashed) == 0 {
		return 0, nil
	}

	// Expand each trashed root to its full subtree. Children of a trashed
	// folder are still ACTIVE rows, so they only disappear here.
	var doomed []*Entry
	for _, root := range trashed {
		doomed = append(doomed, root)
		if root.IsFolder() {
			subtree, err := s.listSubtree(ctx, root, FilterAny())
			if err != nil {
				return 0, err
			}
			doomed = append(doomed, subtree...)
		}
	}

	var keys []string
	for _, e := range doomed {
		if !e.IsFolder() && e.ObjectKey != "" {
			keys = append(keys, e.ObjectKey)
		}
	}
	if len(keys) > 0 {
		if err := s.objects.DeleteObjects(ctx, keys); err != nil {
			return 0, &Error{
				Code:    ErrObjectStore,
				Message: fmt.Sprintf("batch object delete failed: %v", err),
			}
		}
	}

	removed := 0
	for i := len(doomed) - 1; i >= 0; i-- {
		e := doomed[i]
		if err := s.entries.Delete(ctx, e.ID); err != nil {
			if IsNotFound(err) {
				continue
			}
			return removed, err
		}
		removed++
		if !e.IsFolder() {
			if err := s.codes.DeleteByFileID(ctx, e.ID); err != nil {
				log.Warn().Str("file_id", e.ID.String()).Err(err).Msg("failed to clean up access codes")
			}
		}
	}

	log.Info().Str("owner_id", ownerID).Int("entries", removed).Msg("trash emptied")
	return removed, nil
}

// ============================================================================
// Reads
// ============================================================================

// GetEntry returns a single entry visible to the owner.
func (s *Service) GetEntry(ctx context.Context, ownerID string, id uuid.UUID) (*Entry, error) {
	return s.getOwned(ctx, ownerID, id)
}

// ListContents lists the children of a folder matching the filter, ordered
// by FullPath ascending.
func (s *Service) ListContents(ctx context.Context, ownerID string, folderID uuid.UUID, filter StatusFilter) ([]*Entry, error) {
	folder, err := s.getOwned(ctx, ownerID, folderID)
	if err != nil {
		return nil, err
	}
	if !folder.IsFolder() {
		return nil, validation("entry is not a folder", folder.FullPath)
	}
	return s.entries.ListByParent(ctx, folder.ID, filter)
}

// ListTrashEntries lists the owner's soft-deleted entries.
func (s *Service) ListTrashEntries(ctx context.Context, ownerID string) ([]*Entry, error) {
	return s.entries.ListByOwner(ctx, ownerID, FilterTrashed(), Page{})
}

// ListByOwner lists the owner's entries matching the filter, paginated.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, filter StatusFilter, page Page) ([]*Entry, error) {
	return s.entries.ListByOwner(ctx, ownerID, filter, page)
}

// GetUsage reports the owner's storage consumption against their plan.
func (s *Service) GetUsage(ctx context.Context, ownerID string) (Usage, error) {
	return s.quota.GetUsage(ctx, ownerID)
}

// ============================================================================
// Upload / download plumbing
// ============================================================================

// UploadTicket is a pre-signed upload destination plus the object key a
// subsequent CreateFile must reference.
type UploadTicket struct {
	Key    string                    `json:"key"`
	Target *objectstore.UploadTarget `json:"target"`
}

// PrepareUpload issues a pre-signed upload URL for a new object key derived
// from the filename. No metadata row is written: the client uploads against
// the URL, the caller confirms with ConfirmUpload, and only then records the
// file with CreateFile.
func (s *Service) PrepareUpload(ctx context.Context, filename string, contentType string, ttl time.Duration) (*UploadTicket, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, validation("filename is required", "")
	}

	key := objectstore.BuildKey(objectstore.ScopeUserUploads, filename)
	target, err := s.objects.CreateUploadURL(ctx, key, contentType, ttl)
	if err != nil {
		return nil, &Error{Code: ErrObjectStore, Message: fmt.Sprintf("failed to create upload URL: %v", err)}
	}

	return &UploadTicket{Key: key, Target: target}, nil
}

// ConfirmUpload verifies that the object behind an upload ticket exists and
// returns its authoritative size and checksum for the CreateFile call.
func (s *Service) ConfirmUpload(ctx context.Context, key string) (*objectstore.ObjectInfo, error) {
	info, err := s.objects.HeadObject(ctx, key)
	if err != nil {
		return nil, &Error{Code: ErrObjectStore, Message: fmt.Sprintf("upload not found in object store: %v", err), Path: key}
	}
	return info, nil
}

// CreateDownloadURL issues a pre-signed download URL for a file the owner
// can see.
func (s *Service) CreateDownloadURL(ctx context.Context, ownerID string, id uuid.UUID, ttl time.Duration) (string, error) {
	entry, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	if entry.IsFolder() {
		return "", validation("folders cannot be downloaded", entry.FullPath)
	}

	url, err := s.objects.CreateDownloadURL(ctx, entry.ObjectKey, entry.Name, ttl)
	if err != nil {
		return "", &Error{Code: ErrObjectStore, Message: fmt.Sprintf("failed to create download URL: %v", err), Path: entry.FullPath}
	}
	return url, nil
}

// ============================================================================
// Internals
// ============================================================================

// getOwned loads an entry and hides it behind ErrNotFound when the owner
// does not match, so one user can never probe another's ids.
func (s *Service) getOwned(ctx context.Context, ownerID string, id uuid.UUID) (*Entry, error) {
	entry, err := s.entries.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.OwnerID != ownerID {
		return nil, notFound("entry not found", id.String())
	}
	return entry, nil
}

// getOwnedFolder loads an entry that must be an ACTIVE folder owned by the
// caller, the precondition shared by every parent/target argument.
func (s *Service) getOwnedFolder(ctx context.Context, ownerID string, id uuid.UUID) (*Entry, error) {
	entry, err := s.getOwned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !entry.IsFolder() {
		return nil, validation("entry is not a folder", entry.FullPath)
	}
	if !entry.IsActive() {
		return nil, validation("folder is not active", entry.FullPath)
	}
	return entry, nil
}

// listSubtree collects the descendants of a folder matching the filter,
// walking the parent/children relation breadth-first so parents always
// precede their children in the result. The relation walk matters: a
// TRASHED folder keeps its stale FullPath while a later ACTIVE folder may
// legitimately reuse the same path, so two unrelated subtrees can share a
// path prefix and prefix listings would mix them.
func (s *Service) listSubtree(ctx context.Context, root *Entry, filter StatusFilter) ([]*Entry, error) {
	var out []*Entry
	queue := []*Entry{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		children, err := s.entries.ListByParent(ctx, parent.ID, filter)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			out = append(out, child)
			if child.IsFolder() {
				queue = append(queue, child)
			}
		}
	}
	return out, nil
}

// activeSiblingNames returns the ACTIVE child names of a folder, excluding
// at most one entry (the entry being renamed or moved, which must not
// collide with itself).
func (s *Service) activeSiblingNames(ctx context.Context, parentID uuid.UUID, exclude *uuid.UUID) ([]string, error) {
	siblings, err := s.entries.ListByParent(ctx, parentID, FilterActive())
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(siblings))
	for _, sib := range siblings {
		if exclude != nil && sib.ID == *exclude {
			continue
		}
		names = append(names, sib.Name)
	}
	return names, nil
}

// isDescendantPath reports whether candidate lies strictly inside the
// subtree rooted at ancestorPath. Paths are the cached FullPath values, so
// the check is a string prefix test, not a tree walk.
func isDescendantPath(ancestorPath, candidate string) bool {
	return strings.HasPrefix(candidate, ancestorPath+"/")
}
