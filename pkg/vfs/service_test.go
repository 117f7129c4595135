package vfs_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubbyhole/cubby/pkg/objectstore"
	objectmemory "github.com/cubbyhole/cubby/pkg/objectstore/memory"
	"github.com/cubbyhole/cubby/pkg/vfs"
	"github.com/cubbyhole/cubby/pkg/vfs/memory"
)

const testOwner = "user-alice"

// fixedPlans resolves every user to the same plan.
type fixedPlans struct {
	plan vfs.Plan
}

func (p fixedPlans) PlanFor(ctx context.Context, ownerID string) (vfs.Plan, error) {
	return p.plan, nil
}

// env bundles a service wired on in-memory stores plus the provisioned
// containers of the test user.
type env struct {
	svc     *vfs.Service
	entries *memory.EntryStore
	codes   *memory.AccessCodeStore
	objects *objectmemory.ObjectStore

	root  *vfs.Entry
	trash *vfs.Entry
}

// newTestEnv builds a service over fresh in-memory stores and provisions
// the test user. A storageLimit of 0 means unlimited.
func newTestEnv(t *testing.T, storageLimit int64) *env {
	t.Helper()

	entries := memory.NewEntryStore()
	codes := memory.NewAccessCodeStore()
	objects := objectmemory.New()
	quota := vfs.NewQuotaAccountant(entries, fixedPlans{plan: vfs.Plan{ID: "test", StorageLimit: storageLimit}})
	svc := vfs.NewService(entries, codes, objects, quota)

	root, trash, err := svc.ProvisionAccount(context.Background(), testOwner)
	require.NoError(t, err)

	return &env{svc: svc, entries: entries, codes: codes, objects: objects, root: root, trash: trash}
}

// addFile registers an object and records the file under parentID.
func (e *env) addFile(t *testing.T, parentID uuid.UUID, name string, size int64) *vfs.Entry {
	t.Helper()

	key := objectstore.BuildKey(objectstore.ScopeUserUploads, name)
	e.objects.Put(key, size)

	entry, err := e.svc.CreateFile(context.Background(), vfs.CreateFileParams{
		OwnerID:   testOwner,
		ParentID:  parentID,
		Name:      name,
		Size:      size,
		MimeType:  "application/octet-stream",
		ObjectKey: key,
	})
	require.NoError(t, err)
	return entry
}

// addFolder creates a folder under parentID.
func (e *env) addFolder(t *testing.T, parentID uuid.UUID, name string) *vfs.Entry {
	t.Helper()

	entry, err := e.svc.CreateDirectory(context.Background(), testOwner, parentID, name)
	require.NoError(t, err)
	return entry
}

// ============================================================================
// Provisioning
// ============================================================================

func TestProvisionAccount(t *testing.T) {
	t.Run("CreatesRootAndTrash", func(t *testing.T) {
		e := newTestEnv(t, 0)

		require.Equal(t, "/", e.root.FullPath)
		require.Nil(t, e.root.ParentID)
		require.Equal(t, "/Trash", e.trash.FullPath)
		require.Nil(t, e.trash.ParentID)
	})

	t.Run("Idempotent", func(t *testing.T) {
		e := newTestEnv(t, 0)

		root2, trash2, err := e.svc.ProvisionAccount(context.Background(), testOwner)
		require.NoError(t, err)
		require.Equal(t, e.root.ID, root2.ID)
		require.Equal(t, e.trash.ID, trash2.ID)
	})

	t.Run("EmptyOwnerRejected", func(t *testing.T) {
		e := newTestEnv(t, 0)

		_, _, err := e.svc.ProvisionAccount(context.Background(), "")
		require.True(t, vfs.IsCode(err, vfs.ErrValidation))
	})
}

// ============================================================================
// Create
// ============================================================================

func TestCreateFile(t *testing.T) {
	t.Run("HappyPath", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "report.pdf", 1024)
		require.Equal(t, "report.pdf", file.Name)
		require.Equal(t, "/report.pdf", file.FullPath)
		require.Equal(t, vfs.StatusActive, file.Status)
		require.Equal(t, int64(1024), file.Size)
	})

	t.Run("CollisionGetsCounterSuffix", func(t *testing.T) {
		e := newTestEnv(t, 0)

		e.addFile(t, e.root.ID, "report.pdf", 10)
		second := e.addFile(t, e.root.ID, "report.pdf", 10)
		require.Equal(t, "report (1).pdf", second.Name)
		require.Equal(t, "/report (1).pdf", second.FullPath)
	})

	t.Run("CollisionWithTrashedNameAllowed", func(t *testing.T) {
		e := newTestEnv(t, 0)

		first := e.addFile(t, e.root.ID, "report.pdf", 10)
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, first.ID))

		// The trashed file no longer occupies the name.
		second := e.addFile(t, e.root.ID, "report.pdf", 10)
		require.Equal(t, "report.pdf", second.Name)
	})

	t.Run("EmptyNameRejected", func(t *testing.T) {
		e := newTestEnv(t, 0)

		_, err := e.svc.CreateFile(context.Background(), vfs.CreateFileParams{
			OwnerID: testOwner, ParentID: e.root.ID, Name: "   ", Size: 1, ObjectKey: "k",
		})
		require.True(t, vfs.IsCode(err, vfs.ErrValidation))
	})

	t.Run("ParentMustBeFolder", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.txt", 1)
		_, err := e.svc.CreateFile(context.Background(), vfs.CreateFileParams{
			OwnerID: testOwner, ParentID: file.ID, Name: "b.txt", Size: 1, ObjectKey: "k",
		})
		require.True(t, vfs.IsCode(err, vfs.ErrValidation))
	})

	t.Run("ParentMissing", func(t *testing.T) {
		e := newTestEnv(t, 0)

		_, err := e.svc.CreateFile(context.Background(), vfs.CreateFileParams{
			OwnerID: testOwner, ParentID: uuid.New(), Name: "a.txt", Size: 1, ObjectKey: "k",
		})
		require.True(t, vfs.IsNotFound(err))
	})

	t.Run("QuotaExceeded", func(t *testing.T) {
		e := newTestEnv(t, 100)

		e.addFile(t, e.root.ID, "small.bin", 80)

		key := objectstore.BuildKey(objectstore.ScopeUserUploads, "big.bin")
		e.objects.Put(key, 50)
		_, err := e.svc.CreateFile(context.Background(), vfs.CreateFileParams{
			OwnerID: testOwner, ParentID: e.root.ID, Name: "big.bin", Size: 50, ObjectKey: key,
		})
		require.True(t, vfs.IsQuotaExceeded(err))
	})
}

func TestCreateDirectory(t *testing.T) {
	t.Run("HappyPath", func(t *testing.T) {
		e := newTestEnv(t, 0)

		dir := e.addFolder(t, e.root.ID, "documents")
		require.Equal(t, "/documents", dir.FullPath)
		require.True(t, dir.IsFolder())
	})

	t.Run("NestedPath", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		reports := e.addFolder(t, docs.ID, "reports")
		require.Equal(t, "/documents/reports", reports.FullPath)
	})

	t.Run("SanitizesName", func(t *testing.T) {
		e := newTestEnv(t, 0)

		dir := e.addFolder(t, e.root.ID, "a/b:c")
		require.Equal(t, "a_b_c", dir.Name)
	})

	t.Run("QuotaNotConsulted", func(t *testing.T) {
		e := newTestEnv(t, 1)

		// Fill the quota completely, folders must still be creatable.
		e.addFile(t, e.root.ID, "a.bin", 1)
		_, err := e.svc.CreateDirectory(context.Background(), testOwner, e.root.ID, "dir")
		require.NoError(t, err)
	})
}

// ============================================================================
// Rename / Move
// ============================================================================

func TestRename(t *testing.T) {
	t.Run("File", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "old.txt", 1)
		renamed, err := e.svc.Rename(context.Background(), testOwner, file.ID, "new.txt")
		require.NoError(t, err)
		require.Equal(t, "new.txt", renamed.Name)
		require.Equal(t, "/new.txt", renamed.FullPath)
	})

	t.Run("FolderRewritesSubtreePaths", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		sub := e.addFolder(t, docs.ID, "reports")
		file := e.addFile(t, sub.ID, "q3.pdf", 1)

		_, err := e.svc.Rename(context.Background(), testOwner, docs.ID, "archive")
		require.NoError(t, err)

		got, err := e.svc.GetEntry(context.Background(), testOwner, file.ID)
		require.NoError(t, err)
		require.Equal(t, "/archive/reports/q3.pdf", got.FullPath)

		gotSub, err := e.svc.GetEntry(context.Background(), testOwner, sub.ID)
		require.NoError(t, err)
		require.Equal(t, "/archive/reports", gotSub.FullPath)
	})

	t.Run("CollisionResolved", func(t *testing.T) {
		e := newTestEnv(t, 0)

		e.addFile(t, e.root.ID, "taken.txt", 1)
		file := e.addFile(t, e.root.ID, "other.txt", 1)

		renamed, err := e.svc.Rename(context.Background(), testOwner, file.ID, "taken.txt")
		require.NoError(t, err)
		require.Equal(t, "taken (1).txt", renamed.Name)
	})

	t.Run("SameNameNoOp", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "same.txt", 1)
		renamed, err := e.svc.Rename(context.Background(), testOwner, file.ID, "same.txt")
		require.NoError(t, err)
		require.Equal(t, file.ID, renamed.ID)
		require.Equal(t, "same.txt", renamed.Name)
	})

	t.Run("RootForbidden", func(t *testing.T) {
		e := newTestEnv(t, 0)

		_, err := e.svc.Rename(context.Background(), testOwner, e.root.ID, "home")
		require.True(t, vfs.IsCode(err, vfs.ErrValidation))
	})

	t.Run("TrashedEntryRejected", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.txt", 1)
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, file.ID))

		_, err := e.svc.Rename(context.Background(), testOwner, file.ID, "b.txt")
		require.True(t, vfs.IsCode(err, vfs.ErrInvalidState))
	})
}

func TestMove(t *testing.T) {
	t.Run("FileToFolder", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		file := e.addFile(t, e.root.ID, "a.txt", 1)

		moved, err := e.svc.Move(context.Background(), testOwner, file.ID, docs.ID)
		require.NoError(t, err)
		require.Equal(t, "/documents/a.txt", moved.FullPath)
		require.Equal(t, docs.ID, *moved.ParentID)
	})

	t.Run("FolderSubtreeRewritten", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		archive := e.addFolder(t, e.root.ID, "archive")
		file := e.addFile(t, docs.ID, "a.txt", 1)

		_, err := e.svc.Move(context.Background(), testOwner, docs.ID, archive.ID)
		require.NoError(t, err)

		got, err := e.svc.GetEntry(context.Background(), testOwner, file.ID)
		require.NoError(t, err)
		require.Equal(t, "/archive/documents/a.txt", got.FullPath)
	})

	t.Run("SilentRenameOnCollision", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		e.addFile(t, docs.ID, "a.txt", 1)
		file := e.addFile(t, e.root.ID, "a.txt", 1)

		moved, err := e.svc.Move(context.Background(), testOwner, file.ID, docs.ID)
		require.NoError(t, err)
		require.Equal(t, "a (1).txt", moved.Name)
	})

	t.Run("IntoOwnSubtreeForbidden", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		sub := e.addFolder(t, docs.ID, "sub")

		_, err := e.svc.Move(context.Background(), testOwner, docs.ID, sub.ID)
		require.True(t, vfs.IsCode(err, vfs.ErrValidation))
	})

	t.Run("IntoItselfForbidden", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		_, err := e.svc.Move(context.Background(), testOwner, docs.ID, docs.ID)
		require.True(t, vfs.IsCode(err, vfs.ErrValidation))
	})

	t.Run("TrashedTargetRejected", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		file := e.addFile(t, e.root.ID, "a.txt", 1)
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, docs.ID))

		_, err := e.svc.Move(context.Background(), testOwner, file.ID, docs.ID)
		require.True(t, vfs.IsCode(err, vfs.ErrValidation))
	})

	t.Run("SiblingPrefixNotConfused", func(t *testing.T) {
		e := newTestEnv(t, 0)

		// "/docs" and "/docs2" share a string prefix but not a subtree.
		docs := e.addFolder(t, e.root.ID, "docs")
		docs2 := e.addFolder(t, e.root.ID, "docs2")

		_, err := e.svc.Move(context.Background(), testOwner, docs.ID, docs2.ID)
		require.NoError(t, err)

		got, err := e.svc.GetEntry(context.Background(), testOwner, docs.ID)
		require.NoError(t, err)
		require.Equal(t, "/docs2/docs", got.FullPath)
	})
}

// ============================================================================
// Copy
// ============================================================================

func TestCopy(t *testing.T) {
	t.Run("FileGetsFreshObject", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		file := e.addFile(t, e.root.ID, "a.txt", 5)

		copied, err := e.svc.Copy(context.Background(), testOwner, file.ID, docs.ID)
		require.NoError(t, err)
		require.Equal(t, "/documents/a.txt", copied.FullPath)
		require.NotEqual(t, file.ID, copied.ID)
		require.NotEqual(t, file.ObjectKey, copied.ObjectKey)
		require.True(t, e.objects.Exists(copied.ObjectKey))
	})

	t.Run("CopyIntoSameFolderRenames", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.txt", 5)
		copied, err := e.svc.Copy(context.Background(), testOwner, file.ID, e.root.ID)
		require.NoError(t, err)
		require.Equal(t, "a (1).txt", copied.Name)
	})

	t.Run("FolderDeepCopy", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		sub := e.addFolder(t, docs.ID, "sub")
		e.addFile(t, docs.ID, "a.txt", 1)
		e.addFile(t, sub.ID, "b.txt", 2)
		dest := e.addFolder(t, e.root.ID, "dest")

		copied, err := e.svc.Copy(context.Background(), testOwner, docs.ID, dest.ID)
		require.NoError(t, err)
		require.Equal(t, "/dest/documents", copied.FullPath)

		// The whole structure exists under the new root.
		children, err := e.svc.ListContents(context.Background(), testOwner, copied.ID, vfs.FilterActive())
		require.NoError(t, err)
		require.Len(t, children, 2)

		usage, err := e.svc.GetUsage(context.Background(), testOwner)
		require.NoError(t, err)
		require.Equal(t, int64(6), usage.Used) // 1+2 originals, 1+2 copies
	})

	t.Run("QuotaCoversSubtree", func(t *testing.T) {
		e := newTestEnv(t, 10)

		docs := e.addFolder(t, e.root.ID, "documents")
		e.addFile(t, docs.ID, "a.bin", 6)

		// Copying 6 more bytes would exceed the 10-byte plan.
		_, err := e.svc.Copy(context.Background(), testOwner, docs.ID, e.root.ID)
		require.True(t, vfs.IsQuotaExceeded(err))
	})

	t.Run("IntoOwnSubtreeForbidden", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		sub := e.addFolder(t, docs.ID, "sub")

		_, err := e.svc.Copy(context.Background(), testOwner, docs.ID, sub.ID)
		require.True(t, vfs.IsCode(err, vfs.ErrValidation))
	})

	t.Run("TrashedSourceRejected", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.txt", 1)
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, file.ID))

		_, err := e.svc.Copy(context.Background(), testOwner, file.ID, e.root.ID)
		require.True(t, vfs.IsCode(err, vfs.ErrInvalidState))
	})

	t.Run("ReusedPathCopiesOnlyOwnChildren", func(t *testing.T) {
		e := newTestEnv(t, 25)

		// A trashed folder keeps its stale path; a new folder reuses it.
		docs := e.addFolder(t, e.root.ID, "documents")
		e.addFile(t, docs.ID, "old.bin", 10)
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, docs.ID))

		docs2 := e.addFolder(t, e.root.ID, "documents")
		require.Equal(t, docs.FullPath, docs2.FullPath)
		e.addFile(t, docs2.ID, "live.bin", 5)

		// Usage is 15; the copy adds 5. Counting the trashed folder's child
		// as part of the copied subtree would push admission to 30 and fail.
		copied, err := e.svc.Copy(context.Background(), testOwner, docs2.ID, e.root.ID)
		require.NoError(t, err)

		children, err := e.svc.ListContents(context.Background(), testOwner, copied.ID, vfs.FilterActive())
		require.NoError(t, err)
		require.Len(t, children, 1)
		require.Equal(t, "live.bin", children[0].Name)

		usage, err := e.svc.GetUsage(context.Background(), testOwner)
		require.NoError(t, err)
		require.Equal(t, int64(20), usage.Used)
	})
}

// ============================================================================
// Trash / Restore
// ============================================================================

func TestTrashRestore(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		file := e.addFile(t, docs.ID, "a.txt", 1)

		require.NoError(t, e.svc.Trash(context.Background(), testOwner, file.ID))

		trashed, err := e.svc.GetEntry(context.Background(), testOwner, file.ID)
		require.NoError(t, err)
		require.Equal(t, vfs.StatusTrashed, trashed.Status)
		require.NotNil(t, trashed.TrashedAt)
		require.Equal(t, docs.ID, *trashed.RestoreParentID)

		restored, err := e.svc.Restore(context.Background(), testOwner, file.ID)
		require.NoError(t, err)
		require.Equal(t, vfs.StatusActive, restored.Status)
		require.Equal(t, "/documents/a.txt", restored.FullPath)
		require.Nil(t, restored.TrashedAt)
		require.Nil(t, restored.RestoreParentID)
	})

	t.Run("TrashedEntryLeavesListing", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.txt", 1)
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, file.ID))

		children, err := e.svc.ListContents(context.Background(), testOwner, e.root.ID, vfs.FilterActive())
		require.NoError(t, err)
		for _, child := range children {
			assert.NotEqual(t, file.ID, child.ID)
		}

		trash, err := e.svc.ListTrashEntries(context.Background(), testOwner)
		require.NoError(t, err)
		require.Len(t, trash, 1)
		require.Equal(t, file.ID, trash[0].ID)
	})

	t.Run("TrashFolderKeepsChildrenActive", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		e.addFile(t, docs.ID, "a.txt", 1)

		require.NoError(t, e.svc.Trash(context.Background(), testOwner, docs.ID))

		// Only the folder row flips; the trash view shows one entry.
		trash, err := e.svc.ListTrashEntries(context.Background(), testOwner)
		require.NoError(t, err)
		require.Len(t, trash, 1)
		require.Equal(t, docs.ID, trash[0].ID)
	})

	t.Run("RestoreFallsBackToRoot", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		file := e.addFile(t, docs.ID, "a.txt", 1)

		require.NoError(t, e.svc.Trash(context.Background(), testOwner, file.ID))
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, docs.ID))

		restored, err := e.svc.Restore(context.Background(), testOwner, file.ID)
		require.NoError(t, err)
		require.Equal(t, "/a.txt", restored.FullPath)
		require.Equal(t, e.root.ID, *restored.ParentID)
	})

	t.Run("RestoreResolvesNameCollision", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.txt", 1)
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, file.ID))

		// The name is taken while the original sits in the trash.
		e.addFile(t, e.root.ID, "a.txt", 1)

		restored, err := e.svc.Restore(context.Background(), testOwner, file.ID)
		require.NoError(t, err)
		require.Equal(t, "a (1).txt", restored.Name)
	})

	t.Run("RestoreActiveEntryRejected", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.txt", 1)
		_, err := e.svc.Restore(context.Background(), testOwner, file.ID)
		require.True(t, vfs.IsCode(err, vfs.ErrInvalidState))
	})

	t.Run("TrashRootForbidden", func(t *testing.T) {
		e := newTestEnv(t, 0)

		err := e.svc.Trash(context.Background(), testOwner, e.root.ID)
		require.True(t, vfs.IsCode(err, vfs.ErrValidation))
	})

	t.Run("TrashedBytesStillCounted", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.bin", 64)
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, file.ID))

		usage, err := e.svc.GetUsage(context.Background(), testOwner)
		require.NoError(t, err)
		require.Equal(t, int64(64), usage.Used)
	})
}

// ============================================================================
// Hard delete / Empty trash
// ============================================================================

func TestHardDelete(t *testing.T) {
	t.Run("FileRemovesObjectAndRow", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.txt", 1)
		require.True(t, e.objects.Exists(file.ObjectKey))

		require.NoError(t, e.svc.HardDelete(context.Background(), testOwner, file.ID))

		require.False(t, e.objects.Exists(file.ObjectKey))
		_, err := e.svc.GetEntry(context.Background(), testOwner, file.ID)
		require.True(t, vfs.IsNotFound(err))
	})

	t.Run("ObjectDeleteFailureKeepsRow", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.txt", 1)
		e.objects.FailNextDelete = true

		err := e.svc.HardDelete(context.Background(), testOwner, file.ID)
		require.True(t, vfs.IsCode(err, vfs.ErrObjectStore))

		// The row survives so the delete can be retried.
		_, err = e.svc.GetEntry(context.Background(), testOwner, file.ID)
		require.NoError(t, err)

		require.NoError(t, e.svc.HardDelete(context.Background(), testOwner, file.ID))
	})

	t.Run("FolderDeletesSubtree", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		sub := e.addFolder(t, docs.ID, "sub")
		a := e.addFile(t, docs.ID, "a.txt", 1)
		b := e.addFile(t, sub.ID, "b.txt", 1)

		require.NoError(t, e.svc.HardDelete(context.Background(), testOwner, docs.ID))

		for _, id := range []uuid.UUID{docs.ID, sub.ID, a.ID, b.ID} {
			_, err := e.svc.GetEntry(context.Background(), testOwner, id)
			require.True(t, vfs.IsNotFound(err))
		}
		require.False(t, e.objects.Exists(a.ObjectKey))
		require.False(t, e.objects.Exists(b.ObjectKey))
	})

	t.Run("DeletesAccessCodes", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.txt", 1)
		issuer := vfs.NewAccessCodeIssuer(e.entries, e.codes)
		code, err := issuer.Create(context.Background(), file.ID, nil)
		require.NoError(t, err)

		require.NoError(t, e.svc.HardDelete(context.Background(), testOwner, file.ID))

		_, err = issuer.GetByCode(context.Background(), code.Code)
		require.True(t, vfs.IsNotFound(err))
	})

	t.Run("FreesQuota", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.bin", 128)
		require.NoError(t, e.svc.HardDelete(context.Background(), testOwner, file.ID))

		usage, err := e.svc.GetUsage(context.Background(), testOwner)
		require.NoError(t, err)
		require.Equal(t, int64(0), usage.Used)
	})

	t.Run("ReusedPathKeepsTrashedSubtree", func(t *testing.T) {
		e := newTestEnv(t, 0)

		// Trash a folder, then create a new folder at the same path. Hard
		// deleting the new folder must not touch the trashed one's child.
		docs := e.addFolder(t, e.root.ID, "documents")
		old := e.addFile(t, docs.ID, "old.txt", 1)
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, docs.ID))

		docs2 := e.addFolder(t, e.root.ID, "documents")
		require.Equal(t, docs.FullPath, docs2.FullPath)
		live := e.addFile(t, docs2.ID, "live.txt", 1)

		require.NoError(t, e.svc.HardDelete(context.Background(), testOwner, docs2.ID))

		_, err := e.svc.GetEntry(context.Background(), testOwner, live.ID)
		require.True(t, vfs.IsNotFound(err))
		require.False(t, e.objects.Exists(live.ObjectKey))

		// The trashed folder's child survived and restore still works.
		_, err = e.svc.GetEntry(context.Background(), testOwner, old.ID)
		require.NoError(t, err)
		require.True(t, e.objects.Exists(old.ObjectKey))

		restored, err := e.svc.Restore(context.Background(), testOwner, docs.ID)
		require.NoError(t, err)
		children, err := e.svc.ListContents(context.Background(), testOwner, restored.ID, vfs.FilterActive())
		require.NoError(t, err)
		require.Len(t, children, 1)
		require.Equal(t, "old.txt", children[0].Name)
	})
}

func TestEmptyTrash(t *testing.T) {
	t.Run("RemovesTrashedSubtrees", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		inner := e.addFile(t, docs.ID, "a.txt", 1)
		loose := e.addFile(t, e.root.ID, "b.txt", 1)
		keep := e.addFile(t, e.root.ID, "keep.txt", 1)

		require.NoError(t, e.svc.Trash(context.Background(), testOwner, docs.ID))
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, loose.ID))

		removed, err := e.svc.EmptyTrash(context.Background(), testOwner)
		require.NoError(t, err)
		require.Equal(t, 3, removed) // docs + inner + loose

		require.False(t, e.objects.Exists(inner.ObjectKey))
		require.False(t, e.objects.Exists(loose.ObjectKey))
		require.True(t, e.objects.Exists(keep.ObjectKey))

		trash, err := e.svc.ListTrashEntries(context.Background(), testOwner)
		require.NoError(t, err)
		require.Empty(t, trash)
	})

	t.Run("EmptyTrashOnEmptyTrash", func(t *testing.T) {
		e := newTestEnv(t, 0)

		removed, err := e.svc.EmptyTrash(context.Background(), testOwner)
		require.NoError(t, err)
		require.Zero(t, removed)
	})

	t.Run("BatchDeleteFailureKeepsRows", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.txt", 1)
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, file.ID))

		e.objects.FailNextDelete = true
		_, err := e.svc.EmptyTrash(context.Background(), testOwner)
		require.True(t, vfs.IsCode(err, vfs.ErrObjectStore))

		trash, err := e.svc.ListTrashEntries(context.Background(), testOwner)
		require.NoError(t, err)
		require.Len(t, trash, 1)
	})

	t.Run("ReusedPathKeepsNewSubtree", func(t *testing.T) {
		e := newTestEnv(t, 0)

		// Trash a folder, then create a new folder at the same path with its
		// own file. Emptying the trash must not reach the new subtree.
		docs := e.addFolder(t, e.root.ID, "documents")
		old := e.addFile(t, docs.ID, "old.txt", 1)
		require.NoError(t, e.svc.Trash(context.Background(), testOwner, docs.ID))

		docs2 := e.addFolder(t, e.root.ID, "documents")
		require.Equal(t, docs.FullPath, docs2.FullPath)
		live := e.addFile(t, docs2.ID, "live.txt", 1)

		removed, err := e.svc.EmptyTrash(context.Background(), testOwner)
		require.NoError(t, err)
		require.Equal(t, 2, removed) // docs + old.txt

		require.False(t, e.objects.Exists(old.ObjectKey))

		got, err := e.svc.GetEntry(context.Background(), testOwner, live.ID)
		require.NoError(t, err)
		require.Equal(t, vfs.StatusActive, got.Status)
		require.True(t, e.objects.Exists(live.ObjectKey))
	})
}

// ============================================================================
// Reads, uploads, ownership
// ============================================================================

func TestListContents(t *testing.T) {
	e := newTestEnv(t, 0)

	docs := e.addFolder(t, e.root.ID, "documents")
	e.addFile(t, docs.ID, "b.txt", 1)
	e.addFile(t, docs.ID, "a.txt", 1)

	children, err := e.svc.ListContents(context.Background(), testOwner, docs.ID, vfs.FilterActive())
	require.NoError(t, err)
	require.Len(t, children, 2)
	// Ordered by FullPath ascending.
	require.Equal(t, "a.txt", children[0].Name)
	require.Equal(t, "b.txt", children[1].Name)
}

func TestOwnerIsolation(t *testing.T) {
	e := newTestEnv(t, 0)

	file := e.addFile(t, e.root.ID, "secret.txt", 1)

	// Another user probing the id sees NotFound, never PermissionDenied.
	_, err := e.svc.GetEntry(context.Background(), "user-mallory", file.ID)
	require.True(t, vfs.IsNotFound(err))

	_, err = e.svc.Rename(context.Background(), "user-mallory", file.ID, "mine.txt")
	require.True(t, vfs.IsNotFound(err))

	err = e.svc.Trash(context.Background(), "user-mallory", file.ID)
	require.True(t, vfs.IsNotFound(err))
}

func TestUploadFlow(t *testing.T) {
	e := newTestEnv(t, 0)

	ticket, err := e.svc.PrepareUpload(context.Background(), "photo.jpg", "image/jpeg", 15*time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, ticket.Key)
	require.NotEmpty(t, ticket.Target.URL)

	// No metadata row exists until the upload is confirmed and recorded.
	entries, err := e.svc.ListByOwner(context.Background(), testOwner, vfs.FilterActive(), vfs.Page{})
	require.NoError(t, err)
	require.Len(t, entries, 2) // root + trash only

	// Simulate the client completing the upload.
	e.objects.Put(ticket.Key, 2048)

	info, err := e.svc.ConfirmUpload(context.Background(), ticket.Key)
	require.NoError(t, err)
	require.Equal(t, int64(2048), info.Size)

	file, err := e.svc.CreateFile(context.Background(), vfs.CreateFileParams{
		OwnerID:     testOwner,
		ParentID:    e.root.ID,
		Name:        "photo.jpg",
		Size:        info.Size,
		MimeType:    "image/jpeg",
		ContentHash: info.Checksum,
		ObjectKey:   ticket.Key,
	})
	require.NoError(t, err)
	require.Equal(t, int64(2048), file.Size)
}

func TestCreateDownloadURL(t *testing.T) {
	t.Run("File", func(t *testing.T) {
		e := newTestEnv(t, 0)

		file := e.addFile(t, e.root.ID, "a.txt", 1)
		url, err := e.svc.CreateDownloadURL(context.Background(), testOwner, file.ID, time.Minute)
		require.NoError(t, err)
		require.NotEmpty(t, url)
	})

	t.Run("FolderRejected", func(t *testing.T) {
		e := newTestEnv(t, 0)

		docs := e.addFolder(t, e.root.ID, "documents")
		_, err := e.svc.CreateDownloadURL(context.Background(), testOwner, docs.ID, time.Minute)
		require.True(t, vfs.IsCode(err, vfs.ErrValidation))
	})
}
