package badgerstore

import (
	"github.com/google/uuid"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so prefixed keys organize the different
// data types into logical namespaces. This design:
//   - Prevents key collisions between data types
//   - Enables efficient range scans (children of a folder, a user's subtree)
//   - Makes the database structure self-documenting
//
// Key Namespace Prefixes:
//
// Data Type           Prefix  Key Format                          Value
// ==========================================================================
// Entry rows          "e:"    e:<uuid>                            Entry (JSON)
// Children set        "c:"    c:<parentUUID>:<childUUID>          childUUID
// Active name slots   "n:"    n:<parentUUID>:<name>               entryUUID
// Owner path index    "o:"    o:<ownerID>:<fullPath>\x00<uuid>    entryUUID
// Access codes        "a:"    a:<code>                            AccessCode (JSON)
// Code file index     "af:"   af:<fileUUID>:<code>                code string
//
// Index Rationale:
//
// 1. Entry rows (e:) are the single source of truth; every index value is
//    just an entry id to chase.
//
// 2. The children set (c:) contains every child regardless of status. It
//    drives ListByParent and the iterative subtree walks performed by
//    rename/move/restore path rewrites.
//
// 3. Active name slots (n:) exist only for ACTIVE entries and are the
//    storage-level sibling-name uniqueness constraint: an insert or
//    rename that finds the slot occupied by a different id fails with
//    ErrConflict inside the same transaction that would have written the
//    row, so two racing writers can never both commit the same name.
//
// 4. The owner path index (o:) stores keys in FullPath order, which is
//    exactly the ordering the repository contract promises. A NUL byte
//    separates path from id so an entry's key can never sort between a
//    sibling's key and that sibling's descendants. Trashed entries remain
//    indexed under their stale path; readers filter by status after the
//    row load.

const (
	prefixEntry    = "e:"
	prefixChildren = "c:"
	prefixNameSlot = "n:"
	prefixOwner    = "o:"
	prefixCode     = "a:"
	prefixCodeFile = "af:"
)

// ownerPathSep separates the path from the entry id in owner index keys.
const ownerPathSep = "\x00"

// keyEntry generates the key for an entry row: "e:<uuid>".
func keyEntry(id uuid.UUID) []byte {
	return []byte(prefixEntry + id.String())
}

// keyChild generates a membership key in a folder's children set:
// "c:<parentUUID>:<childUUID>".
func keyChild(parentID, childID uuid.UUID) []byte {
	return []byte(prefixChildren + parentID.String() + ":" + childID.String())
}

// keyChildPrefix generates the range-scan prefix for a folder's children.
func keyChildPrefix(parentID uuid.UUID) []byte {
	return []byte(prefixChildren + parentID.String() + ":")
}

// keyNameSlot generates the ACTIVE name-slot key: "n:<parentUUID>:<name>".
func keyNameSlot(parentID uuid.UUID, name string) []byte {
	return []byte(prefixNameSlot + parentID.String() + ":" + name)
}

// keyOwner generates the owner path index key:
// "o:<ownerID>:<fullPath>\x00<uuid>".
func keyOwner(ownerID, fullPath string, id uuid.UUID) []byte {
	return []byte(prefixOwner + ownerID + ":" + fullPath + ownerPathSep + id.String())
}

// keyOwnerPrefix generates the range-scan prefix for all of an owner's
// entries, ordered by FullPath.
func keyOwnerPrefix(ownerID string) []byte {
	return []byte(prefixOwner + ownerID + ":")
}

// keyOwnerPathPrefix generates the range-scan prefix for an owner's entries
// under a path prefix.
func keyOwnerPathPrefix(ownerID, pathPrefix string) []byte {
	return []byte(prefixOwner + ownerID + ":" + pathPrefix)
}

// keyOwnerExactPath generates the range-scan prefix for the entries at an
// exact path (the NUL separator excludes longer paths that merely extend
// this one).
func keyOwnerExactPath(ownerID, fullPath string) []byte {
	return []byte(prefixOwner + ownerID + ":" + fullPath + ownerPathSep)
}

// keyCode generates the key for an access code row: "a:<code>".
func keyCode(code string) []byte {
	return []byte(prefixCode + code)
}

// keyCodeFile generates the file-to-code index key: "af:<fileUUID>:<code>".
func keyCodeFile(fileID uuid.UUID, code string) []byte {
	return []byte(prefixCodeFile + fileID.String() + ":" + code)
}

// keyCodeFilePrefix generates the range-scan prefix for a file's codes.
func keyCodeFilePrefix(fileID uuid.UUID) []byte {
	return []byte(prefixCodeFile + fileID.String() + ":")
}
