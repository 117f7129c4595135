// Package objectstore defines the byte-store gateway consumed by the
// virtual filesystem core.
//
// The object store is an external collaborator: a flat bucket of opaque
// objects reachable through pre-signed URLs. Clients upload and download
// directly against the store; this core only issues URLs, inspects object
// metadata, and performs server-side copy/delete during folder operations.
//
// Implementations live in subpackages (s3, memory) and are selected by
// pkg/config factories.
package objectstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scope namespaces object keys by upload origin.
type Scope string

const (
	// ScopeUserUploads holds objects uploaded by authenticated users.
	ScopeUserUploads Scope = "user-uploads"

	// ScopePublicUploads holds objects uploaded through anonymous flows.
	ScopePublicUploads Scope = "public-uploads"
)

// UploadTarget carries a pre-signed upload destination. Fields is non-empty
// for POST-policy style uploads and empty for plain pre-signed PUTs.
type UploadTarget struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ObjectInfo is the metadata returned by a head call.
type ObjectInfo struct {
	// Size is the object's content length in bytes.
	Size int64

	// Checksum is the store's content checksum (ETag for S3), with any
	// surrounding quotes stripped.
	Checksum string

	// Name is the original filename recovered from the key, when the key
	// follows the BuildKey format.
	Name string
}

// ObjectStore is the gateway contract for byte-level operations.
//
// All operations are synchronous and bounded; retry-on-5xx is the
// implementation's concern (the S3 client carries its own retry policy).
// Pre-signed URLs embed their own short expiry, which is the de facto
// cancellation boundary for client uploads: an expired URL simply fails at
// the store, and no metadata row exists yet because metadata is written only
// after a successful upload is confirmed.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type ObjectStore interface {
	// CreateUploadURL issues a pre-signed upload destination for key.
	CreateUploadURL(ctx context.Context, key string, contentType string, ttl time.Duration) (*UploadTarget, error)

	// CreateDownloadURL issues a pre-signed download URL for key. The
	// downloadName, when non-empty, is advertised to the browser via the
	// content-disposition of the response.
	CreateDownloadURL(ctx context.Context, key string, downloadName string, ttl time.Duration) (string, error)

	// HeadObject returns the object's metadata without fetching its bytes.
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)

	// DeleteObject removes a single object. Deleting an absent key is not
	// an error: deletes are idempotent so hard-delete retries are safe.
	DeleteObject(ctx context.Context, key string) error

	// DeleteObjects removes a batch of objects, splitting into
	// store-appropriate batch sizes as needed.
	DeleteObjects(ctx context.Context, keys []string) error

	// CopyObject performs a server-side copy from sourceKey to destKey.
	CopyObject(ctx context.Context, sourceKey string, destKey string) error

	// Healthcheck verifies the store is reachable.
	Healthcheck(ctx context.Context) error
}

// keyUnsafeChars matches filename characters that are stripped from object
// keys. Keys must stay URL- and S3-safe regardless of what the display name
// contains; the display name itself is preserved in entry metadata.
var keyUnsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// BuildKey constructs a new object key in the canonical namespace:
//
//	{scope}/{yyyy-mm-dd}/{uuid}__{sanitizedFilename}
//
// The date segment keeps bucket listings browsable; the UUID guarantees
// uniqueness so concurrent uploads of the same filename never collide.
func BuildKey(scope Scope, filename string) string {
	sanitized := keyUnsafeChars.ReplaceAllString(filename, "_")
	return fmt.Sprintf("%s/%s/%s__%s",
		scope,
		time.Now().UTC().Format("2006-01-02"),
		uuid.NewString(),
		sanitized,
	)
}

// FilenameFromKey recovers the sanitized original filename from a key
// produced by BuildKey, or "" if the key does not follow that format.
func FilenameFromKey(key string) string {
	if _, name, ok := strings.Cut(key, "__"); ok {
		return name
	}
	return ""
}
