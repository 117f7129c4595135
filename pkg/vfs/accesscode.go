package vfs

import (
	"context"
	"crypto/rand"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// codeAlphabet is the restricted alphabet access codes are drawn from.
	// Visually ambiguous characters (0/O, 1/l/I) are excluded so codes can
	// be read aloud or retyped from a screenshot.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

	// codeLength is the number of characters in a code. 56^10 ≈ 3e17
	// possibilities makes guessing infeasible at any realistic table size.
	codeLength = 10

	// DefaultAccessCodeTTL is the validity window applied when the caller
	// does not supply an expiry.
	DefaultAccessCodeTTL = 24 * time.Hour

	// codeCreateRetries bounds regeneration attempts on the (vanishingly
	// unlikely) event of a code collision in the store.
	codeCreateRetries = 3
)

// AccessCodeIssuer mints, validates, and revokes sharing codes bound to one
// file. It is invoked independently by the API layer once a file exists;
// authorization of the calling user is the API layer's concern.
type AccessCodeIssuer struct {
	entries EntryStore
	codes   AccessCodeStore
}

// NewAccessCodeIssuer creates an issuer over the given stores.
func NewAccessCodeIssuer(entries EntryStore, codes AccessCodeStore) *AccessCodeIssuer {
	return &AccessCodeIssuer{entries: entries, codes: codes}
}

// Create mints a new code for the given file.
//
// expiresAt defaults to now + DefaultAccessCodeTTL when nil. Returns
// ErrNotFound if the file does not exist and ErrValidation if the entry is a
// folder: codes grant download of exactly one file.
func (i *AccessCodeIssuer) Create(ctx context.Context, fileID uuid.UUID, expiresAt *time.Time) (*AccessCode, error) {
	entry, err := i.entries.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if entry.IsFolder() {
		return nil, validation("access codes can only be issued for files", entry.Name)
	}

	now := time.Now().UTC()
	expiry := now.Add(DefaultAccessCodeTTL)
	if expiresAt != nil {
		if expiresAt.Before(now) {
			return nil, validation("expiry must be in the future", "")
		}
		expiry = expiresAt.UTC()
	}

	// Collisions in a 56^10 space are effectively impossible, but the store
	// enforces global uniqueness anyway; regenerate on conflict.
	var lastErr error
	for attempt := 0; attempt < codeCreateRetries; attempt++ {
		code := &AccessCode{
			Code:      generateCode(),
			FileID:    fileID,
			ExpiresAt: expiry,
			CreatedAt: now,
		}

		if err := i.codes.Create(ctx, code); err != nil {
			if IsConflict(err) {
				lastErr = err
				continue
			}
			return nil, err
		}

		log.Debug().
			Str("file_id", fileID.String()).
			Time("expires_at", expiry).
			Msg("access code issued")
		return code, nil
	}

	return nil, fmt.Errorf("failed to generate unique access code after %d attempts: %w", codeCreateRetries, lastErr)
}

// GetByCode returns the code row for a live code. Expired codes are
// logically absent and surface as ErrNotFound whether or not the row has
// been physically purged.
func (i *AccessCodeIssuer) GetByCode(ctx context.Context, code string) (*AccessCode, error) {
	row, err := i.codes.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if row.Expired(time.Now().UTC()) {
		return nil, notFound("access code not found", code)
	}
	return row, nil
}

// GetByFileID returns the most recently issued live code for a file, or
// ErrNotFound if the file has no unexpired code.
func (i *AccessCodeIssuer) GetByFileID(ctx context.Context, fileID uuid.UUID) (*AccessCode, error) {
	row, err := i.codes.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if row.Expired(time.Now().UTC()) {
		return nil, notFound("access code not found", fileID.String())
	}
	return row, nil
}

// DeleteByCode revokes a code immediately.
func (i *AccessCodeIssuer) DeleteByCode(ctx context.Context, code string) error {
	return i.codes.DeleteByCode(ctx, code)
}

// GetFileMetadataByCode joins a code to its file for the anonymous-download
// path. Returns ErrNotFound if the code is missing or expired, if the file
// was hard-deleted since issuance, or if the file is no longer ACTIVE
// (a trashed file is not downloadable until restored).
func (i *AccessCodeIssuer) GetFileMetadataByCode(ctx context.Context, code string) (*FileMetadata, error) {
	row, err := i.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	entry, err := i.entries.Get(ctx, row.FileID)
	if err != nil {
		return nil, err
	}
	if entry.IsFolder() || !entry.IsActive() {
		return nil, notFound("file not found", code)
	}

	return &FileMetadata{
		FileID:        entry.ID,
		FileName:      entry.Name,
		FileSize:      entry.Size,
		FileExtension: strings.TrimPrefix(path.Ext(entry.Name), "."),
		MimeType:      entry.MimeType,
		ObjectKey:     entry.ObjectKey,
	}, nil
}

// PurgeExpired physically removes expired code rows. Expiry is enforced
// logically on every read, so this is housekeeping, not correctness.
func (i *AccessCodeIssuer) PurgeExpired(ctx context.Context) (int, error) {
	return i.codes.PurgeExpired(ctx, time.Now().UTC())
}

// generateCode draws codeLength characters from codeAlphabet using
// rejection sampling, so every character is uniformly distributed.
func generateCode() string {
	// Largest multiple of len(codeAlphabet) that fits in a byte; bytes at
	// or above this value are rejected to avoid modulo bias.
	maxByte := byte(256 - (256 % len(codeAlphabet)))

	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)
	for len(out) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand only fails if the OS entropy source is broken,
			// at which point nothing else in the process is trustworthy.
			panic(fmt.Sprintf("crypto/rand failed: %v", err))
		}
		for _, b := range buf {
			if b >= maxByte {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return string(out)
}
