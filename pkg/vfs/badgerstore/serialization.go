package badgerstore

import (
	"encoding/json"
	"fmt"

	"github.com/cubbyhole/cubby/pkg/vfs"
)

// Serialization Strategy
// ======================
//
// BadgerDB stores raw bytes. Entry and AccessCode rows are JSON-encoded:
// human-readable, debuggable with badger's CLI tooling, and tolerant of
// schema evolution. Index values are raw UUID/code strings since they are
// single fields with a stable format.

// encodeEntry serializes an entry row to JSON bytes.
func encodeEntry(entry *vfs.Entry) ([]byte, error) {
	bytes, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry: %w", err)
	}
	return bytes, nil
}

// decodeEntry deserializes an entry row from JSON bytes.
func decodeEntry(bytes []byte) (*vfs.Entry, error) {
	var entry vfs.Entry
	if err := json.Unmarshal(bytes, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}
	return &entry, nil
}

// encodeAccessCode serializes an access code row to JSON bytes.
func encodeAccessCode(code *vfs.AccessCode) ([]byte, error) {
	bytes, err := json.Marshal(code)
	if err != nil {
		return nil, fmt.Errorf("failed to encode access code: %w", err)
	}
	return bytes, nil
}

// decodeAccessCode deserializes an access code row from JSON bytes.
func decodeAccessCode(bytes []byte) (*vfs.AccessCode, error) {
	var code vfs.AccessCode
	if err := json.Unmarshal(bytes, &code); err != nil {
		return nil, fmt.Errorf("failed to decode access code: %w", err)
	}
	return &code, nil
}
