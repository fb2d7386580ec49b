package interfaces

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ContentAddress is the opaque identifier the content store assigns to a
// stored object. Callers must not parse it beyond equality checks.
type ContentAddress string

// String returns the raw address.
func (a ContentAddress) String() string {
	return string(a)
}

// Short returns a truncated form suitable for log attributes.
func (a ContentAddress) Short() string {
	if len(a) <= 12 {
		return string(a)
	}
	return string(a[:12])
}

// ContentHash is a 32-byte SHA-256 hash used by the deduplication index.
type ContentHash [32]byte

// ComputeHash calculates the content hash of data.
func ComputeHash(data []byte) ContentHash {
	return ContentHash(sha256.Sum256(data))
}

// NewContentHashFromHex parses a 64-character hex string into a content hash.
func NewContentHashFromHex(source string) (ContentHash, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentHash{}, errors.New("invalid content hash length: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return ContentHash{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var hash [32]byte
	copy(hash[:], raw)
	return ContentHash(hash), nil
}

// String returns hex representation.
func (h ContentHash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash was never computed.
func (h ContentHash) IsZero() bool {
	return h == ContentHash{}
}

// ObjectStat describes a stored object as reported by the content store.
type ObjectStat struct {
	Size int64
}

var (
	// ErrContentNotFound is returned when requested content cannot be found in the content store.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when the content store is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("content store unavailable")

	// ErrKeyNotFound is returned by the reference index when no value exists for a key.
	ErrKeyNotFound = errors.New("index key not found")

	// ErrInvalidStoreURI is returned when a content store URI is malformed or unsupported.
	ErrInvalidStoreURI = errors.New("invalid content store URI")
)

// ContentStore provides content-addressed object storage. The control plane
// never touches bytes except through these five primitives.
type ContentStore interface {
	// Add stores data and returns its content address.
	Add(ctx context.Context, data []byte) (ContentAddress, error)

	// Pin requests the store retain a copy of the object in the given region.
	Pin(ctx context.Context, address ContentAddress, region string) error

	// Unpin releases all pins held by this control plane for the object.
	Unpin(ctx context.Context, address ContentAddress) error

	// Stat reports object size, or ErrContentNotFound if the object is gone.
	Stat(ctx context.Context, address ContentAddress) (ObjectStat, error)

	// Cat retrieves the full object bytes.
	Cat(ctx context.Context, address ContentAddress) ([]byte, error)

	// Available checks if the store is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string
}

// ReferenceIndex is the external key-value service used for deduplication
// registration (dedup:<hash>) and reference counting (refs:<address>).
type ReferenceIndex interface {
	// Put creates or replaces a value.
	Put(ctx context.Context, key string, value []byte) error

	// Get retrieves a value, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
