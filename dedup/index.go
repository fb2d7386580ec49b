package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/storage-control-plane/interfaces"
)

// DefaultMinSize is the minimum object size in bytes for deduplication.
// Smaller objects are never hashed, avoiding index bloat for content where
// the savings cannot justify an index entry.
const DefaultMinSize = 1024

// keyPrefix namespaces dedup registrations in the reference index.
const keyPrefix = "dedup:"

// Result reports the outcome of a deduplication check.
type Result struct {
	IsDuplicate      bool
	ContentHash      interfaces.ContentHash // zero when below the size threshold
	CanonicalAddress interfaces.ContentAddress
	SpaceSaved       int64
}

// entry is the stored index value for one content hash.
type entry struct {
	Address interfaces.ContentAddress `json:"address"`
	Size    int64                     `json:"size"`
}

// Index maps content hashes to canonical content addresses. It is consulted
// before any new object is admitted and self-heals against canonical copies
// that were silently evicted from the store.
type Index struct {
	store   interfaces.ContentStore
	index   interfaces.ReferenceIndex
	minSize int64
	log     *slog.Logger
}

// NewIndex creates a deduplication index over the given store and reference
// index. A minSize of zero selects DefaultMinSize.
func NewIndex(store interfaces.ContentStore, index interfaces.ReferenceIndex, minSize int64, log *slog.Logger) *Index {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return &Index{
		store:   store,
		index:   index,
		minSize: minSize,
		log:     log,
	}
}

// Deduplicate checks whether data matches a previously registered object.
//
// Objects below the size threshold report IsDuplicate=false with no hash
// computed. For a registered hash, the canonical address is re-verified live
// against the store; if verification fails the entry is not trusted and the
// content proceeds as non-duplicate. Index failures are likewise downgraded
// to the non-duplicate path, never surfaced as store errors.
func (i *Index) Deduplicate(ctx context.Context, data []byte) (Result, error) {
	size := int64(len(data))
	if size < i.minSize {
		return Result{}, nil
	}

	hash := interfaces.ComputeHash(data)
	result := Result{ContentHash: hash}

	raw, err := i.index.Get(ctx, keyPrefix+hash.String())
	if err != nil {
		if !errors.Is(err, interfaces.ErrKeyNotFound) {
			i.log.Warn("Dedup index lookup failed, treating as non-duplicate",
				slog.String("content_hash", hash.String()),
				"err", err)
		}
		return result, nil
	}

	var canonical entry
	if err := json.Unmarshal(raw, &canonical); err != nil {
		i.log.Warn("Corrupt dedup index entry, treating as non-duplicate",
			slog.String("content_hash", hash.String()),
			"err", err)
		return result, nil
	}

	// The index may outlive the object it points at. Verify the canonical
	// copy still exists before reusing its address.
	if _, err := i.store.Stat(ctx, canonical.Address); err != nil {
		i.log.Warn("Canonical copy no longer verifiable, treating as non-duplicate",
			slog.String("content_hash", hash.String()),
			slog.String("canonical_address", canonical.Address.Short()),
			"err", err)
		if err := i.index.Delete(ctx, keyPrefix+hash.String()); err != nil {
			i.log.Debug("Failed to drop stale dedup entry", "err", err)
		}
		return result, nil
	}

	result.IsDuplicate = true
	result.CanonicalAddress = canonical.Address
	result.SpaceSaved = size

	i.log.Debug("Deduplicated content",
		slog.String("content_hash", hash.String()),
		slog.String("canonical_address", canonical.Address.Short()),
		slog.Int64("space_saved", size))

	return result, nil
}

// RegisterContent inserts a hash to canonical address mapping after a
// successful non-duplicate write. This is the only mutation path.
func (i *Index) RegisterContent(ctx context.Context, address interfaces.ContentAddress, hash interfaces.ContentHash, size int64) error {
	if hash.IsZero() {
		return nil
	}

	value, err := json.Marshal(entry{Address: address, Size: size})
	if err != nil {
		return fmt.Errorf("failed to encode dedup entry: %w", err)
	}

	if err := i.index.Put(ctx, keyPrefix+hash.String(), value); err != nil {
		return fmt.Errorf("failed to register content hash: %w", err)
	}
	return nil
}

// Remove drops the registration for a hash. Called by the garbage collector
// when it deletes the canonical object.
func (i *Index) Remove(ctx context.Context, hash interfaces.ContentHash) error {
	if hash.IsZero() {
		return nil
	}
	return i.index.Delete(ctx, keyPrefix+hash.String())
}
